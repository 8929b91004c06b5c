package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resume-store-go/internal/applications"
	"resume-store-go/internal/config"
	"resume-store-go/internal/logger"
	"resume-store-go/internal/outbox"
	"resume-store-go/internal/processor"
	"resume-store-go/internal/resumestore"
	"resume-store-go/internal/storage"
	"resume-store-go/internal/tracing"
	"resume-store-go/internal/validator"
	"resume-store-go/internal/viewer"

	"github.com/spf13/pflag"
)

var (
	version     = "1.0.0"        //nolint:gochecknoglobals
	serviceName = "resume-store" //nolint:gochecknoglobals
)

// 命令行参数
var (
	configPath = pflag.StringP("config", "c", "", "配置文件路径，为空时按默认位置查找")
	filePath   = pflag.StringP("file", "f", "", "上传的简历文件路径 (upload 必填)")
	mimeType   = pflag.String("type", "", "文件的 MIME 类型，为空时按扩展名推断")
	ownerID    = pflag.String("owner-id", "", "上传者 ID (upload 必填)")
	ownerName  = pflag.String("owner-name", "", "上传者姓名，用于生成下载文件名")
	appID      = pflag.String("app-id", "", "关联的职位申请 ID")
	resumeID   = pflag.String("id", "", "简历 ID (view/download/delete 必填)")
	outDir     = pflag.StringP("out", "o", ".", "download 保存目录")
	toMinIO    = pflag.Bool("minio", false, "download 上传到 MinIO 并输出预签名 URL")
	showVer    = pflag.BoolP("version", "v", false, "显示版本")
)

const usage = `用法: resumectl [flags] <command>

命令:
  upload     校验、编码并保存简历
  view       解析简历的展示方式
  download   解码简历并保存到目录或 MinIO
  delete     从所有后端删除简历
  stats      输出存储统计
  selftest   保存/读取/删除一条测试记录
  apply      以已保存的简历提交职位申请 (--app-id, --id)
  relay      把 outbox 中待发送的简历事件转发到 RabbitMQ
`

// app 一次命令执行需要的全部组件
type app struct {
	cfg      *config.Config
	storage  *storage.Storage
	store    *resumestore.Store
	viewer   *viewer.Viewer
	board    *applications.Board
	outboxDB *storage.SQLStore // 仅在 use_outbox 时打开
}

func main() {
	pflag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *showVer {
		fmt.Printf("%s %s\n", serviceName, version)
		return
	}
	if pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, pflag.Arg(0)); err != nil {
		logger.Error().Err(err).Str("command", pflag.Arg(0)).Msg("命令执行失败")
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string) error {
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	logger.Init(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
		Output:       os.Stderr,
	})

	shutdown, err := tracing.InitProvider(ctx, cfg.Tracing)
	if err != nil {
		logger.Warn().Err(err).Msg("初始化链路追踪失败，继续运行")
	} else {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	switch command {
	case "upload":
		return a.upload(ctx)
	case "view":
		return a.view(ctx)
	case "download":
		return a.download(ctx)
	case "delete":
		return a.remove(ctx)
	case "stats":
		return a.stats(ctx)
	case "selftest":
		return a.selftest(ctx)
	case "apply":
		return a.apply(ctx)
	case "relay":
		return a.relay(ctx)
	default:
		pflag.Usage()
		return fmt.Errorf("未知命令 '%s'", command)
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	sm, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化存储失败: %w", err)
	}

	opts := resumestore.OptionsFromConfig(cfg.Resume)
	if sm.HasStructured() {
		opts.Structured = func(ctx context.Context) (resumestore.StructuredBackend, error) {
			s, err := sm.OpenStructured(ctx)
			if err != nil {
				return nil, err
			}
			return s, nil
		}
	}
	if sm.Redis != nil {
		opts.KeyValue = sm.Redis
	}
	a := &app{cfg: cfg, storage: sm}
	switch {
	case cfg.RabbitMQ.UseOutbox && sm.HasStructured():
		db, err := sm.OpenStructured(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("打开 outbox 数据库失败，简历事件将不会发布")
		} else {
			a.outboxDB = db
			opts.Publisher = outbox.NewWriter(db.DB(), cfg.RabbitMQ)
		}
	case sm.RabbitMQ != nil:
		opts.Publisher = sm.RabbitMQ
	}
	store := resumestore.New(opts)
	a.store = store
	a.viewer = viewer.New(store)
	if sm.Redis != nil {
		a.board = applications.NewBoard(sm.Redis, store, nil)
	}
	return a, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		logger.Warn().Err(err).Msg("关闭简历存储失败")
	}
	if a.outboxDB != nil {
		_ = a.outboxDB.Close()
	}
	a.storage.Close()
}

func (a *app) uploader() (*processor.ResumeUploader, error) {
	return processor.NewResumeUploader(a.store, nil, []processor.SettingOpt{
		processor.WithsetLimits(validator.LimitsFromConfig(a.cfg.Resume)),
		processor.WithsetEncodeTimeout(a.cfg.EncodeTimeout()),
	})
}
