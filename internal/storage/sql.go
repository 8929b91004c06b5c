package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"resume-store-go/internal/config"
	"resume-store-go/internal/constants"
	"resume-store-go/internal/storage/models"
	"resume-store-go/internal/tracing"
	"resume-store-go/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// 支持的结构化后端驱动
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var sqlTracer = otel.Tracer("resume-store-go/storage/sql")

type spanCtxKey struct{}

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer         trace.Tracer
	dbName         string
	dbSystem       attribute.KeyValue
	disableErrSkip bool
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("INSERT")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")); err != nil {
		return err
	}
	return cb.Row().After("gorm:row").Register("otel:after_row", p.after())
}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		if p.disableErrSkip && db.Statement.SkipHooks {
			return
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		newCtx, span := p.tracer.Start(ctx, fmt.Sprintf("%s %s", operation, tableName),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				p.dbSystem,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			))
		db.Statement.Context = context.WithValue(newCtx, spanCtxKey{}, span)
	}
}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value(spanCtxKey{}).(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(
			attribute.String("db.statement", tracing.SafeSQL(db.Statement.SQL.String())),
			attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
		)

		// ErrRecordNotFound 是正常的业务结果
		switch {
		case db.Error == nil:
			span.SetStatus(codes.Ok, "")
		case errors.Is(db.Error, gorm.ErrRecordNotFound):
			span.SetAttributes(attribute.String("error.type", "record_not_found"))
			span.SetStatus(codes.Ok, "record not found")
		default:
			span.SetAttributes(
				attribute.String("error.type", "database_error"),
				attribute.String("error.message", tracing.TruncateString(db.Error.Error(), tracing.DefaultMaxLength)),
			)
			span.RecordError(db.Error)
			span.SetStatus(codes.Error, db.Error.Error())
		}
	}
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName, driver string) *GormTracingPlugin {
	system := semconv.DBSystemOtherSQL
	switch driver {
	case DriverMySQL:
		system = semconv.DBSystemMySQL
	case DriverPostgres:
		system = semconv.DBSystemPostgreSQL
	case DriverSQLite:
		system = semconv.DBSystemSqlite
	}
	return &GormTracingPlugin{
		tracer:         sqlTracer,
		dbName:         dbName,
		dbSystem:       system,
		disableErrSkip: true,
	}
}

// SQLStore 结构化简历后端：resumes 表，按 id 主键，user_id / application_id 二级索引
type SQLStore struct {
	db     *gorm.DB
	cfg    *config.StructuredConfig
	driver string
}

// NewSQLStore 按驱动打开数据库，注册追踪插件并自动迁移表结构
func NewSQLStore(cfg *config.StructuredConfig) (*SQLStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("结构化后端配置不能为空")
	}

	dialector, err := openDialector(cfg)
	if err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接%s失败: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		// sqlite 只有一个写入者，单连接也让内存库在连接池回收时不被销毁
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.ConnMaxLifetimeMinutes > 0 {
			sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
		}
	}

	s := &SQLStore{db: db, cfg: cfg, driver: cfg.Driver}

	if err := db.Use(NewGormTracingPlugin(cfg.Database, cfg.Driver)); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	if err := s.autoMigrateSchema(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}
	return s, nil
}

func openDialector(cfg *config.StructuredConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case DriverMySQL:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC&timeout=%ds",
				cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.ConnectTimeoutSeconds)
		}
		return mysql.Open(dsn), nil
	case DriverPostgres:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable connect_timeout=%d",
				cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.ConnectTimeoutSeconds)
		}
		return postgres.Open(dsn), nil
	case DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.SQLitePath
		}
		if dsn == "" {
			dsn = "resumes.db"
		}
		return sqlite.Open(dsn), nil
	case "":
		return nil, fmt.Errorf("未配置结构化后端驱动")
	default:
		return nil, fmt.Errorf("不支持的结构化后端驱动: %s", cfg.Driver)
	}
}

// gormLogLevel 1-4 对应 Silent/Error/Warn/Info，其他值按 Warn
func gormLogLevel(level int) gormlogger.LogLevel {
	switch level {
	case 1:
		return gormlogger.Silent
	case 2:
		return gormlogger.Error
	case 3:
		return gormlogger.Warn
	case 4:
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

// autoMigrateSchema 迁移时关闭SQL日志
func (s *SQLStore) autoMigrateSchema() error {
	silentLogger := gormlogger.New(
		log.New(os.Stderr, "", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Silent,
			IgnoreRecordNotFoundError: true,
		},
	)
	if err := s.db.Session(&gorm.Session{Logger: silentLogger}).AutoMigrate(&models.Resume{}, &models.OutboxMessage{}); err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	return nil
}

// DB 返回GORM数据库连接实例
func (s *SQLStore) DB() *gorm.DB {
	return s.db
}

// Driver 当前驱动名
func (s *SQLStore) Driver() string {
	return s.driver
}

// Close 关闭数据库连接
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// Ping 检查连接
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Put 按 id upsert，重复保存同一 id 覆盖全部字段
func (s *SQLStore) Put(ctx context.Context, record *types.ResumeRecord) error {
	ctx, span := sqlTracer.Start(ctx, "SQLStore.Put", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("db.operation", "UPSERT"),
		attribute.String("db.sql.table", constants.ResumesTable),
		attribute.String("resume.id", record.ID),
		attribute.Int64("resume.size", record.Size),
	)

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(models.FromRecord(record)).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("写入简历 %s 失败: %w", record.ID, err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// Get 按 id 查询，不存在时返回 nil, nil
func (s *SQLStore) Get(ctx context.Context, id string) (*types.ResumeRecord, error) {
	var row models.Resume
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询简历 %s 失败: %w", id, err)
	}
	return row.ToRecord(), nil
}

// Delete 删除记录，返回是否删除了数据
func (s *SQLStore) Delete(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Resume{})
	if res.Error != nil {
		return false, fmt.Errorf("删除简历 %s 失败: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Count 记录总数
func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Resume{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("统计简历数量失败: %w", err)
	}
	return n, nil
}

// ListByUser 按 user_id 索引查询，按上传时间升序
func (s *SQLStore) ListByUser(ctx context.Context, userID string) ([]*types.ResumeRecord, error) {
	return s.listBy(ctx, "user_id = ?", userID)
}

// ListByApplication 按 application_id 索引查询
func (s *SQLStore) ListByApplication(ctx context.Context, applicationID string) ([]*types.ResumeRecord, error) {
	return s.listBy(ctx, "application_id = ?", applicationID)
}

func (s *SQLStore) listBy(ctx context.Context, query string, arg string) ([]*types.ResumeRecord, error) {
	var rows []models.Resume
	if err := s.db.WithContext(ctx).Where(query, arg).Order("upload_date ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询简历列表失败: %w", err)
	}
	out := make([]*types.ResumeRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToRecord())
	}
	return out, nil
}
