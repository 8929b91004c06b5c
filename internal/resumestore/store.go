// Package resumestore 简历记录的持久化：结构化后端优先，不可用或写入失败时回退到键值后端
package resumestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"resume-store-go/internal/config"
	"resume-store-go/internal/constants"
	"resume-store-go/internal/logger"
	"resume-store-go/internal/storage"
	"resume-store-go/internal/tracing"
	"resume-store-go/internal/types"
	"resume-store-go/internal/utils"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var storeTracer = otel.Tracer("resume-store-go/resumestore")

// StructuredBackend 带索引的结构化后端
type StructuredBackend interface {
	Put(ctx context.Context, record *types.ResumeRecord) error
	// Get 不存在时返回 nil, nil
	Get(ctx context.Context, id string) (*types.ResumeRecord, error)
	Delete(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]*types.ResumeRecord, error)
	ListByApplication(ctx context.Context, applicationID string) ([]*types.ResumeRecord, error)
	Close() error
}

// StructuredOpener 打开（必要时建表）结构化后端
type StructuredOpener func(ctx context.Context) (StructuredBackend, error)

// KeyValueBackend 扁平字符串键值后端
// Get 在键不存在时返回 storage.ErrNotFound；Set 超出空间时返回 types.ErrQuotaExceeded
type KeyValueBackend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	ScanKeys(ctx context.Context, prefix string) ([]string, error)
}

// EventPublisher 保存/删除成功后的事件通知
type EventPublisher interface {
	PublishStored(ctx context.Context, msg storage.ResumeStoredMessage) error
	PublishDeleted(ctx context.Context, msg storage.ResumeDeletedMessage) error
}

// Options 存储的依赖和阈值，零值字段使用默认值
type Options struct {
	// Structured 为 nil 表示当前环境没有结构化后端
	Structured StructuredOpener
	KeyValue   KeyValueBackend
	Publisher  EventPublisher

	MaxFileSize         int64
	KeyValueRecordLimit int64
	ProbeLimit          int64
	RetentionMonths     int
	Clock               func() time.Time
}

// OptionsFromConfig 从配置填充阈值，依赖仍需调用方注入
func OptionsFromConfig(cfg config.ResumeConfig) Options {
	return Options{
		MaxFileSize:         cfg.MaxFileSizeBytes,
		KeyValueRecordLimit: cfg.KVRecordLimitBytes,
		ProbeLimit:          cfg.ProbeLimitBytes,
		RetentionMonths:     cfg.RetentionMonths,
	}
}

// Store 简历存储，可并发使用
type Store struct {
	opts      Options
	sm        stateMachine
	initGroup singleflight.Group
	// structured 只在 init 中写入一次，之后只读
	structured StructuredBackend
	log        zerolog.Logger
}

// New 创建存储，后端在第一次操作时初始化
func New(opts Options) *Store {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = constants.MaxFileSize
	}
	if opts.KeyValueRecordLimit <= 0 {
		opts.KeyValueRecordLimit = constants.KeyValueRecordLimit
	}
	if opts.ProbeLimit <= 0 {
		opts.ProbeLimit = constants.ProbeLimit
	}
	if opts.RetentionMonths <= 0 {
		opts.RetentionMonths = constants.RetentionMonths
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Store{opts: opts, log: logger.Component("resumestore")}
}

// Init 选择后端，幂等；并发调用合并为一次
// 结构化后端打开失败只记录日志并退到键值后端
func (s *Store) Init(ctx context.Context) {
	if s.sm.current() != stateUninitialized {
		return
	}
	_, _, _ = s.initGroup.Do("init", func() (interface{}, error) {
		if s.sm.current() != stateUninitialized {
			return nil, nil
		}
		if s.opts.Structured != nil {
			b, err := s.opts.Structured(ctx)
			if err == nil && b != nil {
				s.structured = b
				s.sm.ready(stateStructured)
				s.log.Info().Str("backend", stateStructured.String()).Msg("简历存储初始化完成")
				return nil, nil
			}
			s.log.Warn().Err(err).Msg("结构化后端不可用，使用键值后端")
		}
		s.sm.ready(stateKeyValue)
		s.log.Info().Str("backend", stateKeyValue.String()).Msg("简历存储初始化完成")
		return nil, nil
	})
}

// Backend 当前生效的后端，未初始化时为空
func (s *Store) Backend() types.StorageMethod {
	return s.sm.current().method()
}

// Close 关闭结构化后端，未初始化时什么也不做
func (s *Store) Close() error {
	if s.sm.current() != stateUninitialized && s.structured != nil {
		return s.structured.Close()
	}
	return nil
}

// Save 按 id upsert，返回 id
// 成功后把实际使用的后端写回 record.StorageMethod
func (s *Store) Save(ctx context.Context, record *types.ResumeRecord) (string, error) {
	ctx, span := storeTracer.Start(ctx, "ResumeStore.Save")
	defer span.End()

	if err := s.checkRecord(record); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return "", err
	}
	span.SetAttributes(
		attribute.String("resume.id", record.ID),
		attribute.String("resume.type", record.Type),
		attribute.Int64("resume.size", record.Size),
		attribute.String("resume.file_name", tracing.SafeFileName(record.Name)),
		tracing.SafeString("resume.owner", record.UserID),
	)

	s.Init(ctx)
	work := record.Clone()

	var err error
	if s.sm.current() == stateStructured {
		err = s.saveStructured(ctx, span, work)
	} else {
		err = s.saveKeyValue(ctx, work)
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.Classify(err))
		s.log.Error().Err(err).Str("resume_id", record.ID).Msg("保存简历失败")
		return "", err
	}

	record.StorageMethod = work.StorageMethod
	span.SetAttributes(attribute.String("storage.method", string(work.StorageMethod)))
	s.log.Info().
		Str("resume_id", work.ID).
		Str("backend", string(work.StorageMethod)).
		Int64("size", work.Size).
		Msg("简历已保存")

	s.publishStored(ctx, work)
	return work.ID, nil
}

func (s *Store) saveStructured(ctx context.Context, span trace.Span, work *types.ResumeRecord) error {
	work.StorageMethod = types.StorageStructured
	primaryErr := s.structured.Put(ctx, work)
	if primaryErr == nil {
		return nil
	}

	if s.sm.fallback() {
		s.log.Warn().Err(primaryErr).Str("resume_id", work.ID).Msg("结构化后端写入失败，切换到键值后端")
	}
	tracing.RecordBackendFallback(span, work.ID, primaryErr)

	retryErr := s.saveKeyValue(ctx, work)
	if retryErr == nil {
		return nil
	}
	return types.NewStorageError(work.ID, "save",
		fmt.Sprintf("Storage failed: %v. Fallback also failed: %v", primaryErr, retryErr),
		errors.Join(primaryErr, retryErr))
}

// recordSize 声明大小与 blob 实际长度取较大者
func recordSize(r *types.ResumeRecord) int64 {
	if n := int64(len(r.Blob)); n > r.Size {
		return n
	}
	return r.Size
}

// checkRecord 存储边界上的二次校验
func (s *Store) checkRecord(r *types.ResumeRecord) error {
	switch {
	case r == nil:
		return types.NewValidationError("", "Resume record is required")
	case r.ID == "":
		return types.NewValidationError("", "Resume ID is required")
	case r.Name == "":
		return types.NewValidationError(r.ID, "Resume name is required")
	case !r.HasPayload():
		return types.NewValidationError(r.ID, "Resume data is required")
	case recordSize(r) > s.opts.MaxFileSize:
		return types.NewValidationError(r.ID, fmt.Sprintf("File too large: %s. Maximum allowed: %s",
			utils.FormatSize(recordSize(r)), utils.FormatSize(s.opts.MaxFileSize)))
	}
	return nil
}

// Get 按 id 读取，找不到或任何读取错误都返回 nil
func (s *Store) Get(ctx context.Context, id string) *types.ResumeRecord {
	if id == "" {
		return nil
	}
	s.Init(ctx)

	if s.sm.current() == stateStructured {
		if rec := s.getStructured(ctx, id); rec != nil {
			return rec
		}
		return s.getKeyValue(ctx, id)
	}

	if rec := s.getKeyValue(ctx, id); rec != nil {
		return rec
	}
	// 运行中回退过：回退前写入的记录仍在结构化后端
	return s.getStructured(ctx, id)
}

func (s *Store) getStructured(ctx context.Context, id string) *types.ResumeRecord {
	if s.structured == nil {
		return nil
	}
	rec, err := s.structured.Get(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("resume_id", id).Msg("结构化后端读取失败")
		return nil
	}
	return rec
}

// Delete 从所有可能持有该记录的后端删除，任一后端删除成功即返回 true
func (s *Store) Delete(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	s.Init(ctx)

	deleted := false
	if s.structured != nil {
		ok, err := s.structured.Delete(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("resume_id", id).Msg("结构化后端删除失败")
		}
		deleted = ok
	}
	if s.opts.KeyValue != nil {
		n, err := s.opts.KeyValue.Del(ctx, constants.ResumeKey(id))
		if err != nil {
			s.log.Warn().Err(err).Str("resume_id", id).Msg("键值后端删除失败")
		}
		deleted = deleted || n > 0
	}

	if deleted {
		s.log.Info().Str("resume_id", id).Msg("简历已删除")
		s.publishDeleted(ctx, id)
	}
	return deleted
}

// Backend 标签
const (
	BackendStructured = "structured"
	BackendKeyValue   = "keyvalue"
	BackendHybrid     = "hybrid"
	BackendNone       = "none"
)

// Stats 存储统计
type Stats struct {
	Count          int64  `json:"totalResumes"`
	Backend        string `json:"storageMethod"`
	Supported      bool   `json:"isSupported"`
	FallbackActive bool   `json:"fallbackMode"`
	MaxFileSize    string `json:"maxFileSize"`
}

// Stats 汇总两个后端的记录数
func (s *Store) Stats(ctx context.Context) Stats {
	s.Init(ctx)
	state := s.sm.current()

	st := Stats{
		Backend:        BackendNone,
		Supported:      s.opts.Structured != nil || s.opts.KeyValue != nil,
		FallbackActive: state == stateKeyValue,
		MaxFileSize:    utils.FormatSize(s.opts.MaxFileSize),
	}

	if s.structured != nil {
		n, err := s.structured.Count(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("统计结构化后端失败")
		} else if state == stateStructured || n > 0 {
			st.Count += n
			st.Backend = BackendStructured
		}
	}

	if kvCount := s.countKeyValue(ctx); kvCount > 0 {
		st.Count += kvCount
		if st.Backend == BackendStructured {
			st.Backend = BackendHybrid
		} else {
			st.Backend = BackendKeyValue
		}
	}
	return st
}

// ListByUser 某个用户的全部简历，按上传时间升序
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*types.ResumeRecord, error) {
	return s.list(ctx, func(b StructuredBackend) ([]*types.ResumeRecord, error) {
		return b.ListByUser(ctx, userID)
	}, func(r *types.ResumeRecord) bool {
		return r.UserID == userID
	})
}

// ListByApplication 某个职位申请关联的简历
func (s *Store) ListByApplication(ctx context.Context, applicationID string) ([]*types.ResumeRecord, error) {
	return s.list(ctx, func(b StructuredBackend) ([]*types.ResumeRecord, error) {
		return b.ListByApplication(ctx, applicationID)
	}, func(r *types.ResumeRecord) bool {
		return r.ApplicationID != nil && *r.ApplicationID == applicationID
	})
}

// list 合并结构化索引查询与键值扫描的结果，同一 id 以当前生效后端为准
func (s *Store) list(
	ctx context.Context,
	query func(StructuredBackend) ([]*types.ResumeRecord, error),
	match func(*types.ResumeRecord) bool,
) ([]*types.ResumeRecord, error) {
	s.Init(ctx)

	var structuredRecs, kvRecs []*types.ResumeRecord
	var errs []error
	if s.structured != nil {
		recs, err := query(s.structured)
		if err != nil {
			errs = append(errs, err)
		}
		structuredRecs = recs
	}
	if s.opts.KeyValue != nil {
		recs, err := s.scanKeyValue(ctx, match)
		if err != nil {
			errs = append(errs, err)
		}
		kvRecs = recs
	}
	if len(structuredRecs) == 0 && len(kvRecs) == 0 && len(errs) > 0 {
		return nil, types.NewStorageError("", "list", "all backends failed", errors.Join(errs...))
	}

	primary, secondary := structuredRecs, kvRecs
	if s.sm.current() == stateKeyValue {
		primary, secondary = kvRecs, structuredRecs
	}
	seen := make(map[string]struct{}, len(primary)+len(secondary))
	out := make([]*types.ResumeRecord, 0, len(primary)+len(secondary))
	for _, group := range [][]*types.ResumeRecord{primary, secondary} {
		for _, r := range group {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadDate.Before(out[j].UploadDate) })
	return out, nil
}

func (s *Store) publishStored(ctx context.Context, r *types.ResumeRecord) {
	if s.opts.Publisher == nil {
		return
	}
	if err := s.opts.Publisher.PublishStored(ctx, storage.NewResumeStoredMessage(r, s.opts.Clock())); err != nil {
		s.log.Warn().Err(err).Str("resume_id", r.ID).Msg("发布简历保存事件失败")
	}
}

func (s *Store) publishDeleted(ctx context.Context, id string) {
	if s.opts.Publisher == nil {
		return
	}
	if err := s.opts.Publisher.PublishDeleted(ctx, storage.NewResumeDeletedMessage(id, s.opts.Clock())); err != nil {
		s.log.Warn().Err(err).Str("resume_id", id).Msg("发布简历删除事件失败")
	}
}

// decodeRecord 解析键值后端中的 JSON
func decodeRecord(raw string) (*types.ResumeRecord, error) {
	var r types.ResumeRecord
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, err
	}
	return &r, nil
}
