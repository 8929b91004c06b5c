// Package applications 职位申请列表，每条申请内嵌一份简历副本
package applications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"resume-store-go/internal/constants"
	"resume-store-go/internal/logger"
	"resume-store-go/internal/resumestore"
	"resume-store-go/internal/storage"
	"resume-store-go/internal/types"

	"github.com/rs/zerolog"
)

// StatusSubmitted 新申请的状态
const StatusSubmitted = "submitted"

// Application 一条职位申请
type Application struct {
	ID              string              `json:"id"`
	JobID           string              `json:"jobId"`
	UserID          string              `json:"userId"`
	ApplicantName   string              `json:"applicantName"`
	ApplicantEmail  string              `json:"applicantEmail,omitempty"`
	ApplicantPhone  string              `json:"applicantPhone,omitempty"`
	CoverLetter     string              `json:"coverLetter,omitempty"`
	ApplicationDate time.Time           `json:"applicationDate"`
	Status          string              `json:"status"`
	Resume          *types.ResumeRecord `json:"resume,omitempty"`
}

// ResumeStore 申请列表用到的简历存储操作
type ResumeStore interface {
	Save(ctx context.Context, record *types.ResumeRecord) (string, error)
	Get(ctx context.Context, id string) *types.ResumeRecord
	Delete(ctx context.Context, id string) bool
}

// Board 申请列表，整体保存在一个键下
type Board struct {
	kv              resumestore.KeyValueBackend
	store           ResumeStore
	retentionMonths int
	probeLimit      int64
	now             func() time.Time

	// 同一进程内串行化读-改-写
	mu  sync.Mutex
	log zerolog.Logger
}

// NewBoard 创建申请列表，store 可以为 nil
func NewBoard(kv resumestore.KeyValueBackend, store ResumeStore, now func() time.Time) *Board {
	if now == nil {
		now = time.Now
	}
	return &Board{
		kv:              kv,
		store:           store,
		retentionMonths: constants.RetentionMonths,
		probeLimit:      constants.ProbeLimit,
		now:             now,
		log:             logger.Component("applications"),
	}
}

// Submit 保存申请
// 简历先写入简历存储（失败不影响申请），再把带简历副本的申请追加到列表
func (b *Board) Submit(ctx context.Context, app *Application) error {
	if app == nil || app.ID == "" {
		return types.NewValidationError("", "Application ID is required")
	}
	if app.ApplicationDate.IsZero() {
		app.ApplicationDate = b.now().UTC()
	}
	if app.Status == "" {
		app.Status = StatusSubmitted
	}

	if app.Resume != nil {
		app.Resume = app.Resume.Clone()
		app.Resume.ApplicationID = &app.ID
		if app.Resume.UserID == "" {
			app.Resume.UserID = app.UserID
		}
		// 副本只带 data，二进制内容留在简历存储
		app.Resume.Blob = nil
		b.saveResume(ctx, app)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	apps, err := b.loadForUpdate(ctx)
	if err != nil {
		return err
	}
	err = b.persist(ctx, append(apps, *app), true)
	if err == nil {
		b.log.Info().Str("application_id", app.ID).Int("total", len(apps)+1).Msg("申请已保存")
		return nil
	}
	if !errors.Is(err, types.ErrQuotaExceeded) {
		return types.NewStorageError(app.ID, "submit", "failed to save application", err)
	}

	removed, cleanErr := b.cleanup(ctx)
	if cleanErr != nil {
		b.log.Warn().Err(cleanErr).Msg("清理过期申请失败")
	}
	b.log.Warn().Int("removed", removed).Str("application_id", app.ID).Msg("申请列表空间不足，清理后重试")

	if apps, err = b.loadForUpdate(ctx); err != nil {
		return err
	}
	if err := b.persist(ctx, append(apps, *app), false); err != nil {
		return types.NewQuotaError(app.ID, "Storage quota exceeded. Please free up space.", err)
	}
	return nil
}

func (b *Board) saveResume(ctx context.Context, app *Application) {
	if b.store == nil || app.Resume.ID == "" {
		return
	}
	if _, err := b.store.Save(ctx, app.Resume.Clone()); err != nil {
		b.log.Warn().Err(err).Str("resume_id", app.Resume.ID).Msg("简历存储失败，仅保留申请中的副本")
	}
}

// List 全部申请
func (b *Board) List(ctx context.Context) ([]Application, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load(ctx)
}

// ForJob 某个职位收到的申请
func (b *Board) ForJob(ctx context.Context, jobID string) ([]Application, error) {
	apps, err := b.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Application, 0, len(apps))
	for _, a := range apps {
		if a.JobID == jobID {
			out = append(out, a)
		}
	}
	return out, nil
}

// Remove 删除申请，并尽力删除其简历
func (b *Board) Remove(ctx context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	apps, err := b.loadForUpdate(ctx)
	if err != nil {
		return false, err
	}
	var removed *Application
	kept := apps[:0]
	for i := range apps {
		if apps[i].ID == id && removed == nil {
			a := apps[i]
			removed = &a
			continue
		}
		kept = append(kept, apps[i])
	}
	if removed == nil {
		return false, nil
	}
	if err := b.persist(ctx, kept, false); err != nil {
		return false, err
	}

	if b.store != nil && removed.Resume != nil && removed.Resume.ID != "" {
		if !b.store.Delete(ctx, removed.Resume.ID) {
			b.log.Debug().Str("resume_id", removed.Resume.ID).Msg("简历存储中没有该简历")
		}
	}
	b.log.Info().Str("application_id", id).Msg("申请已删除")
	return true, nil
}

// ResumeFor 申请对应的简历，简历存储中的记录优先，内嵌副本兜底
func (b *Board) ResumeFor(ctx context.Context, app *Application) *types.ResumeRecord {
	if app == nil || app.Resume == nil {
		return nil
	}
	if b.store != nil && app.Resume.ID != "" {
		if r := b.store.Get(ctx, app.Resume.ID); r != nil {
			return r
		}
	}
	return app.Resume.Clone()
}

// EstimateSize 申请序列化后的大小
func EstimateSize(app *Application) int64 {
	raw, err := json.Marshal(app)
	if err != nil {
		return 0
	}
	return int64(len(raw))
}

// CheckCapacity 写入一个临时键确认还有空间，最多探测 1MB
func (b *Board) CheckCapacity(ctx context.Context, estimatedSize int64) error {
	size := min(estimatedSize, b.probeLimit)
	key := constants.ProbeKeyPrefix + "storage_" + strconv.FormatInt(b.now().UnixMilli(), 10)
	if err := resumestore.Probe(ctx, b.kv, key, size); err != nil {
		if errors.Is(err, types.ErrQuotaExceeded) {
			return err
		}
		return types.NewStorageError("", "probe", "storage capacity check failed", err)
	}
	return nil
}

// load 读取列表，键不存在或内容无法解析时返回空列表
func (b *Board) load(ctx context.Context) ([]Application, error) {
	apps, err := b.loadForUpdate(ctx)
	if errors.Is(err, types.ErrCorrupt) {
		b.log.Error().Err(err).Msg("申请列表无法解析，按空列表处理")
		return []Application{}, nil
	}
	return apps, err
}

// loadForUpdate 写入前读取列表，内容无法解析时返回 ErrCorrupt，避免覆盖已有申请
func (b *Board) loadForUpdate(ctx context.Context) ([]Application, error) {
	raw, err := b.kv.Get(ctx, constants.ApplicantsKey)
	if err != nil {
		if storage.IsNotFound(err) {
			return []Application{}, nil
		}
		return nil, types.NewStorageError("", "load", "failed to read applications", err)
	}
	var apps []Application
	if err := json.Unmarshal([]byte(raw), &apps); err != nil {
		return nil, &types.ResumeError{Op: "load", BaseErr: types.ErrCorrupt,
			Detail: "applications list is unreadable and will not be overwritten", Cause: err}
	}
	return apps, nil
}

// persist 写回整个列表，probe 为 true 时先用同样大小的数据探测，最多探测 probeLimit
func (b *Board) persist(ctx context.Context, apps []Application, probe bool) error {
	raw, err := json.Marshal(apps)
	if err != nil {
		return fmt.Errorf("序列化申请列表失败: %w", err)
	}
	if probe {
		if err := resumestore.Probe(ctx, b.kv, constants.ApplicantsProbeKey, min(int64(len(raw)), b.probeLimit)); err != nil {
			return err
		}
	}
	if err := b.kv.Set(ctx, constants.ApplicantsKey, string(raw), 0); err != nil {
		return err
	}
	b.log.Debug().Int("total", len(apps)).Msg("申请列表已保存")
	return nil
}

// cleanup 删除早于保留期的申请，返回删除数量
func (b *Board) cleanup(ctx context.Context) (int, error) {
	apps, err := b.loadForUpdate(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := b.now().AddDate(0, -b.retentionMonths, 0)
	kept := apps[:0]
	for _, a := range apps {
		if a.ApplicationDate.After(cutoff) {
			kept = append(kept, a)
		}
	}
	removed := len(apps) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	return removed, b.persist(ctx, kept, false)
}
