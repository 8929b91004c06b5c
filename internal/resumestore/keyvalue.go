package resumestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"resume-store-go/internal/constants"
	"resume-store-go/internal/encoder"
	"resume-store-go/internal/storage"
	"resume-store-go/internal/types"
	"resume-store-go/internal/utils"

	"github.com/gofrs/uuid/v5"
)

// saveKeyValue 以 JSON 形式写入键值后端
// 空间不足时清理过期记录后重试一次
func (s *Store) saveKeyValue(ctx context.Context, work *types.ResumeRecord) error {
	kv := s.opts.KeyValue
	if kv == nil {
		return types.NewStorageError(work.ID, "save", "no key-value backend configured", nil)
	}

	// 键值后端只能存字符串
	if work.Data == "" && len(work.Blob) > 0 {
		work.Data = encoder.EncodeBytes(work.Type, work.Blob)
	}
	work.StorageMethod = types.StorageKeyValue

	raw, err := json.Marshal(work)
	if err != nil {
		return types.NewStorageError(work.ID, "save", "failed to serialize record", err)
	}
	if int64(len(raw)) > s.opts.KeyValueRecordLimit {
		return types.NewQuotaError(work.ID, fmt.Sprintf("Record too large for key-value storage: %s. Maximum: %s",
			utils.FormatSize(int64(len(raw))), utils.FormatSize(s.opts.KeyValueRecordLimit)), nil)
	}

	err = s.writeKeyValue(ctx, constants.ResumeKey(work.ID), string(raw))
	if errors.Is(err, types.ErrQuotaExceeded) {
		pruned := s.pruneExpired(ctx)
		s.log.Warn().Int("pruned", pruned).Str("resume_id", work.ID).Msg("键值空间不足，已清理过期简历并重试")
		err = s.writeKeyValue(ctx, constants.ResumeKey(work.ID), string(raw))
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, types.ErrQuotaExceeded):
		return types.NewQuotaError(work.ID, "Storage quota exceeded. Please free up space.", err)
	default:
		return types.NewStorageError(work.ID, "save", "key-value write failed", err)
	}
}

// writeKeyValue 先写一个探测键确认还有空间，探测键无论结果如何都会删除
func (s *Store) writeKeyValue(ctx context.Context, key, value string) error {
	kv := s.opts.KeyValue
	if err := Probe(ctx, kv, constants.ProbeKeyPrefix+newProbeID(), probeSize(int64(len(value)), s.opts.ProbeLimit)); err != nil {
		return err
	}
	return kv.Set(ctx, key, value, 0)
}

// Probe 写入 size 字节的临时值后立即删除
func Probe(ctx context.Context, kv KeyValueBackend, key string, size int64) error {
	if size <= 0 {
		size = 1
	}
	err := kv.Set(ctx, key, strings.Repeat("x", int(size)), 0)
	if _, delErr := kv.Del(ctx, key); delErr != nil && err == nil {
		err = delErr
	}
	return err
}

func probeSize(n, limit int64) int64 {
	if n > limit {
		return limit
	}
	return n
}

func newProbeID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Must(uuid.NewV4()).String()
	}
	return id.String()
}

// pruneExpired 删除上传时间早于保留期的键值记录，返回删除数量
func (s *Store) pruneExpired(ctx context.Context) int {
	cutoff := s.opts.Clock().AddDate(0, -s.opts.RetentionMonths, 0)
	keys, err := s.resumeKeys(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("扫描过期简历失败")
		return 0
	}

	var expired []string
	for _, key := range keys {
		raw, err := s.opts.KeyValue.Get(ctx, key)
		if err != nil {
			continue
		}
		rec, err := decodeRecord(raw)
		if err != nil || rec.UploadDate.IsZero() {
			continue
		}
		if rec.UploadDate.Before(cutoff) {
			expired = append(expired, key)
		}
	}
	if len(expired) == 0 {
		return 0
	}
	n, err := s.opts.KeyValue.Del(ctx, expired...)
	if err != nil {
		s.log.Warn().Err(err).Msg("删除过期简历失败")
	}
	return int(n)
}

func (s *Store) getKeyValue(ctx context.Context, id string) *types.ResumeRecord {
	if s.opts.KeyValue == nil {
		return nil
	}
	raw, err := s.opts.KeyValue.Get(ctx, constants.ResumeKey(id))
	if err != nil {
		if !storage.IsNotFound(err) {
			s.log.Warn().Err(err).Str("resume_id", id).Msg("键值后端读取失败")
		}
		return nil
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		s.log.Error().Err(err).Str("resume_id", id).Msg("键值后端中的简历记录无法解析")
		return nil
	}
	if rec.StorageMethod == "" {
		rec.StorageMethod = types.StorageKeyValue
	}
	return rec
}

// resumeKeys 简历记录的键，排除探测键等其他前缀
func (s *Store) resumeKeys(ctx context.Context) ([]string, error) {
	if s.opts.KeyValue == nil {
		return nil, nil
	}
	return s.opts.KeyValue.ScanKeys(ctx, constants.ResumeKeyPrefix)
}

func (s *Store) countKeyValue(ctx context.Context) int64 {
	keys, err := s.resumeKeys(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("统计键值后端失败")
		return 0
	}
	return int64(len(keys))
}

// scanKeyValue 遍历全部键值记录，返回满足 match 的记录
func (s *Store) scanKeyValue(ctx context.Context, match func(*types.ResumeRecord) bool) ([]*types.ResumeRecord, error) {
	keys, err := s.resumeKeys(ctx)
	if err != nil {
		return nil, err
	}
	var out []*types.ResumeRecord
	for _, key := range keys {
		raw, err := s.opts.KeyValue.Get(ctx, key)
		if err != nil {
			continue
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			continue
		}
		if match(rec) {
			if rec.StorageMethod == "" {
				rec.StorageMethod = types.StorageKeyValue
			}
			out = append(out, rec)
		}
	}
	return out, nil
}
