package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"resume-store-go/internal/encoder"
	"resume-store-go/internal/logger"
	"resume-store-go/internal/tracing"
	"resume-store-go/internal/types"
	"resume-store-go/internal/utils"
	"resume-store-go/internal/validator"

	"github.com/rs/zerolog"
)

// UploadRequest 一次上传：文件描述 + 内容 + 归属
type UploadRequest struct {
	File          types.FileCandidate
	Content       io.ReadCloser
	Owner         types.Owner
	ApplicationID *string
}

// ResumeUploader 校验 -> 编码 -> 校对前缀 -> 构建 -> 保存
type ResumeUploader struct {
	components Components
	log        zerolog.Logger
}

// NewResumeUploader 创建上传流程，store 必填，其余组件未注入时按设置创建
func NewResumeUploader(store ResumeSaver, compOpts []ComponentOpt, setOpts []SettingOpt) (*ResumeUploader, error) {
	if store == nil {
		return nil, errors.New("ResumeUploader 需要存储组件")
	}

	settings := Settings{Limits: validator.DefaultLimits()}
	for _, opt := range setOpts {
		opt(&settings)
	}

	comps := Components{Store: store}
	for _, opt := range compOpts {
		opt(&comps)
	}
	if comps.Validator == nil {
		comps.Validator = validator.New(settings.Limits)
	}
	if comps.Encoder == nil {
		comps.Encoder = encoder.New(settings.EncodeTimeout)
	}
	if comps.Builder == nil {
		comps.Builder = NewRecordBuilder(settings.Clock)
	}

	return &ResumeUploader{
		components: comps,
		log:        logger.Component("uploader"),
	}, nil
}

// Upload 执行完整上传流程，Content 在任何路径上都会被关闭
func (u *ResumeUploader) Upload(ctx context.Context, req UploadRequest) (*types.ResumeRecord, error) {
	if req.Content == nil {
		return nil, types.NewValidationError("", "missing file content")
	}
	var once sync.Once
	release := func() { once.Do(func() { _ = req.Content.Close() }) }
	defer release()

	if res := u.components.Validator.Validate(req.File); !res.OK {
		u.log.Warn().Str("file", tracing.SafeFileName(req.File.Name)).Str("reason", res.Reason).Msg("文件校验未通过")
		return nil, res.Err()
	}

	payload, n, err := u.components.Encoder.EncodeLimited(ctx, req.File.Type, req.Content,
		u.components.Validator.Limits().MaxSize)
	release()
	if err != nil {
		u.log.Error().Err(err).Str("file", tracing.SafeFileName(req.File.Name)).Msg("文件编码失败")
		return nil, err
	}
	// 记录中的 size 必须是实际读到的字节数
	if n != req.File.Size {
		u.log.Warn().
			Str("file", tracing.SafeFileName(req.File.Name)).
			Int64("declared", req.File.Size).
			Int64("actual", n).
			Msg("声明的文件大小与实际内容不一致")
		return nil, types.NewValidationError("", fmt.Sprintf("File size mismatch: declared %s, read %s",
			utils.FormatSize(req.File.Size), utils.FormatSize(n)))
	}
	if !encoder.HasPrefixFor(payload, req.File.Type) {
		return nil, types.NewCorruptError("", fmt.Sprintf("encoded payload does not match type %s", req.File.Type))
	}

	file := req.File
	file.Size = n
	record := u.components.Builder.Build(file, payload, req.Owner, req.ApplicationID)
	id, err := u.components.Store.Save(ctx, record)
	if err != nil {
		return nil, err
	}
	record.ID = id

	u.log.Info().
		Str("resume_id", id).
		Str("type", record.Type).
		Int64("size", record.Size).
		Str("backend", string(record.StorageMethod)).
		Msg("简历上传完成")
	return record, nil
}
