// Package viewer 将简历引用解析为可展示或可下载的内容
package viewer

import (
	"context"
	"strings"

	"resume-store-go/internal/encoder"
	"resume-store-go/internal/logger"
	"resume-store-go/internal/tracing"
	"resume-store-go/internal/types"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var viewerTracer = otel.Tracer("resume-store-go/viewer")

// Kind 解析结果的展示方式
type Kind int

const (
	// KindFileInfo 只展示元数据（"文件存在但无法预览"）
	KindFileInfo Kind = iota
	// KindInlinePDF 内嵌文档预览
	KindInlinePDF
	// KindInlineImage 内嵌图片
	KindInlineImage
)

func (k Kind) String() string {
	switch k {
	case KindInlinePDF:
		return "inline_pdf"
	case KindInlineImage:
		return "inline_image"
	default:
		return "file_info"
	}
}

// 内容来源
const (
	SourceCaller    = "caller"
	SourceStore     = "store"
	SourceStoreBlob = "store_blob"
	SourceMetadata  = "metadata"
)

// Resolution 展示用的解析结果
type Resolution struct {
	Kind Kind
	// Payload data URL，KindFileInfo 时为空
	Payload string
	Info    types.FileInfo
	Source  string
}

// Download 下载用的解码结果
type Download struct {
	Name     string
	MimeType string
	Data     []byte
}

// RecordGetter 按 id 读取简历，找不到时返回 nil
type RecordGetter interface {
	Get(ctx context.Context, id string) *types.ResumeRecord
}

// Viewer 解析器，store 可以为 nil（只用调用方携带的数据）
type Viewer struct {
	store RecordGetter
	log   zerolog.Logger
}

// New 创建解析器
func New(store RecordGetter) *Viewer {
	return &Viewer{store: store, log: logger.Component("viewer")}
}

// candidate 解析链中的一步
type candidate struct {
	source  string
	payload string
}

// walk 按顺序产生候选内容：调用方 data、存储 data、存储 blob 现场编码
// visit 返回 true 时停止，后面的步骤（包括访问存储）不再执行
// 返回合并后的记录（存储中的非空字段覆盖调用方的字段）
func (v *Viewer) walk(ctx context.Context, ref *types.ResumeRecord, visit func(merged *types.ResumeRecord, c candidate) bool) *types.ResumeRecord {
	merged := ref.Clone()
	if merged == nil {
		merged = &types.ResumeRecord{}
	}

	if merged.Data != "" {
		if encoder.HasPrefixFor(merged.Data, merged.Type) {
			if visit(merged, candidate{source: SourceCaller, payload: merged.Data}) {
				return merged
			}
		} else {
			v.log.Warn().Str("resume_id", merged.ID).Str("type", merged.Type).Msg("调用方携带的简历数据与类型不符")
		}
	}

	if merged.ID == "" || v.store == nil {
		return merged
	}
	stored := v.store.Get(ctx, merged.ID)
	if stored == nil {
		v.log.Debug().Str("resume_id", merged.ID).Msg("存储中没有该简历")
		return merged
	}
	merged = mergeRecords(merged, stored)

	if stored.Data != "" {
		if encoder.HasPrefixFor(stored.Data, merged.Type) {
			if visit(merged, candidate{source: SourceStore, payload: stored.Data}) {
				return merged
			}
		} else {
			v.log.Warn().Str("resume_id", merged.ID).Str("type", merged.Type).Msg("存储中的简历数据已损坏")
		}
	}
	if len(stored.Blob) > 0 {
		visit(merged, candidate{source: SourceStoreBlob, payload: encoder.EncodeBytes(merged.Type, stored.Blob)})
	}
	return merged
}

// ResolveForView 解析为可展示内容，从不返回错误
func (v *Viewer) ResolveForView(ctx context.Context, ref *types.ResumeRecord) Resolution {
	ctx, span := viewerTracer.Start(ctx, "Viewer.ResolveForView")
	defer span.End()

	var found *candidate
	merged := v.walk(ctx, ref, func(_ *types.ResumeRecord, c candidate) bool {
		found = &c
		return true
	})

	res := Resolution{Kind: KindFileInfo, Info: merged.Info(), Source: SourceMetadata}
	if kind := kindFor(merged.Type); kind != KindFileInfo && found != nil {
		res.Kind = kind
		res.Payload = found.payload
		res.Source = found.source
	}

	span.SetAttributes(
		attribute.String("resume.id", merged.ID),
		tracing.SafeString("resume.owner", merged.UserID),
		attribute.String("viewer.kind", res.Kind.String()),
		attribute.String("viewer.source", res.Source),
	)
	return res
}

// ResolveForDownload 解析并解码为原始字节
// 所有候选都不可用时返回 ErrNoDataAvailable
func (v *Viewer) ResolveForDownload(ctx context.Context, ref *types.ResumeRecord) (*Download, error) {
	ctx, span := viewerTracer.Start(ctx, "Viewer.ResolveForDownload")
	defer span.End()

	var d *Download
	merged := v.walk(ctx, ref, func(merged *types.ResumeRecord, c candidate) bool {
		mimeType, data, err := encoder.Decode(c.payload)
		if err != nil {
			v.log.Warn().Err(err).Str("resume_id", merged.ID).Str("source", c.source).Msg("解码简历数据失败")
			return false
		}
		span.SetAttributes(attribute.String("viewer.source", c.source))
		d = &Download{Name: downloadName(merged), MimeType: mimeType, Data: data}
		return true
	})
	if d == nil {
		return nil, types.NewNoDataError(merged.ID, "No resume data available for download")
	}
	return d, nil
}

func kindFor(mimeType string) Kind {
	switch {
	case mimeType == types.MimePDF:
		return KindInlinePDF
	case strings.HasPrefix(mimeType, "image/"):
		return KindInlineImage
	default:
		return KindFileInfo
	}
}

func downloadName(r *types.ResumeRecord) string {
	switch {
	case r.SavedFileName != "":
		return r.SavedFileName
	case r.Name != "":
		return r.Name
	case r.OriginalName != "":
		return r.OriginalName
	default:
		return "resume"
	}
}

// mergeRecords 以调用方引用为底，存储中的非空字段覆盖之
func mergeRecords(ref, stored *types.ResumeRecord) *types.ResumeRecord {
	out := ref.Clone()
	if stored.ApplicationID != nil {
		appID := *stored.ApplicationID
		out.ApplicationID = &appID
	}
	overrideString(&out.UserID, stored.UserID)
	overrideString(&out.Name, stored.Name)
	overrideString(&out.OriginalName, stored.OriginalName)
	overrideString(&out.Type, stored.Type)
	overrideString(&out.Data, stored.Data)
	overrideString(&out.Checksum, stored.Checksum)
	overrideString(&out.SavedFileName, stored.SavedFileName)
	if stored.StorageMethod != "" {
		out.StorageMethod = stored.StorageMethod
	}
	if stored.Size > 0 {
		out.Size = stored.Size
	}
	if !stored.UploadDate.IsZero() {
		out.UploadDate = stored.UploadDate
	}
	if len(stored.Blob) > 0 {
		out.Blob = stored.Blob
	}
	return out
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
