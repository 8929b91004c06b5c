package processor

import (
	"context"
	"time"

	"resume-store-go/internal/encoder"
	"resume-store-go/internal/types"
	"resume-store-go/internal/validator"
)

// ResumeSaver 上传流程依赖的存储能力
type ResumeSaver interface {
	Save(ctx context.Context, record *types.ResumeRecord) (string, error)
}

// Components 上传流程的组件
type Components struct {
	Validator *validator.Validator
	Encoder   *encoder.Encoder
	Builder   *RecordBuilder
	Store     ResumeSaver
}

// Settings 上传流程的设置
type Settings struct {
	Limits        validator.Limits
	EncodeTimeout time.Duration
	Clock         func() time.Time
}

// ComponentOpt 组件选项类型，仅改变 Components 结构体内的字段
type ComponentOpt func(*Components)

// SettingOpt 设置选项类型，仅改变 Settings 结构体内的字段
type SettingOpt func(*Settings)

// WithcompValidator 设置校验器
func WithcompValidator(v *validator.Validator) ComponentOpt {
	return func(c *Components) {
		c.Validator = v
	}
}

// WithcompEncoder 设置编码器
func WithcompEncoder(e *encoder.Encoder) ComponentOpt {
	return func(c *Components) {
		c.Encoder = e
	}
}

// WithcompBuilder 设置记录构建器
func WithcompBuilder(b *RecordBuilder) ComponentOpt {
	return func(c *Components) {
		c.Builder = b
	}
}

// WithsetLimits 设置校验阈值，仅在未注入校验器时生效
func WithsetLimits(l validator.Limits) SettingOpt {
	return func(s *Settings) {
		s.Limits = l
	}
}

// WithsetEncodeTimeout 设置编码超时，仅在未注入编码器时生效
func WithsetEncodeTimeout(d time.Duration) SettingOpt {
	return func(s *Settings) {
		s.EncodeTimeout = d
	}
}

// WithsetClock 设置时钟，仅在未注入构建器时生效
func WithsetClock(now func() time.Time) SettingOpt {
	return func(s *Settings) {
		s.Clock = now
	}
}
