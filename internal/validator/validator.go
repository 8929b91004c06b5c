// Package validator 上传文件的前置校验：类型、扩展名、大小、文件名
package validator

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"resume-store-go/internal/config"
	"resume-store-go/internal/constants"
	"resume-store-go/internal/types"
	"resume-store-go/internal/utils"
)

// ValidationResult 校验结果，OK 为 false 时 Reason 为面向用户的提示
type ValidationResult struct {
	OK     bool
	Reason string
}

// Err 把失败结果转换为 ValidationError，成功时返回 nil
func (r ValidationResult) Err() error {
	if r.OK {
		return nil
	}
	return types.NewValidationError("", r.Reason)
}

// Limits 校验阈值
type Limits struct {
	MaxSize       int64
	MinSize       int64
	MaxNameLength int
	// Allowed MIME 类型 -> 合法扩展名
	Allowed map[string][]string
}

// DefaultLimits 50 MiB / 1 KiB / 255 字符，pdf/png/jpeg
func DefaultLimits() Limits {
	return Limits{
		MaxSize:       constants.MaxFileSize,
		MinSize:       constants.MinFileSize,
		MaxNameLength: constants.MaxFileNameLength,
		Allowed:       constants.AllowedMimeTypes,
	}
}

// LimitsFromConfig 从配置生成阈值，AllowedTypes 只能收窄内置的白名单
func LimitsFromConfig(cfg config.ResumeConfig) Limits {
	l := DefaultLimits()
	if cfg.MaxFileSizeBytes > 0 {
		l.MaxSize = cfg.MaxFileSizeBytes
	}
	if cfg.MinFileSizeBytes > 0 {
		l.MinSize = cfg.MinFileSizeBytes
	}
	if cfg.MaxNameLength > 0 {
		l.MaxNameLength = cfg.MaxNameLength
	}
	if len(cfg.AllowedTypes) > 0 {
		allowed := make(map[string][]string, len(cfg.AllowedTypes))
		for _, mime := range cfg.AllowedTypes {
			if exts, ok := constants.AllowedMimeTypes[mime]; ok {
				allowed[mime] = exts
			}
		}
		l.Allowed = allowed
	}
	return l
}

// Validator 纯函数式校验器，无 I/O，可并发使用
type Validator struct {
	limits     Limits
	extensions map[string]struct{}
}

// New 创建校验器
func New(limits Limits) *Validator {
	exts := make(map[string]struct{})
	for _, list := range limits.Allowed {
		for _, ext := range list {
			exts[ext] = struct{}{}
		}
	}
	return &Validator{limits: limits, extensions: exts}
}

// Limits 返回当前阈值
func (v *Validator) Limits() Limits {
	return v.limits
}

// Validate 依次检查 MIME 白名单、扩展名、大小上下限、文件名
func (v *Validator) Validate(file types.FileCandidate) ValidationResult {
	allowedExts, ok := v.limits.Allowed[file.Type]
	if !ok {
		return fail("Invalid file type: %s. Please upload %s files only.", file.Type, v.describeAllowed())
	}

	ext := file.Extension()
	if _, ok := v.extensions[ext]; !ok {
		return fail("Invalid file extension: .%s. Please upload %s files only.", ext, v.describeAllowed())
	}
	if !slices.Contains(allowedExts, ext) {
		return fail("File extension .%s does not match file type %s", ext, file.Type)
	}

	if file.Size > v.limits.MaxSize {
		return fail("File too large: %s. Maximum allowed: %s",
			utils.FormatSize(file.Size), utils.FormatSize(v.limits.MaxSize))
	}
	if file.Size < v.limits.MinSize {
		return fail("File appears to be corrupted or too small")
	}

	if file.Name == "" || utf8.RuneCountInString(file.Name) > v.limits.MaxNameLength {
		return fail("Invalid file name")
	}

	return ValidationResult{OK: true}
}

func fail(format string, args ...any) ValidationResult {
	return ValidationResult{Reason: fmt.Sprintf(format, args...)}
}

// describeAllowed 例如 "PDF, PNG, or JPG"
func (v *Validator) describeAllowed() string {
	labels := make([]string, 0, len(v.limits.Allowed))
	for _, exts := range v.limits.Allowed {
		if len(exts) > 0 {
			labels = append(labels, strings.ToUpper(exts[0]))
		}
	}
	sort.Strings(labels)
	// JPG 习惯放在最后
	sort.SliceStable(labels, func(i, j int) bool { return labels[j] == "JPG" && labels[i] != "JPG" })

	switch len(labels) {
	case 0:
		return "supported"
	case 1:
		return labels[0]
	case 2:
		return labels[0] + " or " + labels[1]
	}
	return strings.Join(labels[:len(labels)-1], ", ") + ", or " + labels[len(labels)-1]
}
