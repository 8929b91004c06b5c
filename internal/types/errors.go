package types

import (
	"errors"
	"fmt"
)

// 基础错误类型
var (
	ErrValidation      = errors.New("简历校验失败")
	ErrTimeout         = errors.New("读取文件超时")
	ErrQuotaExceeded   = errors.New("存储空间不足")
	ErrStorage         = errors.New("存储操作失败")
	ErrNoDataAvailable = errors.New("没有可用的简历数据")
	ErrCorrupt         = errors.New("简历数据已损坏")
)

// ResumeError 带操作上下文的简历错误
type ResumeError struct {
	ResumeID string
	Op       string
	BaseErr  error
	Detail   string
	Cause    error
}

func (e *ResumeError) Error() string {
	msg := e.BaseErr.Error()
	if e.Op != "" || e.ResumeID != "" {
		msg = fmt.Sprintf("%s (操作:%s, ID:%s)", msg, e.Op, e.ResumeID)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap 同时暴露错误类别和底层原因
func (e *ResumeError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.BaseErr}
	}
	return []error{e.BaseErr, e.Cause}
}

// NewValidationError 校验错误
func NewValidationError(id, detail string) error {
	return &ResumeError{ResumeID: id, Op: "validate", BaseErr: ErrValidation, Detail: detail}
}

// NewTimeoutError 编码超时
func NewTimeoutError(detail string, cause error) error {
	return &ResumeError{Op: "encode", BaseErr: ErrTimeout, Detail: detail, Cause: cause}
}

// NewQuotaError 键值后端空间不足
func NewQuotaError(id, detail string, cause error) error {
	return &ResumeError{ResumeID: id, Op: "save", BaseErr: ErrQuotaExceeded, Detail: detail, Cause: cause}
}

// NewStorageError 通用存储错误
func NewStorageError(id, op, detail string, cause error) error {
	return &ResumeError{ResumeID: id, Op: op, BaseErr: ErrStorage, Detail: detail, Cause: cause}
}

// NewNoDataError 下载时所有解析步骤都没有拿到内容
func NewNoDataError(id, detail string) error {
	return &ResumeError{ResumeID: id, Op: "download", BaseErr: ErrNoDataAvailable, Detail: detail}
}

// NewCorruptError data 与声明的 type 不一致
func NewCorruptError(id, detail string) error {
	return &ResumeError{ResumeID: id, Op: "decode", BaseErr: ErrCorrupt, Detail: detail}
}
