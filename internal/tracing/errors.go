package tracing

import (
	"errors"

	"resume-store-go/internal/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorType 定义错误类型，便于分类和过滤
type ErrorType string

const (
	// ErrorTypeDB 结构化后端错误
	ErrorTypeDB ErrorType = "db"
	// ErrorTypeRedis 键值后端错误
	ErrorTypeRedis ErrorType = "redis"
	// ErrorTypeQuota 空间不足
	ErrorTypeQuota ErrorType = "quota"
	// ErrorTypeObjectStore MinIO错误
	ErrorTypeObjectStore ErrorType = "object_store"
	// ErrorTypeRabbitMQ RabbitMQ错误
	ErrorTypeRabbitMQ ErrorType = "rabbitmq"
	// ErrorTypeValidation 验证错误
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeTimeout 超时错误
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeInternal 内部错误
	ErrorTypeInternal ErrorType = "internal"
)

// Classify 根据错误链推断错误类型
func Classify(err error) ErrorType {
	switch {
	case errors.Is(err, types.ErrQuotaExceeded):
		return ErrorTypeQuota
	case errors.Is(err, types.ErrValidation):
		return ErrorTypeValidation
	case errors.Is(err, types.ErrTimeout):
		return ErrorTypeTimeout
	default:
		return ErrorTypeInternal
	}
}

// RecordError 记录错误，添加统一的错误类型和详情
func RecordError(span trace.Span, err error, errorType ErrorType) {
	RecordErrorWithInfo(span, err, errorType)
}

// RecordErrorWithInfo 记录错误并添加额外信息
func RecordErrorWithInfo(span trace.Span, err error, errorType ErrorType, attributes ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}

	span.RecordError(err)
	span.SetAttributes(
		attribute.String("error.type", string(errorType)),
		attribute.String("error.message", TruncateString(err.Error(), DefaultMaxLength)),
	)
	if len(attributes) > 0 {
		span.SetAttributes(attributes...)
	}
	span.SetStatus(codes.Error, err.Error())
}

// RecordBackendFallback 记录结构化后端切换到键值后端
func RecordBackendFallback(span trace.Span, resumeID string, cause error) {
	if span == nil {
		return
	}
	msg := "structured backend unavailable"
	if cause != nil {
		msg = cause.Error()
	}
	span.AddEvent("storage.fallback", trace.WithAttributes(
		attribute.String("resume.id", resumeID),
		attribute.String("storage.from", string(types.StorageStructured)),
		attribute.String("storage.to", string(types.StorageKeyValue)),
		attribute.String("error.message", TruncateString(msg, DefaultMaxLength)),
	))
}

// RecordRabbitMQNack 记录RabbitMQ消息被拒绝的错误
func RecordRabbitMQNack(span trace.Span, messageID string, reason string) {
	if span == nil {
		return
	}

	errMsg := "message not acknowledged by broker"
	if reason != "" {
		errMsg = reason
	}

	span.SetAttributes(
		attribute.String("error.type", string(ErrorTypeRabbitMQ)),
		attribute.String("error.message", errMsg),
		attribute.String("messaging.message_id", messageID),
		attribute.String("messaging.error_type", "nack"),
		attribute.Bool("messaging.rabbitmq.confirmed", false),
	)
	span.SetStatus(codes.Error, errMsg)
}
