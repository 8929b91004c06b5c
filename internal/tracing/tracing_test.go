package tracing

import (
	"context"
	"errors"
	"testing"

	"resume-store-go/internal/config"
	"resume-store-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "abc", TruncateString("abcdef", 3))
	assert.Equal(t, "ab...yz", TruncateString("abcdefghijklmnopqrstuvwxyz", 7))
}

func TestMaskPII(t *testing.T) {
	assert.Equal(t, "", MaskPII(""))
	assert.Equal(t, "*", MaskPII("a"))
	assert.Equal(t, "张*", MaskPII("张三"))
	assert.Equal(t, "王*明", MaskPII("王小明"))
	assert.Equal(t, "13*******78", MaskPII("13812345678"))

	assert.Equal(t, "Ja****oe", SafeAttributeValue("owner.name", "Jane Doe", 50))
	assert.Equal(t, "resume.pdf", SafeAttributeValue("file.name", "resume.pdf", 50))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorTypeQuota, Classify(types.NewQuotaError("r", "full", nil)))
	assert.Equal(t, ErrorTypeValidation, Classify(types.NewValidationError("", "bad")))
	assert.Equal(t, ErrorTypeTimeout, Classify(types.NewTimeoutError("slow", nil)))
	assert.Equal(t, ErrorTypeInternal, Classify(errors.New("other")))
}

func TestRecordErrorSetsStatus(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	_, span := tp.Tracer("test").Start(context.Background(), "op")

	RecordError(span, errors.New("boom"), ErrorTypeRedis)
	RecordBackendFallback(span, "resume_1_u1", errors.New("db down"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	require.Len(t, ended[0].Events(), 2)
	assert.Equal(t, "storage.fallback", ended[0].Events()[1].Name)
}

func TestInitProviderWithoutEndpoint(t *testing.T) {
	shutdown, err := InitProvider(context.Background(), config.TracingConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
