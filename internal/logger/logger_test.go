package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"resume-store-go/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{Level: "debug", Format: "json", Output: &buf})
	t.Cleanup(func() { logger.Init(logger.Config{Level: "info"}) })

	l := logger.Component("resumestore")
	l.Info().Str("resume_id", "resume_1_u1").Msg("saved")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "resumestore", entry["component"])
	assert.Equal(t, "resume_1_u1", entry["resume_id"])
	assert.Equal(t, "info", entry["level"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{Level: "warn", Output: &buf})
	t.Cleanup(func() { logger.Init(logger.Config{Level: "info"}) })

	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())
	logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestCtxFallsBackToGlobal(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{Level: "info", Output: &buf})
	t.Cleanup(func() { logger.Init(logger.Config{Level: "info"}) })

	logger.Ctx(context.Background()).Info().Msg("from ctx")
	assert.Contains(t, buf.String(), "from ctx")
}
