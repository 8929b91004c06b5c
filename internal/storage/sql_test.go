package storage

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"resume-store-go/internal/config"
	"resume-store-go/internal/tracing"
	"resume-store-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	s, err := NewSQLStore(&config.StructuredConfig{Driver: DriverSQLite, DSN: dsn, LogLevel: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRecord(id, userID string, appID *string, uploaded time.Time) *types.ResumeRecord {
	return &types.ResumeRecord{
		ID:            id,
		ApplicationID: appID,
		UserID:        userID,
		Name:          "cv.pdf",
		OriginalName:  "cv.pdf",
		Type:          types.MimePDF,
		Size:          2000,
		Data:          "data:application/pdf;base64,JVBERi0xLjQ=",
		UploadDate:    uploaded.UTC(),
		Checksum:      "1a2b",
		StorageMethod: types.StorageStructured,
		SavedFileName: "Resume_Jane_2025-03-09.pdf",
	}
}

func TestSQLStorePutGet(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t)

	appID := "app_1"
	rec := sampleRecord("resume_1_u1", "u1", &appID, time.Now())
	rec.Blob = []byte{0x25, 0x50, 0x44, 0x46}
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.Get(ctx, "resume_1_u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.Data, got.Data)
	assert.Equal(t, rec.Blob, got.Blob)
	assert.Equal(t, "app_1", *got.ApplicationID)
	assert.Equal(t, rec.SavedFileName, got.SavedFileName)
	assert.Equal(t, types.StorageStructured, got.StorageMethod)
	assert.WithinDuration(t, rec.UploadDate, got.UploadDate, time.Second)

	missing, err := s.Get(ctx, "resume_missing")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLStoreUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t)

	rec := sampleRecord("resume_2_u1", "u1", nil, time.Now())
	require.NoError(t, s.Put(ctx, rec))

	rec.Name = "renamed.pdf"
	rec.Data = "data:application/pdf;base64,AAAA"
	require.NoError(t, s.Put(ctx, rec))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed.pdf", got.Name)
	assert.Equal(t, "data:application/pdf;base64,AAAA", got.Data)
}

func TestSQLStoreSecondaryLookups(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t)

	appA, appB := "app_a", "app_b"
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(ctx, sampleRecord("resume_3_u1", "u1", &appA, base.Add(time.Hour))))
	require.NoError(t, s.Put(ctx, sampleRecord("resume_4_u1", "u1", &appB, base)))
	require.NoError(t, s.Put(ctx, sampleRecord("resume_5_u2", "u2", &appA, base)))

	byUser, err := s.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, "resume_4_u1", byUser[0].ID, "ordered by upload date")

	byApp, err := s.ListByApplication(ctx, "app_a")
	require.NoError(t, err)
	assert.Len(t, byApp, 2)

	none, err := s.ListByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t)

	require.NoError(t, s.Put(ctx, sampleRecord("resume_6_u1", "u1", nil, time.Now())))
	deleted, err := s.Delete(ctx, "resume_6_u1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.Delete(ctx, "resume_6_u1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestSQLStoreClosedFails(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t)
	require.NoError(t, s.Close())

	assert.Error(t, s.Put(ctx, sampleRecord("resume_7_u1", "u1", nil, time.Now())))
	_, err := s.Get(ctx, "resume_7_u1")
	assert.Error(t, err)
}

func TestNewSQLStoreRejectsUnknownDriver(t *testing.T) {
	_, err := NewSQLStore(&config.StructuredConfig{Driver: "oracle"})
	assert.Error(t, err)
	_, err = NewSQLStore(&config.StructuredConfig{})
	assert.Error(t, err)
	_, err = NewSQLStore(nil)
	assert.Error(t, err)
}

func TestGormSpansCarryStatement(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))

	s := newTestSQLStore(t)
	require.NoError(t, s.Put(context.Background(), sampleRecord("resume_1_u1", "u1", nil, time.Now())))

	var statement string
	for _, span := range rec.Ended() {
		for _, kv := range span.Attributes() {
			if kv.Key == "db.statement" && strings.Contains(kv.Value.AsString(), "INSERT") {
				statement = kv.Value.AsString()
			}
		}
	}
	require.NotEmpty(t, statement)
	assert.LessOrEqual(t, len(statement), tracing.MaxSQLLength)
	assert.Contains(t, statement, "resumes")
}
