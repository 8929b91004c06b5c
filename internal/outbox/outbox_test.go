package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"resume-store-go/internal/config"
	"resume-store-go/internal/outbox"
	"resume-store-go/internal/resumestore"
	"resume-store-go/internal/storage"
	"resume-store-go/internal/storage/models"
	"resume-store-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var rabbitCfg = config.RabbitMQConfig{
	ResumeEventsExchange: "resume.storage.exchange",
	StoredRoutingKey:     "resume.stored",
	DeletedRoutingKey:    "resume.deleted",
}

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	s, err := storage.NewSQLStore(&config.StructuredConfig{Driver: storage.DriverSQLite, DSN: dsn, LogLevel: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s.DB()
}

type published struct {
	exchange, routingKey string
	body                 []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) PublishMessage(_ context.Context, exchange, routingKey string, body []byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{exchange, routingKey, body})
	return nil
}

func TestWriterAndRelay(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	w := outbox.NewWriter(db, rabbitCfg)

	rec := &types.ResumeRecord{ID: "resume_1_u1", Name: "cv.pdf", Type: types.MimePDF, Size: 2000, StorageMethod: types.StorageStructured}
	at := time.Date(2025, 3, 9, 10, 30, 0, 0, time.UTC)
	require.NoError(t, w.PublishStored(ctx, storage.NewResumeStoredMessage(rec, at)))
	require.NoError(t, w.PublishDeleted(ctx, storage.NewResumeDeletedMessage(rec.ID, at)))

	var pending int64
	require.NoError(t, db.Model(&models.OutboxMessage{}).Where("status = ?", models.OutboxPending).Count(&pending).Error)
	assert.Equal(t, int64(2), pending)

	pub := &fakePublisher{}
	relay := outbox.NewMessageRelay(db, pub)
	sent, err := relay.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "resume.storage.exchange", pub.msgs[0].exchange)
	assert.Equal(t, "resume.stored", pub.msgs[0].routingKey)
	assert.Equal(t, "resume.deleted", pub.msgs[1].routingKey)

	var stored storage.ResumeStoredMessage
	require.NoError(t, json.Unmarshal(pub.msgs[0].body, &stored))
	assert.Equal(t, "resume_1_u1", stored.ResumeID)
	assert.Equal(t, types.StorageStructured, stored.StorageMethod)

	var rows []models.OutboxMessage
	require.NoError(t, db.Find(&rows).Error)
	for _, row := range rows {
		assert.Equal(t, models.OutboxSent, row.Status)
		assert.NotNil(t, row.ProcessedAt)
	}
}

func TestRelayMarksFailedAfterRetries(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	w := outbox.NewWriter(db, rabbitCfg)
	require.NoError(t, w.PublishDeleted(ctx, storage.NewResumeDeletedMessage("resume_1_u1", time.Now())))

	pub := &fakePublisher{err: errors.New("channel closed")}
	relay := outbox.NewMessageRelay(db, pub)
	for i := 0; i < 5; i++ {
		sent, err := relay.ProcessPending(ctx)
		require.NoError(t, err)
		assert.Zero(t, sent)
	}

	var row models.OutboxMessage
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, models.OutboxFailed, row.Status)
	assert.Equal(t, 5, row.RetryCount)
	assert.Equal(t, "channel closed", row.ErrorMessage)

	sent, err := relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent, "失败的消息不再重试")
}

// TestStoreEventsThroughOutbox 简历存储的事件写入同一个库的 outbox 表
func TestStoreEventsThroughOutbox(t *testing.T) {
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	sqlStore, err := storage.NewSQLStore(&config.StructuredConfig{Driver: storage.DriverSQLite, DSN: dsn, LogLevel: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlStore.Close() })

	store := resumestore.New(resumestore.Options{
		Structured: func(context.Context) (resumestore.StructuredBackend, error) { return sqlStore, nil },
		Publisher:  outbox.NewWriter(sqlStore.DB(), rabbitCfg),
	})
	_, err = store.Save(ctx, &types.ResumeRecord{
		ID:   "resume_1_u1",
		Name: "cv.pdf",
		Type: types.MimePDF,
		Size: 4,
		Data: "data:application/pdf;base64,JVBERg==",
	})
	require.NoError(t, err)
	require.True(t, store.Delete(ctx, "resume_1_u1"))

	var rows []models.OutboxMessage
	require.NoError(t, sqlStore.DB().Order("id asc").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, outbox.EventResumeStored, rows[0].EventType)
	assert.Equal(t, outbox.EventResumeDeleted, rows[1].EventType)
	assert.Equal(t, "resume_1_u1", rows[1].AggregateID)
}
