package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"resume-store-go/internal/config"
	"resume-store-go/internal/storage"
	"resume-store-go/internal/storage/models"

	"gorm.io/gorm"
)

// 事件类型
const (
	EventResumeStored  = "resume.stored"
	EventResumeDeleted = "resume.deleted"
)

// Writer 把简历事件写入 outbox 表，实现 resumestore.EventPublisher
type Writer struct {
	db  *gorm.DB
	cfg config.RabbitMQConfig
}

// NewWriter 创建 outbox 写入器，db 需要已迁移 outbox_messages 表
func NewWriter(db *gorm.DB, cfg config.RabbitMQConfig) *Writer {
	return &Writer{db: db, cfg: cfg}
}

// PublishStored 写入简历已保存事件
func (w *Writer) PublishStored(ctx context.Context, msg storage.ResumeStoredMessage) error {
	return w.insert(ctx, msg.ResumeID, EventResumeStored, w.cfg.StoredRoutingKey, msg)
}

// PublishDeleted 写入简历已删除事件
func (w *Writer) PublishDeleted(ctx context.Context, msg storage.ResumeDeletedMessage) error {
	return w.insert(ctx, msg.ResumeID, EventResumeDeleted, w.cfg.DeletedRoutingKey, msg)
}

func (w *Writer) insert(ctx context.Context, aggregateID, eventType, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化 outbox 消息失败: %w", err)
	}
	row := models.OutboxMessage{
		AggregateID:      aggregateID,
		EventType:        eventType,
		Payload:          string(body),
		TargetExchange:   w.cfg.ResumeEventsExchange,
		TargetRoutingKey: routingKey,
		Status:           models.OutboxPending,
	}
	if err := w.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("写入 outbox 消息失败: %w", err)
	}
	return nil
}
