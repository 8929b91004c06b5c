// Package outbox 简历事件的发件箱：事件先落库，再由 relay 转发到 RabbitMQ
package outbox

import (
	"context"
	"strconv"
	"sync"
	"time"

	"resume-store-go/internal/logger"
	"resume-store-go/internal/storage/models"
	"resume-store-go/internal/tracing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPollingInterval = 5 * time.Second
	defaultBatchSize       = 10
	maxRetryCount          = 5
)

// Publisher 消息发布器，storage.RabbitMQ 实现了该接口
type Publisher interface {
	PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error
}

// MessageRelay 轮询 outbox 表并将消息发布到消息代理
type MessageRelay struct {
	db              *gorm.DB
	publisher       Publisher
	log             zerolog.Logger
	pollingInterval time.Duration
	batchSize       int
	done            chan struct{}
	stopOnce        sync.Once
	tracer          trace.Tracer
}

// NewMessageRelay 创建 relay
func NewMessageRelay(db *gorm.DB, publisher Publisher) *MessageRelay {
	return &MessageRelay{
		db:              db,
		publisher:       publisher,
		log:             logger.Component("outbox-relay"),
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		done:            make(chan struct{}),
		tracer:          otel.Tracer("resume-store-go/outbox"),
	}
}

// Start 后台轮询，直到 Stop
func (r *MessageRelay) Start() {
	r.log.Info().Dur("interval", r.pollingInterval).Msg("MessageRelay starting")
	ticker := time.NewTicker(r.pollingInterval)

	go func() {
		for {
			select {
			case <-r.done:
				ticker.Stop()
				r.log.Info().Msg("MessageRelay stopped")
				return
			case <-ticker.C:
				if _, err := r.ProcessPending(context.Background()); err != nil {
					r.log.Error().Err(err).Msg("处理 outbox 消息失败")
				}
			}
		}
	}()
}

// Stop 停止后台轮询，可重复调用
func (r *MessageRelay) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

// Drain 反复处理直到没有待发送消息，返回发送成功的数量
func (r *MessageRelay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.ProcessPending(ctx)
		total += n
		if err != nil || n == 0 {
			return total, err
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

// ProcessPending 处理一批待发送消息，返回本批发送成功的数量
func (r *MessageRelay) ProcessPending(ctx context.Context) (int, error) {
	var messages []models.OutboxMessage

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return 0, tx.Error
	}
	defer tx.Rollback()

	q := tx.Where("status = ?", models.OutboxPending)
	if r.db.Dialector.Name() != "sqlite" {
		// 多个 relay 实例并行时跳过已被锁定的行
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	if err := q.Order("created_at asc").Order("id asc").Limit(r.batchSize).Find(&messages).Error; err != nil {
		return 0, err
	}

	// 空轮询不创建 span
	if len(messages) == 0 {
		return 0, tx.Commit().Error
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(attribute.Int("messaging.batch.message_count", len(messages))),
	)
	defer span.End()

	sent := 0
	for i := range messages {
		msg := &messages[i]
		err := r.publisher.PublishMessage(ctx, msg.TargetExchange, msg.TargetRoutingKey, []byte(msg.Payload), true)
		if err != nil {
			msg.RetryCount++
			msg.ErrorMessage = err.Error()
			if msg.RetryCount >= maxRetryCount {
				msg.Status = models.OutboxFailed
			}
			tracing.RecordRabbitMQNack(span, strconv.FormatUint(msg.ID, 10), err.Error())
			r.log.Warn().Err(err).
				Uint64("message_id", msg.ID).
				Str("resume_id", msg.AggregateID).
				Int("retries", msg.RetryCount).
				Msg("发布 outbox 消息失败")
		} else {
			now := time.Now().UTC()
			msg.Status = models.OutboxSent
			msg.ProcessedAt = &now
			msg.ErrorMessage = ""
			sent++
		}

		// 更新失败时整个事务回滚，下一轮重新处理
		if err := tx.Save(msg).Error; err != nil {
			return 0, err
		}
	}
	return sent, tx.Commit().Error
}
