package models

import "time"

// outbox 消息状态
const (
	OutboxPending = "PENDING"
	OutboxSent    = "SENT"
	OutboxFailed  = "FAILED"
)

// OutboxMessage 待转发到 RabbitMQ 的简历事件，与简历记录写在同一个库里
type OutboxMessage struct {
	ID               uint64     `gorm:"primaryKey;autoIncrement"`
	AggregateID      string     `gorm:"type:varchar(191);not null;index"` // 简历 ID
	EventType        string     `gorm:"type:varchar(64);not null"`
	Payload          string     `gorm:"type:text;not null"`
	TargetExchange   string     `gorm:"type:varchar(255);not null"`
	TargetRoutingKey string     `gorm:"type:varchar(255);not null"`
	Status           string     `gorm:"type:varchar(20);default:'PENDING';not null;index:idx_outbox_status_created_at"`
	RetryCount       int        `gorm:"default:0"`
	CreatedAt        time.Time  `gorm:"index:idx_outbox_status_created_at,sort:asc"`
	ProcessedAt      *time.Time `gorm:"default:null"`
	ErrorMessage     string     `gorm:"type:text"`
}

// TableName outbox 表名
func (OutboxMessage) TableName() string {
	return "outbox_messages"
}
