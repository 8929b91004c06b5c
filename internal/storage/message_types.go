package storage

import (
	"time"

	"resume-store-go/internal/types"

	"github.com/google/uuid"
)

// ResumeStoredMessage 简历保存成功后发布的事件，不携带文件内容
type ResumeStoredMessage struct {
	MessageID     string              `json:"message_id"`
	ResumeID      string              `json:"resume_id"`
	UserID        string              `json:"user_id,omitempty"`
	ApplicationID *string             `json:"application_id,omitempty"`
	FileName      string              `json:"file_name"`
	ContentType   string              `json:"content_type"`
	Size          int64               `json:"size"`
	Checksum      string              `json:"checksum,omitempty"`
	StorageMethod types.StorageMethod `json:"storage_method"`
	StoredAt      time.Time           `json:"stored_at"`
}

// ResumeDeletedMessage 简历删除后发布的事件
type ResumeDeletedMessage struct {
	MessageID string    `json:"message_id"`
	ResumeID  string    `json:"resume_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// NewResumeStoredMessage 由已保存的记录生成事件
func NewResumeStoredMessage(r *types.ResumeRecord, at time.Time) ResumeStoredMessage {
	return ResumeStoredMessage{
		MessageID:     uuid.NewString(),
		ResumeID:      r.ID,
		UserID:        r.UserID,
		ApplicationID: r.ApplicationID,
		FileName:      r.Name,
		ContentType:   r.Type,
		Size:          r.Size,
		Checksum:      r.Checksum,
		StorageMethod: r.StorageMethod,
		StoredAt:      at.UTC(),
	}
}

// NewResumeDeletedMessage 删除事件
func NewResumeDeletedMessage(resumeID string, at time.Time) ResumeDeletedMessage {
	return ResumeDeletedMessage{
		MessageID: uuid.NewString(),
		ResumeID:  resumeID,
		DeletedAt: at.UTC(),
	}
}
