package storage

import (
	"testing"
	"time"

	"resume-store-go/internal/types"

	"github.com/stretchr/testify/assert"
)

func TestMinIOObjectKey(t *testing.T) {
	m := &MinIO{now: func() time.Time {
		return time.Date(2025, 3, 9, 23, 30, 0, 0, time.FixedZone("UTC+8", 8*3600))
	}}

	assert.Equal(t, "downloads/2025-03-09/Resume_Jane_2025-03-09.pdf", m.ObjectKey("Resume_Jane_2025-03-09.pdf"))
	assert.Equal(t, "downloads/2025-03-09/cv.pdf", m.ObjectKey("../../cv.pdf"), "只保留文件名部分")
}

func TestResumeMessages(t *testing.T) {
	appID := "app_1"
	at := time.Date(2025, 3, 9, 18, 30, 0, 0, time.FixedZone("UTC+8", 8*3600))
	r := &types.ResumeRecord{
		ID:            "resume_1_u1",
		UserID:        "u1",
		ApplicationID: &appID,
		Name:          "cv.pdf",
		Type:          types.MimePDF,
		Size:          2000,
		Data:          "data:application/pdf;base64,AAAA",
		Checksum:      "1a2b",
		StorageMethod: types.StorageKeyValue,
	}

	stored := NewResumeStoredMessage(r, at)
	assert.NotEmpty(t, stored.MessageID)
	assert.Equal(t, "resume_1_u1", stored.ResumeID)
	assert.Equal(t, "app_1", *stored.ApplicationID)
	assert.Equal(t, types.StorageKeyValue, stored.StorageMethod)
	assert.Equal(t, time.UTC, stored.StoredAt.Location())
	assert.True(t, at.Equal(stored.StoredAt))

	deleted := NewResumeDeletedMessage("resume_1_u1", at)
	assert.NotEqual(t, stored.MessageID, deleted.MessageID)
	assert.Equal(t, "resume_1_u1", deleted.ResumeID)
}
