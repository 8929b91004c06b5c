package processor

import (
	"fmt"
	"strings"
	"time"

	"resume-store-go/internal/encoder"
	"resume-store-go/internal/types"
	"resume-store-go/internal/utils"
)

// RecordBuilder 由校验通过的文件和编码结果组装简历记录
type RecordBuilder struct {
	now func() time.Time
}

// NewRecordBuilder 创建构建器，now 为 nil 时使用 time.Now
func NewRecordBuilder(now func() time.Time) *RecordBuilder {
	if now == nil {
		now = time.Now
	}
	return &RecordBuilder{now: now}
}

// Build 组装记录
// StorageMethod 留空，由存储层在保存时决定；记录中只有编码后的字符串，不带原始二进制
func (b *RecordBuilder) Build(file types.FileCandidate, payload string, owner types.Owner, applicationID *string) *types.ResumeRecord {
	now := b.now()
	var appID *string
	if applicationID != nil {
		appID = utils.StringPtr(*applicationID)
	}
	return &types.ResumeRecord{
		ID:            RecordID(now, owner.ID),
		ApplicationID: appID,
		UserID:        owner.ID,
		Name:          file.Name,
		OriginalName:  file.Name,
		Type:          file.Type,
		Size:          file.Size,
		Data:          payload,
		UploadDate:    now.UTC(),
		Checksum:      encoder.Checksum(payload),
		SavedFileName: SavedFileName(owner.Name, now, file.Extension()),
	}
}

// RecordID resume_<毫秒时间戳>_<ownerID>
func RecordID(t time.Time, ownerID string) string {
	return fmt.Sprintf("resume_%d_%s", t.UnixMilli(), ownerID)
}

// SavedFileName 展示用文件名 Resume_<姓名>_<YYYY-MM-DD>.<ext>
// 姓名只保留 ASCII 字母和数字，全部被过滤时省略该段
func SavedFileName(ownerName string, t time.Time, ext string) string {
	clean := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, ownerName)

	parts := []string{"Resume"}
	if clean != "" {
		parts = append(parts, clean)
	}
	parts = append(parts, t.Format("2006-01-02"))
	name := strings.Join(parts, "_")
	if ext != "" {
		name += "." + ext
	}
	return name
}
