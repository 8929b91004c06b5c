package models

import (
	"time"

	"resume-store-go/internal/constants"
	"resume-store-go/internal/types"
	"resume-store-go/internal/utils"

	"gorm.io/datatypes"
)

// 结构化后端的 meta_extra 字段键
const (
	metaSavedFileName = "savedFileName"
	metaStorageMethod = "storageMethod"
)

// Resume 结构化后端的简历表
// data 与 blob 可以同时存在；blob 只在结构化后端落库
type Resume struct {
	ID            string         `gorm:"type:varchar(191);primaryKey"`
	ApplicationID *string        `gorm:"type:varchar(191);index:idx_resumes_application_id"`
	UserID        string         `gorm:"type:varchar(191);index:idx_resumes_user_id"`
	Name          string         `gorm:"type:varchar(255)"`
	OriginalName  string         `gorm:"type:varchar(255)"`
	Type          string         `gorm:"type:varchar(64)"`
	Size          int64          `gorm:"not null;default:0"`
	Data          string         // mysql: longtext, postgres: text
	Blob          []byte         // mysql: longblob, postgres: bytea
	UploadDate    time.Time      `gorm:"index:idx_resumes_upload_date"`
	Checksum      string         `gorm:"type:varchar(16)"`
	MetaExtra     datatypes.JSON `json:"meta_extra,omitempty"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Resume) TableName() string {
	return constants.ResumesTable
}

// FromRecord 领域模型 -> 数据库模型
func FromRecord(r *types.ResumeRecord) *Resume {
	return &Resume{
		ID:            r.ID,
		ApplicationID: r.ApplicationID,
		UserID:        r.UserID,
		Name:          r.Name,
		OriginalName:  r.OriginalName,
		Type:          r.Type,
		Size:          r.Size,
		Data:          r.Data,
		Blob:          r.Blob,
		UploadDate:    r.UploadDate,
		Checksum:      r.Checksum,
		MetaExtra: utils.MapToJSON(map[string]string{
			metaSavedFileName: r.SavedFileName,
			metaStorageMethod: string(r.StorageMethod),
		}),
	}
}

// ToRecord 数据库模型 -> 领域模型
func (m *Resume) ToRecord() *types.ResumeRecord {
	meta := utils.JSONToMap(m.MetaExtra)
	method := types.StorageMethod(meta[metaStorageMethod])
	if method == "" {
		method = types.StorageStructured
	}
	return &types.ResumeRecord{
		ID:            m.ID,
		ApplicationID: m.ApplicationID,
		UserID:        m.UserID,
		Name:          m.Name,
		OriginalName:  m.OriginalName,
		Type:          m.Type,
		Size:          m.Size,
		Data:          m.Data,
		Blob:          m.Blob,
		UploadDate:    m.UploadDate,
		Checksum:      m.Checksum,
		StorageMethod: method,
		SavedFileName: meta[metaSavedFileName],
	}
}
