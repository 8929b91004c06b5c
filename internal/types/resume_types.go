package types

import (
	"strings"
	"time"
)

// StorageMethod 标识实际持久化记录的后端
type StorageMethod string

const (
	// StorageStructured 结构化后端（带索引的关系型存储）
	StorageStructured StorageMethod = "structured"
	// StorageKeyValue 键值后端（扁平的字符串键存储）
	StorageKeyValue StorageMethod = "keyvalue"
)

// 允许上传的 MIME 类型
const (
	MimePDF  = "application/pdf"
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
)

// ResumeRecord 简历记录：元数据 + 编码后的文件内容
type ResumeRecord struct {
	ID            string        `json:"id"`
	ApplicationID *string       `json:"applicationId"`
	UserID        string        `json:"userId,omitempty"`
	Name          string        `json:"name"`
	OriginalName  string        `json:"originalName,omitempty"`
	Type          string        `json:"type"`
	Size          int64         `json:"size"`
	Data          string        `json:"data,omitempty"` // data:<mime>;base64,<payload>
	UploadDate    time.Time     `json:"uploadDate"`
	Checksum      string        `json:"checksum,omitempty"`
	StorageMethod StorageMethod `json:"storageMethod,omitempty"`
	SavedFileName string        `json:"savedFileName,omitempty"`

	// Blob 原始二进制内容，只有结构化后端会保存，JSON 中永不出现
	Blob []byte `json:"-"`
}

// HasPayload 记录是否携带 data 或 blob
func (r *ResumeRecord) HasPayload() bool {
	return r != nil && (r.Data != "" || len(r.Blob) > 0)
}

// Clone 返回浅拷贝，Blob 与 ApplicationID 单独复制
func (r *ResumeRecord) Clone() *ResumeRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.ApplicationID != nil {
		appID := *r.ApplicationID
		c.ApplicationID = &appID
	}
	if r.Blob != nil {
		c.Blob = append([]byte(nil), r.Blob...)
	}
	return &c
}

// FileInfo 无法展示内容时返回的元数据
type FileInfo struct {
	ID         string    `json:"id,omitempty"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Size       int64     `json:"size"`
	UploadDate time.Time `json:"uploadDate"`
}

// Info 提取记录的元数据部分
func (r *ResumeRecord) Info() FileInfo {
	if r == nil {
		return FileInfo{}
	}
	return FileInfo{
		ID:         r.ID,
		Name:       r.Name,
		Type:       r.Type,
		Size:       r.Size,
		UploadDate: r.UploadDate,
	}
}

// FileCandidate 待校验的上传文件描述
type FileCandidate struct {
	Name string
	Type string
	Size int64
}

// Extension 返回小写扩展名（不含点），没有点时返回整个小写文件名
func (f FileCandidate) Extension() string {
	name := strings.ToLower(f.Name)
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// Owner 上传简历的用户
type Owner struct {
	ID   string
	Name string
}
