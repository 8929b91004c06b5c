package constants

import "time"

const (
	// MaxFileSize 上传文件的硬上限
	MaxFileSize int64 = 50 * 1024 * 1024
	// MinFileSize 小于该值视为空文件或损坏文件
	MinFileSize int64 = 1024
	// MaxFileNameLength 文件名最大字符数
	MaxFileNameLength = 255

	// KeyValueRecordLimit 键值后端单条记录（序列化后）的上限
	KeyValueRecordLimit int64 = 5 * 1024 * 1024
	// ProbeLimit 容量探测写入的最大字节数
	ProbeLimit int64 = 1024 * 1024

	// EncodeTimeout 读取并编码文件的超时
	EncodeTimeout = 30 * time.Second

	// RetentionMonths 空间不足时清理多少个月以前的记录
	RetentionMonths = 6

	// ChecksumWindow 校验和只覆盖 payload 的前 N 个字符
	ChecksumWindow = 1000

	// ResumesTable 结构化后端的表名
	ResumesTable = "resumes"
)

// AllowedMimeTypes 允许的 MIME 类型 -> 对应的扩展名
var AllowedMimeTypes = map[string][]string{
	"application/pdf": {"pdf"},
	"image/png":       {"png"},
	"image/jpeg":      {"jpg", "jpeg"},
}
