package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"time"

	"resume-store-go/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
)

// MinIO 下载归档：把解析出的简历文件放进对象存储，返回预签名下载链接
type MinIO struct {
	client *minio.Client
	cfg    *config.MinIOConfig
	bucket string
	logger *log.Logger
	now    func() time.Time
}

// NewMinIO 创建MinIO客户端并确保存储桶存在
func NewMinIO(cfg *config.MinIOConfig, logger *log.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("MinIO endpoint 未配置")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	logger.Printf("[MinIO] Initializing MinIO client with endpoint: %s, bucket: %s", cfg.Endpoint, cfg.BucketName)

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	bucket := cfg.BucketName
	if bucket == "" {
		bucket = "resume-downloads"
	}
	m := &MinIO{client: client, cfg: cfg, bucket: bucket, logger: logger, now: time.Now}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.ensureBucketExists(ctx, cfg.Location); err != nil {
		return nil, err
	}

	if cfg.ExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, "expire-downloads", cfg.ExpireDays); err != nil {
			logger.Printf("[MinIO] Warning: Failed to set up lifecycle rules: %v", err)
		}
	}

	logger.Printf("[MinIO] Client initialized successfully for endpoint: %s", cfg.Endpoint)
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(ctx context.Context, location string) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	m.logger.Printf("[MinIO] Bucket %s does not exist, attempting to create...", m.bucket)
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", m.bucket, err)
	}
	return nil
}

// setupBucketLifecycle 下载归档按天过期
func (m *MinIO) setupBucketLifecycle(ctx context.Context, ruleID string, expiryDays int) error {
	cfg := lifecycle.NewConfiguration()
	cfg.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, m.bucket, cfg)
}

// ObjectKey downloads/<YYYY-MM-DD>/<fileName>
func (m *MinIO) ObjectKey(fileName string) string {
	return path.Join("downloads", m.now().UTC().Format("2006-01-02"), path.Base(fileName))
}

// Put 上传文件内容并返回预签名下载链接
func (m *MinIO) Put(ctx context.Context, fileName, contentType string, data []byte) (string, error) {
	key := m.ObjectKey(fileName)
	if m.cfg.EnableTestLogging {
		m.logger.Printf("[MinIO-Put] Uploading: ObjectName='%s', Size=%d, ContentType='%s', Bucket='%s'", key, len(data), contentType, m.bucket)
	}

	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:        contentType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", path.Base(fileName)),
	})
	if err != nil {
		return "", fmt.Errorf("上传对象 %s/%s 失败: %w", m.bucket, key, err)
	}
	return m.GetPresignedURL(ctx, key, time.Duration(m.cfg.PresignExpiryMinutes)*time.Minute)
}

// GetPresignedURL 获取预签名URL，expiry <= 0 时为 15 分钟
func (m *MinIO) GetPresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	u, err := m.client.PresignedGetObject(ctx, m.bucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成MinIO预签名URL失败: %w", err)
	}
	return u.String(), nil
}

// DeleteFile 删除归档对象
func (m *MinIO) DeleteFile(ctx context.Context, objectName string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除对象 %s 失败: %w", objectName, err)
	}
	return nil
}
