package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RedisConfig 键值后端（Redis）配置
type RedisConfig struct {
	Address  string `yaml:"address" env:"RESUME_REDIS_ADDRESS"`
	Password string `yaml:"password" env:"RESUME_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"RESUME_REDIS_DB"`
	// 连接池设置
	PoolSize     int `yaml:"pool_size"`      // 连接池大小
	MinIdleConns int `yaml:"min_idle_conns"` // 最小空闲连接数
	// 超时设置
	DialTimeoutSeconds  int `yaml:"dial_timeout_seconds"`  // 连接超时(秒)
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`  // 读取超时(秒)
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"` // 写入超时(秒)
	// 重试设置
	MaxRetries        int `yaml:"max_retries"`          // 最大重试次数
	MinRetryBackoffMS int `yaml:"min_retry_backoff_ms"` // 最小重试间隔(毫秒)
	MaxRetryBackoffMS int `yaml:"max_retry_backoff_ms"` // 最大重试间隔(毫秒)
	// QuotaBytes 键值后端可用的总字节数，0 表示不限制（仍会识别 Redis 的 OOM 错误）
	QuotaBytes int64 `yaml:"quota_bytes" env:"RESUME_REDIS_QUOTA_BYTES"`
}

// StructuredConfig 结构化后端配置
type StructuredConfig struct {
	// Driver 取值 mysql / postgres / sqlite，为空表示当前环境没有结构化后端
	Driver string `yaml:"driver" env:"RESUME_STRUCTURED_DRIVER"`
	// DSN 直接指定连接串时优先使用
	DSN string `yaml:"dsn" env:"RESUME_STRUCTURED_DSN"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	// SQLitePath sqlite 文件路径
	SQLitePath string `yaml:"sqlite_path"`
	// 连接池设置
	MaxIdleConns           int `yaml:"max_idle_conns"`
	MaxOpenConns           int `yaml:"max_open_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
	// 超时设置
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds"`
	// LogLevel GORM 日志级别(1-4)
	LogLevel int `yaml:"log_level"`
}

// MinIOConfig 下载归档用的对象存储配置
type MinIOConfig struct {
	Endpoint        string `yaml:"endpoint" env:"RESUME_MINIO_ENDPOINT"`
	AccessKeyID     string `yaml:"accessKeyID" env:"RESUME_MINIO_ACCESS_KEY"`
	SecretAccessKey string `yaml:"secretAccessKey" env:"RESUME_MINIO_SECRET_KEY"`
	UseSSL          bool   `yaml:"useSSL"`
	BucketName      string `yaml:"bucketName"`
	Location        string `yaml:"location"`
	// PresignExpiryMinutes 预签名下载链接的有效期
	PresignExpiryMinutes int `yaml:"presign_expiry_minutes"`
	// ExpireDays 归档对象的生命周期，0 表示不设置
	ExpireDays        int  `yaml:"expire_days"`
	EnableTestLogging bool `yaml:"enable_test_logging,omitempty"`
}

// RabbitMQConfig 简历事件发布配置
type RabbitMQConfig struct {
	URL                  string `yaml:"url" env:"RESUME_RABBITMQ_URL"`
	ResumeEventsExchange string `yaml:"resume_events_exchange"`
	StoredRoutingKey     string `yaml:"stored_routing_key"`
	DeletedRoutingKey    string `yaml:"deleted_routing_key"`
	// UseOutbox 事件先写入结构化后端的 outbox 表，由 relay 转发
	UseOutbox            bool   `yaml:"use_outbox" env:"RESUME_RABBITMQ_USE_OUTBOX"`
}

// ResumeConfig 校验、编码与存储策略
type ResumeConfig struct {
	MaxFileSizeBytes   int64    `yaml:"max_file_size_bytes"`
	MinFileSizeBytes   int64    `yaml:"min_file_size_bytes"`
	MaxNameLength      int      `yaml:"max_name_length"`
	AllowedTypes       []string `yaml:"allowed_types"`
	EncodeTimeout      string   `yaml:"encode_timeout"` // 例如 "30s"
	KVRecordLimitBytes int64    `yaml:"kv_record_limit_bytes"`
	ProbeLimitBytes    int64    `yaml:"probe_limit_bytes"`
	RetentionMonths    int      `yaml:"retention_months"`
}

// TracingConfig OpenTelemetry 导出配置，Endpoint 为空时不导出
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint" env:"RESUME_OTLP_ENDPOINT"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level        string `yaml:"level" env:"RESUME_LOG_LEVEL"` // debug, info, warn, error
	Format       string `yaml:"format"`                       // json, pretty
	TimeFormat   string `yaml:"time_format"`                  // 时间格式
	ReportCaller bool   `yaml:"report_caller"`                // 是否报告调用位置
}

// Config 应用程序配置
type Config struct {
	Logger     LoggerConfig     `yaml:"logger"`
	Resume     ResumeConfig     `yaml:"resume"`
	Structured StructuredConfig `yaml:"structured"`
	Redis      RedisConfig      `yaml:"redis"`
	MinIO      MinIOConfig      `yaml:"minio"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// LoadConfig 从文件加载配置，再用 .env 和环境变量覆盖
// configPath 为空时依次查找常见位置，都找不到则使用默认配置
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	if configPath == "" {
		searchPaths := []string{
			"config.yaml",
			"../config.yaml",
			filepath.Join(os.Getenv("HOME"), ".resume-store", "config.yaml"),
		}
		for _, path := range searchPaths {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}
	}

	cfg := createDefaultConfig()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// LoadConfigFromFileOnly 只读取文件，不做环境变量覆盖
func LoadConfigFromFileOnly(configPath string) (*Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("必须提供配置文件路径")
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	cfg := createDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults 补齐 YAML 中显式写成零值的字段
func (c *Config) applyDefaults() {
	d := createDefaultConfig()
	if c.Resume.MaxFileSizeBytes <= 0 {
		c.Resume.MaxFileSizeBytes = d.Resume.MaxFileSizeBytes
	}
	if c.Resume.MinFileSizeBytes <= 0 {
		c.Resume.MinFileSizeBytes = d.Resume.MinFileSizeBytes
	}
	if c.Resume.MaxNameLength <= 0 {
		c.Resume.MaxNameLength = d.Resume.MaxNameLength
	}
	if len(c.Resume.AllowedTypes) == 0 {
		c.Resume.AllowedTypes = d.Resume.AllowedTypes
	}
	if c.Resume.EncodeTimeout == "" {
		c.Resume.EncodeTimeout = d.Resume.EncodeTimeout
	}
	if c.Resume.KVRecordLimitBytes <= 0 {
		c.Resume.KVRecordLimitBytes = d.Resume.KVRecordLimitBytes
	}
	if c.Resume.ProbeLimitBytes <= 0 {
		c.Resume.ProbeLimitBytes = d.Resume.ProbeLimitBytes
	}
	if c.Resume.RetentionMonths <= 0 {
		c.Resume.RetentionMonths = d.Resume.RetentionMonths
	}
	if c.MinIO.PresignExpiryMinutes <= 0 {
		c.MinIO.PresignExpiryMinutes = d.MinIO.PresignExpiryMinutes
	}
	if c.RabbitMQ.ResumeEventsExchange == "" {
		c.RabbitMQ.ResumeEventsExchange = d.RabbitMQ.ResumeEventsExchange
	}
	if c.RabbitMQ.StoredRoutingKey == "" {
		c.RabbitMQ.StoredRoutingKey = d.RabbitMQ.StoredRoutingKey
	}
	if c.RabbitMQ.DeletedRoutingKey == "" {
		c.RabbitMQ.DeletedRoutingKey = d.RabbitMQ.DeletedRoutingKey
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = d.Tracing.ServiceName
	}
}

// createDefaultConfig 默认配置：sqlite 结构化后端 + 本地 Redis
func createDefaultConfig() *Config {
	cfg := &Config{}

	cfg.Logger.Level = "info"
	cfg.Logger.Format = "pretty"
	cfg.Logger.TimeFormat = "2006-01-02 15:04:05"

	cfg.Resume.MaxFileSizeBytes = 50 * 1024 * 1024
	cfg.Resume.MinFileSizeBytes = 1024
	cfg.Resume.MaxNameLength = 255
	cfg.Resume.AllowedTypes = []string{"application/pdf", "image/png", "image/jpeg"}
	cfg.Resume.EncodeTimeout = "30s"
	cfg.Resume.KVRecordLimitBytes = 5 * 1024 * 1024
	cfg.Resume.ProbeLimitBytes = 1024 * 1024
	cfg.Resume.RetentionMonths = 6

	cfg.Structured.Driver = "sqlite"
	cfg.Structured.SQLitePath = "resumes.db"
	cfg.Structured.Port = 3306
	cfg.Structured.MaxIdleConns = 10
	cfg.Structured.MaxOpenConns = 100
	cfg.Structured.ConnMaxLifetimeMinutes = 60
	cfg.Structured.ConnectTimeoutSeconds = 10
	cfg.Structured.LogLevel = 1

	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.PoolSize = 10
	cfg.Redis.MinIdleConns = 2
	cfg.Redis.DialTimeoutSeconds = 5
	cfg.Redis.ReadTimeoutSeconds = 3
	cfg.Redis.WriteTimeoutSeconds = 3
	cfg.Redis.MaxRetries = 3
	cfg.Redis.MinRetryBackoffMS = 8
	cfg.Redis.MaxRetryBackoffMS = 512

	cfg.MinIO.BucketName = "resume-downloads"
	cfg.MinIO.PresignExpiryMinutes = 15

	cfg.RabbitMQ.ResumeEventsExchange = "resume.storage.exchange"
	cfg.RabbitMQ.StoredRoutingKey = "resume.stored"
	cfg.RabbitMQ.DeletedRoutingKey = "resume.deleted"

	cfg.Tracing.ServiceName = "resume-store"
	cfg.Tracing.Insecure = true

	return cfg
}

// CreateSampleConfig 生成一份示例配置文件，已存在时不覆盖
func CreateSampleConfig(filePath string) error {
	if _, err := os.Stat(filePath); err == nil {
		return fmt.Errorf("文件 '%s' 已存在，不会覆盖", filePath)
	}
	data, err := yaml.Marshal(createDefaultConfig())
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("写入示例配置文件 '%s' 失败: %w", filePath, err)
	}
	return nil
}

// EncodeTimeout 解析编码超时，格式错误时回退为 30s
func (c *Config) EncodeTimeout() time.Duration {
	return GetDuration(c.Resume.EncodeTimeout, 30*time.Second)
}

// GetDuration utility to parse duration strings from config
func GetDuration(durationStr string, defaultDuration time.Duration) time.Duration {
	if durationStr == "" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return defaultDuration
	}
	return d
}
