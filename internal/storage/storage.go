package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"resume-store-go/internal/config"
	"resume-store-go/internal/logger"
)

// Storage 存储管理器，聚合所有存储相关依赖
// 结构化后端不在这里打开，由简历存储在首次使用时通过 OpenStructured 打开
type Storage struct {
	// 键值存储
	Redis *Redis

	// 下载归档
	MinIO *MinIO

	// 简历事件
	RabbitMQ *RabbitMQ

	structured config.StructuredConfig
}

// NewStorage 创建存储管理器，单个组件失败只记录警告
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	s := &Storage{structured: cfg.Structured}
	var (
		err        error
		initErrors []string
	)

	if cfg.Redis.Address != "" {
		s.Redis, err = NewRedisAdapter(&cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Str("address", cfg.Redis.Address).Msg("初始化Redis失败")
			initErrors = append(initErrors, fmt.Sprintf("Redis: %v", err))
		}
	}

	if cfg.MinIO.Endpoint != "" {
		var minioLogger *log.Logger
		if cfg.Logger.Level == "debug" || cfg.MinIO.EnableTestLogging {
			minioLogger = log.New(os.Stderr, "[MinIOStorage] ", log.LstdFlags|log.Lshortfile)
		} else {
			minioLogger = log.New(io.Discard, "", 0)
		}
		s.MinIO, err = NewMinIO(&cfg.MinIO, minioLogger)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化MinIO失败")
			initErrors = append(initErrors, fmt.Sprintf("MinIO: %v", err))
		}
	}

	if cfg.RabbitMQ.URL != "" {
		s.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			logger.Warn().Err(err).Msg("初始化RabbitMQ失败")
			initErrors = append(initErrors, fmt.Sprintf("RabbitMQ: %v", err))
		}
	}

	if s.Redis == nil && !s.HasStructured() {
		return nil, fmt.Errorf("没有可用的简历存储后端: %s", strings.Join(initErrors, "; "))
	}
	if len(initErrors) > 0 {
		logger.Warn().Str("errors", strings.Join(initErrors, "; ")).Msg("部分存储组件初始化失败")
	}
	return s, nil
}

// HasStructured 是否配置了结构化后端
func (s *Storage) HasStructured() bool {
	return s.structured.Driver != ""
}

// OpenStructured 打开结构化后端
func (s *Storage) OpenStructured(_ context.Context) (*SQLStore, error) {
	if !s.HasStructured() {
		return nil, fmt.Errorf("未配置结构化后端")
	}
	return NewSQLStore(&s.structured)
}

// Close 关闭所有连接
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			logger.Warn().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Warn().Err(err).Msg("关闭Redis连接失败")
		}
	}
}
