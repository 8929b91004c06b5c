package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"resume-store-go/internal/config"
	"resume-store-go/internal/tracing"
	"resume-store-go/internal/types"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotFound is returned when a key is not found in Redis.
// It wraps the underlying redis.Nil error for abstraction.
var ErrNotFound = redis.Nil

var redisTracer = otel.Tracer("resume-store-go/storage/redis")

const scanBatch = 200

// Redis 键值后端，value 为完整 JSON 字符串
// QuotaBytes > 0 时在写入前按全部字符串值的总长度做配额检查
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter 创建 Redis 连接并注册 OpenTelemetry 钩子
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		// 重试设置
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,
	})

	r, err := NewRedisFromClient(client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}
	return r, nil
}

// NewRedisFromClient 包装已有客户端（测试中为 miniredis）
func NewRedisFromClient(client *redis.Client, cfg *config.RedisConfig) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if cfg == nil {
		cfg = &config.RedisConfig{}
	}
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}
	return &Redis{Client: client, config: cfg}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// QuotaBytes 配置的配额，0 表示不限制
func (r *Redis) QuotaBytes() int64 {
	return r.config.QuotaBytes
}

// Get 获取键的值，不存在时返回 ErrNotFound
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis客户端未初始化")
	}
	return r.Client.Get(ctx, key).Result()
}

// Set 写入键值
// 超出配额或 Redis 报 OOM 时返回 ErrQuotaExceeded
func (r *Redis) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	ctx, span := redisTracer.Start(ctx, "Redis.Set", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		semconv.DBSystemRedis,
		attribute.String("db.operation", "SET"),
		attribute.String("db.redis.key", tracing.SafeRedisKey(key)),
		attribute.Int("db.redis.value_length", len(value)),
		// 避免与 redisotel 钩子产生的 span 重复传播
		attribute.Bool("otel.propagate_to_child", false),
	)

	if quota := r.config.QuotaBytes; quota > 0 {
		used, err := r.usedBytesExcluding(ctx, key)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeRedis)
			return fmt.Errorf("统计键值空间失败: %w", err)
		}
		if used+int64(len(value)) > quota {
			err := types.NewQuotaError("", fmt.Sprintf("writing %d bytes to %s would exceed quota (%d of %d bytes used)",
				len(value), key, used, quota), nil)
			tracing.RecordError(span, err, tracing.ErrorTypeQuota)
			return err
		}
	}

	if err := r.Client.Set(ctx, key, value, expiration).Err(); err != nil {
		if isOOM(err) {
			qerr := types.NewQuotaError("", "redis maxmemory reached", err)
			tracing.RecordError(span, qerr, tracing.ErrorTypeQuota)
			return qerr
		}
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// Del 删除键，返回实际删除的数量
func (r *Redis) Del(ctx context.Context, keys ...string) (int64, error) {
	if r.Client == nil {
		return 0, fmt.Errorf("redis客户端未初始化")
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return r.Client.Del(ctx, keys...).Result()
}

// ScanKeys 用 SCAN 遍历指定前缀的全部键
func (r *Redis) ScanKeys(ctx context.Context, prefix string) ([]string, error) {
	if r.Client == nil {
		return nil, fmt.Errorf("redis客户端未初始化")
	}
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.Client.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// UsedBytes 所有字符串值的长度之和
func (r *Redis) UsedBytes(ctx context.Context) (int64, error) {
	return r.usedBytesExcluding(ctx, "")
}

// usedBytesExcluding 统计时跳过 exclude（即将被覆盖的键）
func (r *Redis) usedBytesExcluding(ctx context.Context, exclude string) (int64, error) {
	keys, err := r.ScanKeys(ctx, "")
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	pipe := r.Client.Pipeline()
	cmds := make([]*redis.IntCmd, 0, len(keys))
	for _, k := range keys {
		if k == exclude {
			continue
		}
		cmds = append(cmds, pipe.StrLen(ctx, k))
	}
	if len(cmds) == 0 {
		return 0, nil
	}
	// 非字符串键会返回 WRONGTYPE，单条命令的错误在下面忽略
	if _, err := pipe.Exec(ctx); err != nil && !isWrongType(err) {
		return 0, err
	}

	var total int64
	for _, c := range cmds {
		if n, err := c.Result(); err == nil {
			total += n
		}
	}
	return total, nil
}

func isOOM(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "OOM")
}

func isWrongType(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "WRONGTYPE")
}

// IsNotFound 判断是否为键不存在
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
