package storage

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"resume-store-go/internal/config"
	"resume-store-go/internal/types"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T, quota int64) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r, err := NewRedisFromClient(client, &config.RedisConfig{Address: mr.Addr(), QuotaBytes: quota})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestRedisGetSetDel(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRedis(t, 0)

	require.NoError(t, r.Ping(ctx))
	require.NoError(t, r.Set(ctx, "resume_a", `{"id":"a"}`, 0))

	v, err := r.Get(ctx, "resume_a")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"a"}`, v)

	_, err = r.Get(ctx, "resume_missing")
	assert.True(t, IsNotFound(err))

	n, err := r.Del(ctx, "resume_a", "resume_missing")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = r.Del(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisScanKeys(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t, 0)

	for i := 0; i < 450; i++ {
		require.NoError(t, mr.Set(fmt.Sprintf("resume_%d", i), "v"))
	}
	require.NoError(t, mr.Set("careerPlatformApplicants", "[]"))

	keys, err := r.ScanKeys(ctx, "resume_")
	require.NoError(t, err)
	assert.Len(t, keys, 450)
}

func TestRedisQuota(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t, 100)

	require.NoError(t, r.Set(ctx, "k1", strings.Repeat("a", 60), 0))

	err := r.Set(ctx, "k2", strings.Repeat("b", 50), 0)
	assert.ErrorIs(t, err, types.ErrQuotaExceeded)
	assert.False(t, mr.Exists("k2"))

	// 覆盖已有键只计算差值
	require.NoError(t, r.Set(ctx, "k1", strings.Repeat("c", 90), 0))

	used, err := r.UsedBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(90), used)

	// 非字符串键不影响统计
	_, err = mr.Lpush("some_list", "x")
	require.NoError(t, err)
	used, err = r.UsedBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(90), used)
}
