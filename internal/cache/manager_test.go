package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/experimentkit/config"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.DefaultTTL = time.Minute
	cfg.HealthCheckInterval = 0

	m, err := NewManager(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return mr, m
}

func TestNewManager_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.MaxRetries = -1

	_, err := NewManager(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.RedisConfig{Addr: "redis:6379", DB: 2, PoolSize: 5}, 10*time.Minute)
	assert.Equal(t, "redis:6379", cfg.Addr)
	assert.Equal(t, 2, cfg.DB)
	assert.Equal(t, 5, cfg.PoolSize)
	assert.Equal(t, 2, cfg.MinIdleConns)
	assert.Equal(t, 10*time.Minute, cfg.DefaultTTL)
}

func TestManager_SetGetDelete(t *testing.T) {
	_, m := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", time.Minute))
	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	n, err := m.Exists(ctx, "k", "other")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, m.Delete(ctx, "k"))
	_, err = m.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_DefaultTTLApplied(t *testing.T) {
	mr, m := setupTestRedis(t)
	require.NoError(t, m.Set(context.Background(), "k", "v", 0))
	assert.Equal(t, time.Minute, mr.TTL("k"))

	mr.FastForward(2 * time.Minute)
	_, err := m.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestManager_JSON(t *testing.T) {
	_, m := setupTestRedis(t)
	ctx := context.Background()

	type payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, m.SetJSON(ctx, "j", payload{Name: "x"}, 0))

	var out payload
	require.NoError(t, m.GetJSON(ctx, "j", &out))
	assert.Equal(t, "x", out.Name)
}

func TestManager_Closed(t *testing.T) {
	_, m := setupTestRedis(t)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Ping(context.Background()), ErrClosed)
}

func TestManager_HealthCheckLoopStopsOnClose(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 5 * time.Millisecond

	m, err := NewManager(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.Close())
}
