package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/lian/config"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := config.CacheConfig{
		Enabled:   true,
		Addr:      mr.Addr(),
		KeyPrefix: "test",
		TTL:       time.Minute,
	}

	manager, err := NewManager(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

func TestNewManager(t *testing.T) {
	_, manager := setupTestRedis(t)

	assert.NotNil(t, manager.redis)
	assert.Equal(t, time.Minute, manager.config.TTL)
}

func TestNewManager_DefaultTTL(t *testing.T) {
	mr := miniredis.RunT(t)

	manager, err := NewManager(config.CacheConfig{Addr: mr.Addr()}, zap.NewNop(), nil)
	require.NoError(t, err)
	defer manager.Close()

	assert.Equal(t, config.DefaultCacheConfig().TTL, manager.config.TTL)
}

func TestNewManager_Unreachable(t *testing.T) {
	manager, err := NewManager(config.CacheConfig{Addr: "localhost:1"}, zap.NewNop(), nil)
	assert.Nil(t, manager)
	assert.Error(t, err)
}

func TestNewManager_BadTLS(t *testing.T) {
	cfg := config.CacheConfig{
		Addr: "localhost:6379",
		TLS:  config.TLSConfig{Enabled: true, CAFile: "/does/not/exist.pem"},
	}
	manager, err := NewManager(cfg, zap.NewNop(), nil)
	assert.Nil(t, manager)
	assert.Error(t, err)
}

func TestManager_SetAndGet(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", []byte("v"), time.Minute))

	value, err := manager.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)

	_, err = manager.Get(ctx, "missing")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_Delete(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, manager.Delete(ctx, "k"))
	require.NoError(t, manager.Delete(ctx))

	_, err := manager.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_TTL(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	// ttl 为 0 时使用默认过期时间
	require.NoError(t, manager.Set(ctx, "k", []byte("v"), 0))
	assert.Equal(t, time.Minute, mr.TTL("k"))

	mr.FastForward(2 * time.Minute)

	_, err := manager.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_Closed(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	_, err := manager.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, manager.Set(ctx, "k", nil, 0), ErrClosed)
	assert.ErrorIs(t, manager.Delete(ctx, "k"), ErrClosed)
	assert.ErrorIs(t, manager.Ping(ctx), ErrClosed)
}

func TestManager_Ping(t *testing.T) {
	mr, manager := setupTestRedis(t)

	assert.NoError(t, manager.Ping(context.Background()))

	mr.Close()
	assert.Error(t, manager.Ping(context.Background()))
}

func TestManager_ConcurrentOperations(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			err := manager.Set(ctx, fmt.Sprintf("concurrent-%d", id), []byte("value"), time.Minute)
			assert.NoError(t, err)
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	for i := 0; i < 10; i++ {
		go func(id int) {
			value, err := manager.Get(ctx, fmt.Sprintf("concurrent-%d", id))
			assert.NoError(t, err)
			assert.Equal(t, []byte("value"), value)
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
