package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/orderguard/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := NewRedisCache(context.Background(), "not-a-redis-url")
	assert.Error(t, err)
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := NewRedisCache(ctx, "redis://127.0.0.1:1/0")
	assert.Error(t, err)
}

// Runs against a real server when ORDERGUARD_TEST_REDIS_URL is set
func TestRedisCache_RoundTrip(t *testing.T) {
	redisURL := os.Getenv("ORDERGUARD_TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("ORDERGUARD_TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	cache, err := NewRedisCache(ctx, redisURL)
	require.NoError(t, err)
	defer cache.Close()

	key := "orderguard-test:" + time.Now().Format(time.RFC3339Nano)
	defer cache.Delete(ctx, key)

	_, err = cache.Get(ctx, key)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, key, []byte(`[{"model":"A1"}]`), time.Minute))

	got, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `[{"model":"A1"}]`, string(got))

	exists, err := cache.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, cache.Delete(ctx, key))
	exists, err = cache.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}
