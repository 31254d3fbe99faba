package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AhmAshraf1/PlanTech/internal/cache"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns a connected RedisCache.
func setupRedis(t *testing.T) cache.Cache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rc, err := cache.NewRedisCache("redis://" + host + ":" + port.Port())
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	return rc
}

func setupMemory(t *testing.T) cache.Cache {
	t.Helper()
	mc := cache.NewMemoryCache(0)
	t.Cleanup(func() { mc.Close() })
	return mc
}

func runCacheContract(t *testing.T, setup func(t *testing.T) cache.Cache) {
	t.Run("ping", func(t *testing.T) {
		c := setup(t)
		assert.NoError(t, c.Ping(context.Background()))
	})

	t.Run("set get roundtrip", func(t *testing.T) {
		c := setup(t)
		ctx := context.Background()

		require.NoError(t, c.Set(ctx, "test:key", []byte("hello"), 10*time.Second))

		val, found, err := c.Get(ctx, "test:key")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("hello"), val)
	})

	t.Run("get missing", func(t *testing.T) {
		c := setup(t)

		val, found, err := c.Get(context.Background(), "nonexistent:key")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, val)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		c := setup(t)
		ctx := context.Background()

		require.NoError(t, c.Set(ctx, "expiry:key", []byte("temp"), 1*time.Second))

		_, found, err := c.Get(ctx, "expiry:key")
		require.NoError(t, err)
		assert.True(t, found)

		time.Sleep(1500 * time.Millisecond)

		_, found, err = c.Get(ctx, "expiry:key")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("delete", func(t *testing.T) {
		c := setup(t)
		ctx := context.Background()

		require.NoError(t, c.Set(ctx, "del:key", []byte("bye"), 10*time.Second))
		require.NoError(t, c.Delete(ctx, "del:key"))

		_, found, err := c.Get(ctx, "del:key")
		require.NoError(t, err)
		assert.False(t, found)

		assert.NoError(t, c.Delete(ctx, "does:not:exist"))
	})

	t.Run("incr counts up", func(t *testing.T) {
		c := setup(t)
		ctx := context.Background()
		key := cache.RateLimitKey("10.0.0.1-" + uuid.NewString()[:8])

		for want := int64(1); want <= 3; want++ {
			val, err := c.IncrWithExpiry(ctx, key, 10*time.Second)
			require.NoError(t, err)
			assert.Equal(t, want, val)
		}
	})

	t.Run("incr window expires", func(t *testing.T) {
		c := setup(t)
		ctx := context.Background()
		key := cache.RateLimitKey("expiry-" + uuid.NewString()[:8])

		_, err := c.IncrWithExpiry(ctx, key, 1*time.Second)
		require.NoError(t, err)
		_, err = c.IncrWithExpiry(ctx, key, 1*time.Second)
		require.NoError(t, err)

		time.Sleep(1500 * time.Millisecond)

		val, err := c.IncrWithExpiry(ctx, key, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(1), val)
	})

	t.Run("incr does not extend window", func(t *testing.T) {
		c := setup(t)
		ctx := context.Background()
		key := cache.RateLimitKey("fixed-" + uuid.NewString()[:8])

		_, err := c.IncrWithExpiry(ctx, key, 1*time.Second)
		require.NoError(t, err)
		time.Sleep(600 * time.Millisecond)
		_, err = c.IncrWithExpiry(ctx, key, 10*time.Second)
		require.NoError(t, err)
		time.Sleep(600 * time.Millisecond)

		val, err := c.IncrWithExpiry(ctx, key, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(1), val)
	})

	t.Run("counter reads back as decimal", func(t *testing.T) {
		c := setup(t)
		ctx := context.Background()
		key := cache.HistoryGenerationKey + ":" + uuid.NewString()[:8]

		for i := 0; i < 3; i++ {
			_, err := c.IncrWithExpiry(ctx, key, 10*time.Second)
			require.NoError(t, err)
		}
		val, found, err := c.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "3", string(val))
	})

	t.Run("concurrent incr", func(t *testing.T) {
		c := setup(t)
		ctx := context.Background()
		key := cache.RateLimitKey("burst-" + uuid.NewString()[:8])

		const n = 50
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := c.IncrWithExpiry(ctx, key, 10*time.Second)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		val, err := c.IncrWithExpiry(ctx, key, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(n+1), val)
	})
}

func TestMemoryCache(t *testing.T) {
	runCacheContract(t, setupMemory)
}

func TestRedisCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	runCacheContract(t, setupRedis)
}

func TestMemoryCache_ValuesAreCopied(t *testing.T) {
	c := cache.NewMemoryCache(0)
	ctx := context.Background()

	buf := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", buf, time.Minute))
	buf[0] = 'z'

	got, _, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[1] = 'z'
	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := cache.NewRedisCache("http://not-redis")
	assert.Error(t, err)
}

// --- Cache Key Builders ---

func TestRateLimitKey(t *testing.T) {
	assert.Equal(t, "ratelimit:192.0.2.10", cache.RateLimitKey("192.0.2.10"))
}

func TestKeyBuilders_NonColliding(t *testing.T) {
	assert.NotEqual(t, cache.HistoryKey("recent", 0), cache.RateLimitKey("recent"))
	assert.NotEqual(t, cache.HistoryKey("1", 0), cache.HistoryKey("1", 1))
	assert.NotEqual(t, cache.HistoryGenerationKey, cache.HistoryKey("", 0))
}

func TestHistoryKey(t *testing.T) {
	assert.Equal(t, "history:recent:3:7", cache.HistoryKey("3", 7))
}
