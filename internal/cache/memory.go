package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache implements the Cache interface in process with go-cache.
// It is used when no Redis URL is configured.
type MemoryCache struct {
	c  *gocache.Cache
	mu sync.Mutex // guards counter creation in IncrWithExpiry
}

// NewMemoryCache creates a MemoryCache that sweeps expired entries every cleanup interval.
func NewMemoryCache(cleanup time.Duration) *MemoryCache {
	return &MemoryCache{c: gocache.New(gocache.NoExpiration, cleanup)}
}

func (m *MemoryCache) Ping(context.Context) error { return nil }

func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.c.Set(key, append([]byte(nil), value...), expiration(ttl))
	return nil
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	switch b := v.(type) {
	case []byte:
		return append([]byte(nil), b...), true, nil
	case int64:
		// Counters read back as decimal text, as they do from Redis.
		return []byte(strconv.FormatInt(b, 10)), true, nil
	}
	return nil, false, nil
}

func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

// IncrWithExpiry increments the counter at key. The expiry is set when the
// counter is created and is not extended by later increments.
func (m *MemoryCache) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.c.Add(key, int64(1), expiration(expiry)); err == nil {
		return 1, nil
	}
	return m.c.IncrementInt64(key, 1)
}

func (m *MemoryCache) Close() error {
	m.c.Flush()
	return nil
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

var _ Cache = (*MemoryCache)(nil)
