package clients

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryCache keeps export statuses in process when Redis is disabled.
// It offers the subset of RedisClient the export services use.
type MemoryCache struct {
	mu     sync.Mutex
	values map[string]memoryValue
	sets   map[string]map[string]struct{}
	now    func() time.Time
}

type memoryValue struct {
	value   string
	expires time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		values: map[string]memoryValue{},
		sets:   map[string]map[string]struct{}{},
		now:    time.Now,
	}
}

func (c *MemoryCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := memoryValue{value: fmt.Sprint(value)}
	switch b := value.(type) {
	case []byte:
		v.value = string(b)
	case string:
		v.value = b
	}
	if ttl > 0 {
		v.expires = c.now().Add(ttl)
	}
	c.values[key] = v
	return nil
}

func (c *MemoryCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return "", ErrCacheMiss
	}
	if !v.expires.IsZero() && !c.now().Before(v.expires) {
		delete(c.values, key)
		return "", ErrCacheMiss
	}
	return v.value, nil
}

func (c *MemoryCache) SAdd(ctx context.Context, key string, members ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.sets[key]
	if !ok {
		set = map[string]struct{}{}
		c.sets[key] = set
	}
	for _, m := range members {
		set[fmt.Sprint(m)] = struct{}{}
	}
	return nil
}

func (c *MemoryCache) SRem(ctx context.Context, key string, members ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range members {
		delete(c.sets[key], fmt.Sprint(m))
	}
	return nil
}

func (c *MemoryCache) SMembers(ctx context.Context, key string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sets[key]))
	for m := range c.sets[key] {
		out = append(out, m)
	}
	return out, nil
}
