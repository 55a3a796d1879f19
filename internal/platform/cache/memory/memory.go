// Package memory provides the in-process counter driver.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MahdiBaghbani/curlaas-go/internal/platform/cache"
)

func init() {
	cache.RegisterDriver("memory", func(conf map[string]any, _ *slog.Logger) (cache.Counter, error) {
		cleanup := time.Minute
		if v, ok := toInt(conf["cleanup_interval_seconds"]); ok && v > 0 {
			cleanup = time.Duration(v) * time.Second
		}
		return New(cleanup), nil
	})
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

type window struct {
	count   int64
	resetAt time.Time
}

// Cache is an in-memory counter store. Expired windows are swept periodically.
type Cache struct {
	mu       sync.Mutex
	windows  map[string]*window
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// New returns a counter store; cleanupInterval <= 0 disables the sweeper.
func New(cleanupInterval time.Duration) *Cache {
	c := &Cache{
		windows: make(map[string]*window),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.sweep(cleanupInterval)
	}
	return c
}

func (c *Cache) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.deleteExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, w := range c.windows {
		if !now.Before(w.resetAt) {
			delete(c.windows, k)
		}
	}
}

// Increment implements cache.Counter.
func (c *Cache) Increment(_ context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, ok := c.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(ttl)}
		c.windows[key] = w
	}
	w.count += delta
	return w.count, w.resetAt, nil
}

// Len returns the number of tracked windows, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

// Close stops the sweeper. Safe to call more than once.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

var _ cache.Counter = (*Cache)(nil)
