// Package cache provides the TTL counter store behind rate limiting and
// a registry of named drivers selected by [cache] driver.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Counter is a fixed-window counter store.
type Counter interface {
	// Increment adds delta to key and returns the new value and the time the
	// window resets. A missing or expired key starts a new window of ttl.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error)

	// Close releases resources.
	Close() error
}

// Factory builds a driver from its [cache.drivers.<name>] table.
type Factory func(conf map[string]any, log *slog.Logger) (Counter, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// RegisterDriver makes a driver available by name. Called from init().
func RegisterDriver(name string, f Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = f
}

// New builds the named driver.
func New(name string, conf map[string]any, log *slog.Logger) (Counter, error) {
	driversMu.RLock()
	f, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown cache driver %q (registered: %v)", name, Drivers())
	}
	return f(conf, log)
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DriverConfig extracts the table for driver from a [cache.drivers] map.
func DriverConfig(all map[string]any, driver string) map[string]any {
	if all == nil {
		return nil
	}
	m, _ := all[driver].(map[string]any)
	return m
}
