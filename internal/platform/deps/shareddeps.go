// Package deps holds the process-wide dependencies services are built from.
package deps

import (
	"sync"

	"github.com/MahdiBaghbani/curlaas-go/internal/components/fetch"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/cache"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/config"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/http/realip"
)

var (
	sharedDeps     *Deps
	sharedDepsOnce sync.Once
)

// Deps is set once in main before services are constructed.
type Deps struct {
	Config  *config.Config
	Fetcher *fetch.Fetcher

	// Cache backs the ratelimit interceptor.
	Cache cache.Counter

	// RealIP is the single source of client identity for logs and rate limits.
	RealIP *realip.TrustedProxies
}

// SetDeps stores d. Later calls are ignored.
func SetDeps(d *Deps) {
	sharedDepsOnce.Do(func() {
		sharedDeps = d
	})
}

// GetDeps returns the shared dependencies, or nil before SetDeps.
func GetDeps() *Deps {
	return sharedDeps
}

// ResetDeps clears the singleton. Tests only.
func ResetDeps() {
	sharedDeps = nil
	sharedDepsOnce = sync.Once{}
}
