// Package ratelimit provides a fixed-window rate limiting interceptor
// keyed by client address and backed by the cache subsystem.
package ratelimit

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MahdiBaghbani/curlaas-go/internal/components/api"
	svccfg "github.com/MahdiBaghbani/curlaas-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/curlaas-go/internal/interceptors"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/cache"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/deps"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/logutil"
)

func init() {
	interceptors.Register("ratelimit", New)
}

// Config is one [http.interceptors.ratelimit.profiles.<name>] table.
type Config struct {
	RequestsPerWindow int64 `mapstructure:"requests_per_window"`
	WindowSeconds     int   `mapstructure:"window_seconds"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.RequestsPerWindow == 0 {
		c.RequestsPerWindow = 60
	}
	if c.WindowSeconds == 0 {
		c.WindowSeconds = 60
	}
}

// Limiter counts requests per key in fixed windows.
type Limiter struct {
	cache   cache.Counter
	keyFunc func(*http.Request) string
	limit   int64
	window  time.Duration
	log     *slog.Logger
}

// New builds the interceptor from a profile table using the shared cache
// and client-address resolver.
func New(conf map[string]any, log *slog.Logger) (interceptors.Middleware, error) {
	var c Config
	if err := svccfg.Decode(conf, &c); err != nil {
		return nil, err
	}
	d := deps.GetDeps()
	if d == nil || d.Cache == nil || d.RealIP == nil {
		return nil, errors.New("ratelimit: shared cache and client address resolver required")
	}
	return NewLimiter(d.Cache, d.RealIP.GetClientIPString, c, log).Wrap, nil
}

// NewLimiter builds a limiter over counter keyed by keyFunc.
func NewLimiter(counter cache.Counter, keyFunc func(*http.Request) string, c Config, log *slog.Logger) *Limiter {
	c.ApplyDefaults()
	return &Limiter{
		cache:   counter,
		keyFunc: keyFunc,
		limit:   c.RequestsPerWindow,
		window:  time.Duration(c.WindowSeconds) * time.Second,
		log:     logutil.NoopIfNil(log),
	}
}

// Wrap applies the limit. Cache failures let the request through.
func (l *Limiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.keyFunc(r)
		count, resetAt, err := l.cache.Increment(r.Context(), "ratelimit:"+key, 1, l.window)
		if err != nil {
			l.log.Warn("rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if count > l.limit {
			retryAfter := int(time.Until(resetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			api.WriteTooManyRequests(w, "too many requests, retry in "+strconv.Itoa(retryAfter)+"s")
			return
		}

		next.ServeHTTP(w, r)
	})
}
