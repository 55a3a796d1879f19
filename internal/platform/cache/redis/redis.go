// Package redis provides the Redis/Valkey counter driver.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/valkey-io/valkey-go"

	"github.com/MahdiBaghbani/curlaas-go/internal/platform/cache"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/logutil"
)

func init() {
	cache.RegisterDriver("redis", func(conf map[string]any, log *slog.Logger) (cache.Counter, error) {
		cfg := DefaultConfig()
		if err := mapstructure.Decode(conf, cfg); err != nil {
			return nil, fmt.Errorf("redis cache config: %w", err)
		}
		c, err := New(cfg)
		if err != nil {
			return nil, err
		}
		logutil.NoopIfNil(log).Info("redis cache connected", "addr", cfg.Addr, "db", cfg.DB)
		return c, nil
	})
}

// Config is the [cache.drivers.redis] table.
type Config struct {
	Addr          string        `mapstructure:"addr"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	DialTimeoutMS int           `mapstructure:"dial_timeout_ms"`
	DialTimeout   time.Duration `mapstructure:"-"`
}

// DefaultConfig returns the settings used for keys absent from the table.
func DefaultConfig() *Config {
	return &Config{
		Addr:      "localhost:6379",
		KeyPrefix: "curlaas:",
	}
}

func (c *Config) dialTimeout() time.Duration {
	switch {
	case c.DialTimeout > 0:
		return c.DialTimeout
	case c.DialTimeoutMS > 0:
		return time.Duration(c.DialTimeoutMS) * time.Millisecond
	default:
		return 5 * time.Second
	}
}

// incrScript starts the window on first use and reports the remaining TTL
// in the same round trip, so concurrent servers agree on the reset time.
var incrScript = valkey.NewLuaScript(`
local v = redis.call('INCRBY', KEYS[1], ARGV[1])
if redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {v, redis.call('PTTL', KEYS[1])}
`)

// Cache is a counter store on a Redis-compatible server.
type Cache struct {
	client valkey.Client
	prefix string
}

// New connects and pings the server; it fails fast when unreachable.
func New(cfg *Config) (*Cache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:       []string{cfg.Addr},
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		Dialer:            net.Dialer{Timeout: cfg.dialTimeout()},
		DisableCache:      true,
		ForceSingleClient: true,
	})
	if err != nil {
		return nil, fmt.Errorf("redis cache: connect %s: %w", cfg.Addr, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.dialTimeout())
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis cache: ping %s: %w", cfg.Addr, err)
	}

	return &Cache{client: client, prefix: cfg.KeyPrefix}, nil
}

// Increment implements cache.Counter.
func (c *Cache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	res, err := incrScript.Exec(ctx, c.client,
		[]string{c.prefix + key},
		[]string{strconv.FormatInt(delta, 10), strconv.FormatInt(ms, 10)},
	).ToArray()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis increment: %w", err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("redis increment: unexpected reply length %d", len(res))
	}
	count, err := res[0].AsInt64()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis increment: %w", err)
	}
	pttl, err := res[1].AsInt64()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis increment ttl: %w", err)
	}
	return count, time.Now().Add(time.Duration(pttl) * time.Millisecond), nil
}

// Close closes the client.
func (c *Cache) Close() error {
	c.client.Close()
	return nil
}

var _ cache.Counter = (*Cache)(nil)
