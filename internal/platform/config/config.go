// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"sort"
	"strings"
)

// SSRF modes for outbound requests.
const (
	SSRFModeStrict = "strict"
	SSRFModeOff    = "off"
)

// Config holds the server configuration.
type Config struct {
	// Mode is the operating mode: strict or dev.
	Mode string `toml:"mode"`

	// PublicOrigin is the public origin (scheme + host + port) of this instance.
	// Example: "https://fetch.example.org"
	PublicOrigin string `toml:"public_origin"`

	// ExternalBasePath is an optional path prefix for every service.
	// Example: "/curlaas" or empty string
	ExternalBasePath string `toml:"external_base_path"`

	// ListenAddr is the address to listen on when TLS is off or static.
	// Example: ":9200"
	ListenAddr string `toml:"listen_addr"`

	Server       ServerConfig       `toml:"server"`
	TLS          TLSConfig          `toml:"tls"`
	OutboundHTTP OutboundHTTPConfig `toml:"outbound_http"`
	Cache        CacheConfig        `toml:"cache"`
	Logging      LoggingConfig      `toml:"logging"`
	Metrics      MetricsConfig      `toml:"metrics"`

	// HTTP holds per-service and per-interceptor raw configuration.
	HTTP HTTPConfig `toml:"http"`
}

// HTTPConfig holds per-service HTTP configuration.
// Services are configured under [http.services.<svcname>].
// Interceptors are configured under [http.interceptors.<name>].
type HTTPConfig struct {
	// Services maps service names to their raw config maps.
	// Each service decodes its own config via cfg.Decode().
	Services map[string]map[string]any `toml:"services"`

	// Interceptors maps interceptor names to their raw config maps.
	// Ratelimit profiles live at [http.interceptors.ratelimit.profiles.<name>].
	// Per-service opt-in is [http.services.<svc>.ratelimit] with profile = "<name>".
	Interceptors map[string]map[string]any `toml:"interceptors"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `toml:"level"`

	// AllowSensitive permits logging full target URLs, which may carry
	// credentials or tokens in their query strings. Default: false.
	AllowSensitive bool `toml:"allow_sensitive"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Driver is the cache driver name: "memory" (default) or "redis".
	Driver string `toml:"driver"`

	// Drivers holds per-driver configuration.
	// Example: [cache.drivers.redis] addr = "localhost:6379"
	Drivers map[string]any `toml:"drivers"`
}

// ServerConfig holds server-level settings.
type ServerConfig struct {
	// TrustedProxies is a list of CIDR ranges for trusted reverse proxies.
	// X-Forwarded-For and X-Real-IP are only honored from these addresses.
	// Default: ["127.0.0.0/8", "::1/128"]
	TrustedProxies []string `toml:"trusted_proxies"`
}

// TLSConfig holds inbound TLS settings.
type TLSConfig struct {
	// Mode is one of: off, static, acme
	Mode string `toml:"mode"`

	// CertFile and KeyFile for static mode
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`

	// HTTPPort for the plain listener (ACME challenges and redirects)
	HTTPPort int `toml:"http_port"`

	// HTTPSPort for the HTTPS listener in acme mode
	HTTPSPort int `toml:"https_port"`

	ACME ACMEConfig `toml:"acme"`
}

// ACMEConfig holds ACME/Let's Encrypt settings.
type ACMEConfig struct {
	Email      string `toml:"email"`
	Domain     string `toml:"domain"`
	Directory  string `toml:"directory"`
	StorageDir string `toml:"storage_dir"`
	UseStaging bool   `toml:"use_staging"`
}

// OutboundHTTPConfig holds settings for fetches made on behalf of callers.
type OutboundHTTPConfig struct {
	// SSRFMode is one of: strict, off
	SSRFMode string `toml:"ssrf_mode"`

	// TimeoutMS bounds each individual HTTP attempt.
	TimeoutMS int `toml:"timeout_ms"`

	// ConnectTimeoutMS bounds the TCP connect and TLS handshake.
	ConnectTimeoutMS int `toml:"connect_timeout_ms"`

	// ResolveTimeoutMS bounds each DNS lookup.
	ResolveTimeoutMS int `toml:"resolve_timeout_ms"`

	// MaxRedirects is the maximum number of redirects followed per fetch.
	MaxRedirects int `toml:"max_redirects"`

	// PinResolvedAddress makes the transport dial the address that passed
	// the SSRF check instead of resolving the host again.
	PinResolvedAddress bool `toml:"pin_resolved_address"`

	// DialGuard re-checks every socket address at connect time (strict mode only).
	DialGuard bool `toml:"dial_guard"`

	// InsecureSkipVerify disables TLS verification (dev-only)
	InsecureSkipVerify bool `toml:"insecure_skip_verify"`

	// UserAgent is sent when the caller did not set one.
	UserAgent string `toml:"user_agent"`
}

// DefaultOutboundHTTPConfig returns the strict outbound settings.
func DefaultOutboundHTTPConfig() *OutboundHTTPConfig {
	c := StrictConfig().OutboundHTTP
	return &c
}

// BuildServiceConfig returns the raw service config map for a given service name.
// Returns nil if the service is not configured in [http.services.<name>].
func (c *Config) BuildServiceConfig(serviceName string) map[string]any {
	svcCfg, ok := c.HTTP.Services[serviceName]
	if !ok {
		return nil
	}
	result := make(map[string]any, len(svcCfg))
	for k, v := range svcCfg {
		result[k] = v
	}
	return result
}

// Redacted returns a string representation of the config with secrets redacted.
// Driver sections are listed by name only since they may hold passwords.
func (c *Config) Redacted() string {
	var sb strings.Builder
	sb.WriteString("Config{\n")
	fmt.Fprintf(&sb, "  Mode: %q,\n", c.Mode)
	fmt.Fprintf(&sb, "  PublicOrigin: %q,\n", c.PublicOrigin)
	fmt.Fprintf(&sb, "  ExternalBasePath: %q,\n", c.ExternalBasePath)
	fmt.Fprintf(&sb, "  ListenAddr: %q,\n", c.ListenAddr)
	fmt.Fprintf(&sb, "  Server: {TrustedProxies: %v},\n", c.Server.TrustedProxies)
	sb.WriteString("  TLS: {\n")
	fmt.Fprintf(&sb, "    Mode: %q,\n", c.TLS.Mode)
	fmt.Fprintf(&sb, "    CertFile: %q,\n", c.TLS.CertFile)
	fmt.Fprintf(&sb, "    KeyFile: %q,\n", c.TLS.KeyFile)
	fmt.Fprintf(&sb, "    HTTPPort: %d,\n", c.TLS.HTTPPort)
	fmt.Fprintf(&sb, "    HTTPSPort: %d,\n", c.TLS.HTTPSPort)
	fmt.Fprintf(&sb, "    ACME.Domain: %q,\n", c.TLS.ACME.Domain)
	fmt.Fprintf(&sb, "    ACME.UseStaging: %v,\n", c.TLS.ACME.UseStaging)
	sb.WriteString("  },\n")
	sb.WriteString("  OutboundHTTP: {\n")
	fmt.Fprintf(&sb, "    SSRFMode: %q,\n", c.OutboundHTTP.SSRFMode)
	fmt.Fprintf(&sb, "    TimeoutMS: %d,\n", c.OutboundHTTP.TimeoutMS)
	fmt.Fprintf(&sb, "    ConnectTimeoutMS: %d,\n", c.OutboundHTTP.ConnectTimeoutMS)
	fmt.Fprintf(&sb, "    ResolveTimeoutMS: %d,\n", c.OutboundHTTP.ResolveTimeoutMS)
	fmt.Fprintf(&sb, "    MaxRedirects: %d,\n", c.OutboundHTTP.MaxRedirects)
	fmt.Fprintf(&sb, "    PinResolvedAddress: %v,\n", c.OutboundHTTP.PinResolvedAddress)
	fmt.Fprintf(&sb, "    DialGuard: %v,\n", c.OutboundHTTP.DialGuard)
	fmt.Fprintf(&sb, "    InsecureSkipVerify: %v,\n", c.OutboundHTTP.InsecureSkipVerify)
	fmt.Fprintf(&sb, "    UserAgent: %q,\n", c.OutboundHTTP.UserAgent)
	sb.WriteString("  },\n")
	fmt.Fprintf(&sb, "  Cache: {Driver: %q, Drivers: %v},\n", c.Cache.Driver, sortedKeys(c.Cache.Drivers))
	fmt.Fprintf(&sb, "  Logging: {Level: %q, AllowSensitive: %v},\n", c.Logging.Level, c.Logging.AllowSensitive)
	fmt.Fprintf(&sb, "  Metrics: {Enabled: %v, Path: %q},\n", c.Metrics.Enabled, c.Metrics.Path)
	fmt.Fprintf(&sb, "  HTTP: {Services: %v, Interceptors: %v},\n", sortedKeys(c.HTTP.Services), sortedKeys(c.HTTP.Interceptors))
	sb.WriteString("}")
	return sb.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
