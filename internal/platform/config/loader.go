package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Mode represents the server operating mode.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeDev    Mode = "dev"
)

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "":
		return ModeStrict, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of strict, dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but file is missing or invalid, loading fails.
	ConfigPath string

	// ModeFlag is the --mode flag value (overrides config file mode).
	ModeFlag string

	// FlagOverrides are CLI flag values that override config file values.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
// Boolean-ish fields take "true", "false", or "" (unset).
type FlagOverrides struct {
	ListenAddr            *string
	PublicOrigin          *string
	ExternalBasePath      *string
	SSRFMode              *string
	MaxRedirects          *string
	TLSMode               *string
	CacheDriver           *string
	LoggingLevel          *string
	LoggingAllowSensitive *string
	MetricsEnabled        *string
}

// fileConfig mirrors Config with pointer sections and pointer booleans so
// that absent keys keep the preset value.
type fileConfig struct {
	Mode             string `toml:"mode"`
	PublicOrigin     string `toml:"public_origin"`
	ExternalBasePath string `toml:"external_base_path"`
	ListenAddr       string `toml:"listen_addr"`

	Server       *ServerConfig     `toml:"server"`
	TLS          *tlsFile          `toml:"tls"`
	OutboundHTTP *outboundHTTPFile `toml:"outbound_http"`
	Cache        *CacheConfig      `toml:"cache"`
	Logging      *loggingFile      `toml:"logging"`
	Metrics      *metricsFile      `toml:"metrics"`
	HTTP         *HTTPConfig       `toml:"http"`
}

type tlsFile struct {
	Mode      string    `toml:"mode"`
	CertFile  string    `toml:"cert_file"`
	KeyFile   string    `toml:"key_file"`
	HTTPPort  int       `toml:"http_port"`
	HTTPSPort int       `toml:"https_port"`
	ACME      *acmeFile `toml:"acme"`
}

type acmeFile struct {
	Email      string `toml:"email"`
	Domain     string `toml:"domain"`
	Directory  string `toml:"directory"`
	StorageDir string `toml:"storage_dir"`
	UseStaging *bool  `toml:"use_staging"`
}

type outboundHTTPFile struct {
	SSRFMode           string `toml:"ssrf_mode"`
	TimeoutMS          int    `toml:"timeout_ms"`
	ConnectTimeoutMS   int    `toml:"connect_timeout_ms"`
	ResolveTimeoutMS   int    `toml:"resolve_timeout_ms"`
	MaxRedirects       int    `toml:"max_redirects"`
	PinResolvedAddress *bool  `toml:"pin_resolved_address"`
	DialGuard          *bool  `toml:"dial_guard"`
	InsecureSkipVerify *bool  `toml:"insecure_skip_verify"`
	UserAgent          string `toml:"user_agent"`
}

type loggingFile struct {
	Level          string `toml:"level"`
	AllowSensitive *bool  `toml:"allow_sensitive"`
}

type metricsFile struct {
	Enabled *bool  `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load loads configuration with the following precedence:
//  1. Determine effective mode: --mode flag > mode in config file > default (strict)
//  2. Start from mode preset defaults
//  3. Overlay TOML config file values
//  4. Overlay CLI flags
//  5. Validate
//
// If ConfigPath is provided but the file is missing, unreadable, or invalid TOML,
// Load returns an error. Unknown TOML keys produce a warning but do not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var fc fileConfig

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
	}

	modeStr := "strict"
	if fc.Mode != "" {
		modeStr = fc.Mode
	}
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}
	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := presetForMode(mode)
	overlayFileConfig(cfg, &fc)
	if err := overlayFlags(cfg, opts.FlagOverrides); err != nil {
		return nil, err
	}

	if err := validateEnums(cfg); err != nil {
		return nil, err
	}
	if err := validateOutbound(&cfg.OutboundHTTP); err != nil {
		return nil, err
	}
	if err := validatePublicOrigin(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func presetForMode(mode Mode) *Config {
	if mode == ModeDev {
		return DevConfig()
	}
	return StrictConfig()
}

// StrictConfig returns production-safe strict defaults.
func StrictConfig() *Config {
	return &Config{
		Mode:         string(ModeStrict),
		PublicOrigin: "",
		ListenAddr:   ":9200",
		Server: ServerConfig{
			TrustedProxies: []string{"127.0.0.0/8", "::1/128"},
		},
		TLS: TLSConfig{
			Mode:      "off",
			HTTPPort:  9280,
			HTTPSPort: 9443,
			ACME: ACMEConfig{
				Directory:  "https://acme-v02.api.letsencrypt.org/directory",
				StorageDir: ".curlaas/acme",
			},
		},
		OutboundHTTP: OutboundHTTPConfig{
			SSRFMode:           SSRFModeStrict,
			TimeoutMS:          10000,
			ConnectTimeoutMS:   2000,
			ResolveTimeoutMS:   5000,
			MaxRedirects:       10,
			PinResolvedAddress: true,
			DialGuard:          true,
			UserAgent:          "curlaas-go",
		},
		Cache: CacheConfig{
			Driver: "memory",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// DevConfig returns development mode defaults. The SSRF guard is off so
// that local test servers can be fetched.
func DevConfig() *Config {
	cfg := StrictConfig()
	cfg.Mode = string(ModeDev)
	cfg.TLS.ACME.Directory = "https://acme-staging-v02.api.letsencrypt.org/directory"
	cfg.TLS.ACME.UseStaging = true
	cfg.OutboundHTTP.SSRFMode = SSRFModeOff
	cfg.OutboundHTTP.DialGuard = false
	cfg.OutboundHTTP.InsecureSkipVerify = true
	cfg.Logging.Level = "debug"
	return cfg
}

func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.PublicOrigin != "" {
		cfg.PublicOrigin = fc.PublicOrigin
	}
	if fc.ExternalBasePath != "" {
		cfg.ExternalBasePath = fc.ExternalBasePath
	}
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}

	if fc.Server != nil && len(fc.Server.TrustedProxies) > 0 {
		cfg.Server.TrustedProxies = fc.Server.TrustedProxies
	}

	if t := fc.TLS; t != nil {
		setString(&cfg.TLS.Mode, t.Mode)
		setString(&cfg.TLS.CertFile, t.CertFile)
		setString(&cfg.TLS.KeyFile, t.KeyFile)
		setInt(&cfg.TLS.HTTPPort, t.HTTPPort)
		setInt(&cfg.TLS.HTTPSPort, t.HTTPSPort)
		if a := t.ACME; a != nil {
			setString(&cfg.TLS.ACME.Email, a.Email)
			setString(&cfg.TLS.ACME.Domain, a.Domain)
			setString(&cfg.TLS.ACME.Directory, a.Directory)
			setString(&cfg.TLS.ACME.StorageDir, a.StorageDir)
			setBool(&cfg.TLS.ACME.UseStaging, a.UseStaging)
		}
	}

	if o := fc.OutboundHTTP; o != nil {
		setString(&cfg.OutboundHTTP.SSRFMode, o.SSRFMode)
		setInt(&cfg.OutboundHTTP.TimeoutMS, o.TimeoutMS)
		setInt(&cfg.OutboundHTTP.ConnectTimeoutMS, o.ConnectTimeoutMS)
		setInt(&cfg.OutboundHTTP.ResolveTimeoutMS, o.ResolveTimeoutMS)
		setInt(&cfg.OutboundHTTP.MaxRedirects, o.MaxRedirects)
		setBool(&cfg.OutboundHTTP.PinResolvedAddress, o.PinResolvedAddress)
		setBool(&cfg.OutboundHTTP.DialGuard, o.DialGuard)
		setBool(&cfg.OutboundHTTP.InsecureSkipVerify, o.InsecureSkipVerify)
		setString(&cfg.OutboundHTTP.UserAgent, o.UserAgent)
	}

	if c := fc.Cache; c != nil {
		setString(&cfg.Cache.Driver, c.Driver)
		if len(c.Drivers) > 0 {
			cfg.Cache.Drivers = c.Drivers
		}
	}

	if l := fc.Logging; l != nil {
		setString(&cfg.Logging.Level, l.Level)
		setBool(&cfg.Logging.AllowSensitive, l.AllowSensitive)
	}

	if m := fc.Metrics; m != nil {
		setBool(&cfg.Metrics.Enabled, m.Enabled)
		setString(&cfg.Metrics.Path, m.Path)
	}

	if h := fc.HTTP; h != nil {
		if len(h.Services) > 0 {
			if cfg.HTTP.Services == nil {
				cfg.HTTP.Services = make(map[string]map[string]any)
			}
			for name, svcCfg := range h.Services {
				cfg.HTTP.Services[name] = svcCfg
			}
		}
		if len(h.Interceptors) > 0 {
			if cfg.HTTP.Interceptors == nil {
				cfg.HTTP.Interceptors = make(map[string]map[string]any)
			}
			for name, intCfg := range h.Interceptors {
				cfg.HTTP.Interceptors[name] = intCfg
			}
		}
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func overlayFlags(cfg *Config, f FlagOverrides) error {
	setFlag := func(dst *string, v *string) {
		if v != nil && *v != "" {
			*dst = *v
		}
	}
	setFlag(&cfg.ListenAddr, f.ListenAddr)
	setFlag(&cfg.PublicOrigin, f.PublicOrigin)
	setFlag(&cfg.ExternalBasePath, f.ExternalBasePath)
	setFlag(&cfg.OutboundHTTP.SSRFMode, f.SSRFMode)
	setFlag(&cfg.TLS.Mode, f.TLSMode)
	setFlag(&cfg.Cache.Driver, f.CacheDriver)
	setFlag(&cfg.Logging.Level, f.LoggingLevel)

	if f.MaxRedirects != nil && *f.MaxRedirects != "" {
		n, err := strconv.Atoi(*f.MaxRedirects)
		if err != nil {
			return fmt.Errorf("invalid --max-redirects %q: %w", *f.MaxRedirects, err)
		}
		cfg.OutboundHTTP.MaxRedirects = n
	}
	// Only apply booleans when explicitly set
	if f.LoggingAllowSensitive != nil && *f.LoggingAllowSensitive != "" {
		cfg.Logging.AllowSensitive = *f.LoggingAllowSensitive == "true"
	}
	if f.MetricsEnabled != nil && *f.MetricsEnabled != "" {
		cfg.Metrics.Enabled = *f.MetricsEnabled == "true"
	}
	return nil
}

// validateEnums validates enum-like config fields and returns an error for invalid values.
func validateEnums(cfg *Config) error {
	switch cfg.TLS.Mode {
	case "off", "static", "acme":
	default:
		return fmt.Errorf("invalid tls.mode %q: must be one of off, static, acme", cfg.TLS.Mode)
	}

	switch cfg.OutboundHTTP.SSRFMode {
	case SSRFModeStrict, SSRFModeOff:
	default:
		return fmt.Errorf("invalid outbound_http.ssrf_mode %q: must be one of strict, off", cfg.OutboundHTTP.SSRFMode)
	}

	// empty defaults to memory
	switch cfg.Cache.Driver {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("invalid cache.driver %q: must be one of memory or redis", cfg.Cache.Driver)
	}

	switch cfg.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of trace, debug, info, warn, error", cfg.Logging.Level)
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("invalid metrics.path %q: must start with /", cfg.Metrics.Path)
	}

	return validateRatelimitConfig(cfg)
}

func validateOutbound(o *OutboundHTTPConfig) error {
	positive := []struct {
		key string
		v   int
	}{
		{"timeout_ms", o.TimeoutMS},
		{"connect_timeout_ms", o.ConnectTimeoutMS},
		{"resolve_timeout_ms", o.ResolveTimeoutMS},
		{"max_redirects", o.MaxRedirects},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return fmt.Errorf("invalid outbound_http.%s %d: must be positive", p.key, p.v)
		}
	}
	return nil
}

// validateRatelimitConfig checks that every [http.services.<svc>.ratelimit]
// profile reference names a profile under [http.interceptors.ratelimit.profiles].
func validateRatelimitConfig(cfg *Config) error {
	profiles := make(map[string]bool)
	if rlCfg, ok := cfg.HTTP.Interceptors["ratelimit"]; ok {
		if raw, ok := rlCfg["profiles"]; ok {
			profilesMap, ok := raw.(map[string]any)
			if !ok {
				return fmt.Errorf("http.interceptors.ratelimit.profiles must be a map")
			}
			for name, profile := range profilesMap {
				if _, ok := profile.(map[string]any); !ok {
					return fmt.Errorf("http.interceptors.ratelimit.profiles.%s must be a map", name)
				}
				profiles[name] = true
			}
		}
	}

	for svcName, svcCfg := range cfg.HTTP.Services {
		rlMap, ok := svcCfg["ratelimit"].(map[string]any)
		if !ok {
			continue
		}
		if profile, ok := rlMap["profile"].(string); ok && !profiles[profile] {
			return fmt.Errorf("http.services.%s.ratelimit references undefined profile %q", svcName, profile)
		}
	}
	return nil
}

// validatePublicOrigin checks the public_origin config value when set.
// Must be an absolute http/https URL with a host and nothing after it.
func validatePublicOrigin(cfg *Config) error {
	origin := cfg.PublicOrigin
	if origin == "" {
		return nil
	}
	if origin != strings.TrimSpace(origin) {
		return fmt.Errorf("invalid public_origin %q: must not contain leading or trailing whitespace", origin)
	}

	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid public_origin %q: %w", origin, err)
	}
	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("invalid public_origin %q: scheme must be http or https", origin)
	case u.Host == "":
		return fmt.Errorf("invalid public_origin %q: must include a host", origin)
	case u.User != nil:
		return fmt.Errorf("invalid public_origin %q: must not include userinfo", origin)
	case u.RawQuery != "" || u.Fragment != "":
		return fmt.Errorf("invalid public_origin %q: must not include a query string or fragment", origin)
	case u.Path != "" && u.Path != "/":
		return fmt.Errorf("invalid public_origin %q: must not include a path (use external_base_path for base path)", origin)
	}
	return nil
}
