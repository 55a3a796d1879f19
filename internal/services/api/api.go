// Package api provides the /api/* endpoints.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/curlaas-go/internal/components/api"
	"github.com/MahdiBaghbani/curlaas-go/internal/frameworks/service"
	svccfg "github.com/MahdiBaghbani/curlaas-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/curlaas-go/internal/frameworks/service/httpwrap"
	"github.com/MahdiBaghbani/curlaas-go/internal/interceptors"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/config"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/deps"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/logutil"
)

func init() {
	service.MustRegister("api", New)
}

// Config is the [http.services.api] table.
type Config struct {
	Ratelimit RatelimitConfig `mapstructure:"ratelimit"`
}

// RatelimitConfig opts the fetch route into a ratelimit profile from
// [http.interceptors.ratelimit.profiles.<name>]. Empty means unlimited.
type RatelimitConfig struct {
	Profile string `mapstructure:"profile"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {}

// Service is the API service.
type Service struct {
	router chi.Router
	conf   *Config
}

// New creates the API service from the shared deps.
func New(m map[string]any, log *slog.Logger) (service.Service, error) {
	log = logutil.NoopIfNil(log)

	var c Config
	unused, err := svccfg.DecodeWithUnused(m, &c)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "api", "unused_keys", unused)
	}

	d := deps.GetDeps()
	if d == nil {
		return nil, errors.New("shared deps not initialized")
	}
	if d.Fetcher == nil {
		return nil, errors.New("api: fetcher not configured")
	}

	fetchHandler := http.Handler(api.NewFetchHandler(d.Fetcher))
	if c.Ratelimit.Profile != "" {
		var interceptorsCfg map[string]map[string]any
		if d.Config != nil {
			interceptorsCfg = d.Config.HTTP.Interceptors
		}
		limit, err := interceptors.Build(interceptorsCfg, "ratelimit", c.Ratelimit.Profile, log)
		if err != nil {
			return nil, fmt.Errorf("api: %w", err)
		}
		fetchHandler = limit(fetchHandler)
	}

	r := chi.NewRouter()
	r.NotFound(api.NotFoundHandler)
	r.MethodNotAllowed(api.MethodNotAllowedHandler)

	r.Get("/healthz", api.NewHealthHandler(d.Config == nil || d.Config.OutboundHTTP.SSRFMode != config.SSRFModeOff))
	r.Method(http.MethodPost, "/HTTP/{method}", fetchHandler)

	return &Service{router: r, conf: &c}, nil
}

// Handler returns the service's HTTP handler with RawPath clearing.
func (s *Service) Handler() http.Handler {
	return httpwrap.ClearRawPath(s.router)
}

// Prefix returns the URL prefix for this service.
func (s *Service) Prefix() string {
	return "api"
}

// Close releases any resources held by the service.
func (s *Service) Close() error {
	return nil
}
