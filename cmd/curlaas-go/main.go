// Package main is the entrypoint for the curlaas-go server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MahdiBaghbani/curlaas-go/internal/components/fetch"
	"github.com/MahdiBaghbani/curlaas-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/cache"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/config"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/deps"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/http/client"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/http/realip"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/http/server"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/metrics"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/netguard"

	// Register cache drivers, services and interceptors
	_ "github.com/MahdiBaghbani/curlaas-go/internal/platform/cache/loader"
	_ "github.com/MahdiBaghbani/curlaas-go/internal/services/loader"
)

func main() {
	os.Exit(run())
}

// run wires and serves until a signal or a server error. Deferred cleanup
// runs before the exit code is returned.
func run() int {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: strict or dev (overrides config)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	publicOrigin := flag.String("public-origin", "", "Public origin (overrides config)")
	externalBasePath := flag.String("external-base-path", "", "External base path (overrides config)")
	ssrfMode := flag.String("ssrf-mode", "", "SSRF protection mode: strict or off (overrides config)")
	maxRedirects := flag.String("max-redirects", "", "Maximum redirects followed per fetch (overrides config)")
	tlsMode := flag.String("tls-mode", "", "TLS mode: off, static, or acme (overrides config)")
	cacheDriver := flag.String("cache-driver", "", "Cache driver: memory or redis (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	loggingAllowSensitive := flag.String("logging-allow-sensitive", "", "Log full target URLs: true or false (overrides config)")
	metricsEnabled := flag.String("metrics-enabled", "", "Serve Prometheus metrics: true or false (overrides config)")
	flag.Parse()

	bootstrapLogger := logutil.NewJSON(os.Stdout, slog.LevelInfo)

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:            listenAddr,
			PublicOrigin:          publicOrigin,
			ExternalBasePath:      externalBasePath,
			SSRFMode:              ssrfMode,
			MaxRedirects:          maxRedirects,
			TLSMode:               tlsMode,
			CacheDriver:           cacheDriver,
			LoggingLevel:          loggingLevel,
			LoggingAllowSensitive: loggingAllowSensitive,
			MetricsEnabled:        metricsEnabled,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		return 1
	}

	logger := logutil.NewJSON(os.Stdout, logutil.ParseLevel(cfg.Logging.Level))
	slog.SetDefault(logger)

	logger.Info("effective configuration", "config", cfg.Redacted())
	if cfg.OutboundHTTP.SSRFMode == config.SSRFModeOff {
		logger.Warn("SSRF protection is disabled; private and loopback targets are reachable")
	}

	registry := metrics.NewRegistry()
	fetchMetrics, err := metrics.NewFetch(registry)
	if err != nil {
		logger.Error("failed to register fetch metrics", "error", err)
		return 1
	}

	resolver := netguard.NewResolver(nil, time.Duration(cfg.OutboundHTTP.ResolveTimeoutMS)*time.Millisecond)
	fetcher := fetch.NewFetcher(client.New(&cfg.OutboundHTTP), resolver, fetch.Options{
		MaxRedirects:   cfg.OutboundHTTP.MaxRedirects,
		DisableGuard:   cfg.OutboundHTTP.SSRFMode == config.SSRFModeOff,
		DisablePinning: !cfg.OutboundHTTP.PinResolvedAddress,
		LogURLs:        cfg.Logging.AllowSensitive,
		Logger:         logger,
		Metrics:        fetchMetrics,
	})

	counter, err := cache.New(cfg.Cache.Driver, cache.DriverConfig(cfg.Cache.Drivers, cfg.Cache.Driver), logger)
	if err != nil {
		logger.Error("failed to create cache", "driver", cfg.Cache.Driver, "error", err)
		return 1
	}
	defer counter.Close()

	deps.SetDeps(&deps.Deps{
		Config:  cfg,
		Fetcher: fetcher,
		Cache:   counter,
		RealIP:  realip.NewTrustedProxies(cfg.Server.TrustedProxies),
	})

	services := make(map[string]service.Service)
	for _, name := range service.Enabled(cfg.HTTP.Services) {
		newFunc := service.Get(name)
		if newFunc == nil {
			logger.Error("unknown service", "service", name, "registered", service.RegisteredServices())
			return 1
		}
		svc, err := newFunc(cfg.BuildServiceConfig(name), logger.With("service", name))
		if err != nil {
			logger.Error("failed to create service", "service", name, "error", err)
			return 1
		}
		services[name] = svc
	}

	srv, err := server.New(cfg, logger, services, registry)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, srv, logger, 30*time.Second)
}

// lifecycle is the part of *server.Server that serve drives.
type lifecycle interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// serve runs srv until ctx is done or Start fails, then shuts it down
// within grace. It returns the process exit code.
func serve(ctx context.Context, srv lifecycle, logger *slog.Logger, grace time.Duration) int {
	exitCode := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
		exitCode = 1
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		exitCode = 1
	}

	logger.Info("server stopped")
	return exitCode
}
