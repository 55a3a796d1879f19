// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MahdiBaghbani/curlaas-go/internal/components/fetch"
	"github.com/MahdiBaghbani/curlaas-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/config"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/deps"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/logutil"

	tlspkg "github.com/MahdiBaghbani/curlaas-go/internal/platform/http/tls"
)

var ErrMissingSharedDeps = errors.New("shared deps not initialized: call deps.SetDeps() before server.New()")

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	logger     *slog.Logger
	services   map[string]service.Service
	registry   *prometheus.Registry

	// challengeServer answers ACME HTTP-01 challenges and redirects the
	// rest to HTTPS. Nil except in ACME mode.
	challengeServer *http.Server

	// mountedServices is in mount order; Shutdown closes them in reverse.
	mountedServices []service.Service
}

// New creates a Server. Services are mounted in name order; nil entries
// are skipped. A nil registry disables /metrics and HTTP instrumentation.
func New(cfg *config.Config, logger *slog.Logger, services map[string]service.Service, registry *prometheus.Registry) (*Server, error) {
	logger = logutil.NoopIfNil(logger)

	if deps.GetDeps() == nil {
		return nil, ErrMissingSharedDeps
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		services: services,
		registry: registry,
	}

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.setupRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout(cfg.OutboundHTTP),
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// writeMargin is left after the slowest permitted fetch for encoding and
// writing the response.
const writeMargin = 30 * time.Second

// writeTimeout outlasts the longest fetch the outbound limits permit: every
// attempt of a maximal redirect chain, each with its own resolve and request
// budget. An unbounded budget yields zero, which disables the deadline.
func writeTimeout(o config.OutboundHTTPConfig) time.Duration {
	if o.TimeoutMS <= 0 || o.ResolveTimeoutMS <= 0 {
		return 0
	}
	redirects := o.MaxRedirects
	if redirects <= 0 {
		redirects = fetch.DefaultMaxRedirects
	}
	perAttempt := time.Duration(o.TimeoutMS+o.ResolveTimeoutMS) * time.Millisecond
	return time.Duration(redirects+1)*perAttempt + writeMargin
}

// Handler returns the root router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server. It blocks until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		"addr", s.cfg.ListenAddr,
		"public_origin", s.cfg.PublicOrigin,
		"external_base_path", s.cfg.ExternalBasePath,
		"tls_mode", s.cfg.TLS.Mode,
	)

	switch s.cfg.TLS.Mode {
	case "off":
		return s.httpServer.ListenAndServe()

	case "acme":
		return s.startACME()

	case "static":
		tlsConfig, err := tlspkg.StaticConfig(&s.cfg.TLS, s.logger)
		if err != nil {
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		s.httpServer.TLSConfig = tlsConfig
		// Empty file names make ListenAndServeTLS use TLSConfig.Certificates.
		return s.httpServer.ListenAndServeTLS("", "")

	default:
		return fmt.Errorf("%w: %s", tlspkg.ErrInvalidTLSMode, s.cfg.TLS.Mode)
	}
}

// acmeAddrs derives the challenge and HTTPS listen addresses. Only the host
// part of listen_addr is used; ports come from [tls].
func acmeAddrs(cfg *config.Config) (httpAddr, httpsAddr string, err error) {
	host, _, splitErr := net.SplitHostPort(cfg.ListenAddr)
	if splitErr != nil {
		host = cfg.ListenAddr
	}
	if cfg.TLS.HTTPPort == 0 {
		return "", "", errors.New("tls.http_port must be set for ACME mode")
	}
	if cfg.TLS.HTTPSPort == 0 {
		return "", "", errors.New("tls.https_port must be set for ACME mode")
	}
	if origin, parseErr := url.Parse(cfg.PublicOrigin); parseErr == nil && origin.Port() != "" {
		if p, _ := strconv.Atoi(origin.Port()); p != cfg.TLS.HTTPSPort {
			return "", "", fmt.Errorf("public_origin port %s does not match tls.https_port %d", origin.Port(), cfg.TLS.HTTPSPort)
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.TLS.HTTPPort)),
		net.JoinHostPort(host, strconv.Itoa(cfg.TLS.HTTPSPort)), nil
}

// startACME serves HTTP-01 challenges (and redirects everything else) on the
// plain port, obtains or loads the certificate, then serves the router over
// HTTPS. Either listener failing stops the other.
func (s *Server) startACME() error {
	httpAddr, httpsAddr, err := acmeAddrs(s.cfg)
	if err != nil {
		return err
	}

	acmeMgr := tlspkg.NewACMEManager(&s.cfg.TLS.ACME, s.logger)

	challengeMux := http.NewServeMux()
	challengeMux.Handle("/.well-known/acme-challenge/", acmeMgr.ChallengeHandler())
	challengeMux.Handle("/", newHTTPSRedirectHandler(s.cfg.TLS.HTTPSPort))
	s.challengeServer = &http.Server{
		Addr:         httpAddr,
		Handler:      challengeMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	challengeLn, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return fmt.Errorf("challenge listener bind failed on %s: %w", httpAddr, err)
	}
	challengeErr := make(chan error, 1)
	go func() { challengeErr <- s.challengeServer.Serve(challengeLn) }()

	stopChallenge := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.challengeServer.Shutdown(ctx); err != nil {
			_ = s.challengeServer.Close()
		}
	}

	// The CA validates against challengeLn, so it must be serving first.
	if err := acmeMgr.Init(context.Background()); err != nil {
		stopChallenge()
		return fmt.Errorf("ACME initialization failed: %w", err)
	}

	s.httpServer.Addr = httpsAddr
	s.httpServer.TLSConfig = acmeMgr.GetTLSConfig()
	httpsLn, err := net.Listen("tcp", httpsAddr)
	if err != nil {
		stopChallenge()
		return fmt.Errorf("https listener bind failed on %s: %w", httpsAddr, err)
	}
	httpsErr := make(chan error, 1)
	go func() { httpsErr <- s.httpServer.ServeTLS(httpsLn, "", "") }()

	s.logger.Info("serving with ACME certificate", "http_addr", httpAddr, "https_addr", httpsAddr, "domain", s.cfg.TLS.ACME.Domain)

	select {
	case err := <-httpsErr:
		stopChallenge()
		return err
	case err := <-challengeErr:
		if errors.Is(err, http.ErrServerClosed) {
			return <-httpsErr
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(ctx)
		return fmt.Errorf("challenge server exited unexpectedly: %w", err)
	}
}

// newHTTPSRedirectHandler answers with 308 to the HTTPS form of the request URL.
func newHTTPSRedirectHandler(httpsPort int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hostOnly := r.Host
		if h, _, err := net.SplitHostPort(hostOnly); err == nil {
			hostOnly = h
		}
		if strings.Contains(hostOnly, ":") && !strings.HasPrefix(hostOnly, "[") {
			hostOnly = "[" + hostOnly + "]"
		}

		target := "https://" + hostOnly
		if httpsPort != 443 {
			target += ":" + strconv.Itoa(httpsPort)
		}
		http.Redirect(w, r, target+r.URL.RequestURI(), http.StatusPermanentRedirect)
	})
}

// Shutdown stops the listeners and closes mounted services.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var challengeErr error
	if s.challengeServer != nil {
		challengeErr = s.challengeServer.Shutdown(ctx)
	}

	httpErr := s.httpServer.Shutdown(ctx)

	for i := len(s.mountedServices) - 1; i >= 0; i-- {
		svc := s.mountedServices[i]
		if err := svc.Close(); err != nil {
			s.logger.Warn("service close error", "service", svc.Prefix(), "error", err)
			continue
		}
		s.logger.Debug("service closed", "service", svc.Prefix())
	}

	return errors.Join(challengeErr, httpErr)
}
