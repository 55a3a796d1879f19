package server

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/curlaas-go/internal/components/api"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/deps"
	httpmw "github.com/MahdiBaghbani/curlaas-go/internal/platform/http/middleware"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/metrics"
)

// setupRoutes builds the root router: transport middleware, /metrics at
// host root, and every service under external_base_path.
func (s *Server) setupRoutes() chi.Router {
	d := deps.GetDeps()
	r := chi.NewRouter()

	// Order is fixed: RequestID -> request logger -> access log -> recoverer.
	r.Use(chimw.RequestID)
	r.Use(httpmw.RequestLoggerMiddleware(s.logger, d.RealIP))
	r.Use(httpmw.AccessLogMiddleware(s.logger, d.RealIP))
	r.Use(chimw.Recoverer)

	r.NotFound(api.NotFoundHandler)
	r.MethodNotAllowed(api.MethodNotAllowedHandler)

	var httpMetrics *httpmw.HTTPMetrics
	if s.registry != nil && s.cfg.Metrics.Enabled {
		httpMetrics = httpmw.NewHTTPMetrics(s.registry)
		r.Method(http.MethodGet, s.cfg.Metrics.Path, metrics.Handler(s.registry))
	}

	if s.cfg.ExternalBasePath != "" {
		r.Route(s.cfg.ExternalBasePath, func(r chi.Router) {
			r.NotFound(api.NotFoundHandler)
			s.mountServices(r, httpMetrics)
		})
	} else {
		s.mountServices(r, httpMetrics)
	}

	return r
}

func (s *Server) mountServices(r chi.Router, m *httpmw.HTTPMetrics) {
	names := make([]string, 0, len(s.services))
	for name := range s.services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		svc := s.services[name]
		if svc == nil {
			continue
		}
		handler := m.Wrap(name, svc.Handler())
		if prefix := svc.Prefix(); prefix != "" {
			r.Mount("/"+prefix, handler)
		} else {
			r.Mount("/", handler)
		}
		s.mountedServices = append(s.mountedServices, svc)
		s.logger.Debug("mounted service", "service", name, "prefix", svc.Prefix())
	}
}
