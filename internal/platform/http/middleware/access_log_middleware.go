package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/curlaas-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/http/realip"
)

// AccessLogMiddleware emits one "request" line per request once the
// handler returns. It reuses the context logger from RequestLoggerMiddleware
// and only adds status, bytes and duration_ms; log and trustedProxies are
// used to rebuild the base fields when that logger is missing.
//
// Must run outside chimw.Recoverer so panics are logged as 500.
func AccessLogMiddleware(log *slog.Logger, trustedProxies *realip.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger, ok := appctx.LoggerFromContext(r.Context())
				if !ok {
					logger = log.With(baseFields(r, trustedProxies)...)
				}
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				logger.Info("request",
					"status", status,
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
