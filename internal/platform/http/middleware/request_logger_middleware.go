// Package middleware provides the always-on transport middleware of the server.
package middleware

import (
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/curlaas-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/http/realip"
)

// RequestLoggerMiddleware attaches a request-scoped logger carrying
// request_id, method, path and client_ip to the request context.
//
// Must run after chimw.RequestID.
func RequestLoggerMiddleware(base *slog.Logger, trustedProxies *realip.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := base.With(baseFields(r, trustedProxies)...)
			next.ServeHTTP(w, r.WithContext(appctx.WithLogger(r.Context(), reqLogger)))
		})
	}
}

// baseFields never includes the query string; fetch targets travel in the body.
func baseFields(r *http.Request, trustedProxies *realip.TrustedProxies) []any {
	clientIP := "unknown"
	if trustedProxies != nil {
		clientIP = trustedProxies.GetClientIPString(r)
	}
	return []any{
		"request_id", chimw.GetReqID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"client_ip", clientIP,
	}
}
