package middleware

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	httpmetrics "github.com/slok/go-http-metrics/metrics/prometheus"
	httpmw "github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"
)

// HTTPMetrics records inbound request metrics. Build it once per registry;
// the recorder registers its collectors on construction.
type HTTPMetrics struct {
	mdlw httpmw.Middleware
}

// NewHTTPMetrics registers the go-http-metrics collectors on reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	return &HTTPMetrics{
		mdlw: httpmw.New(httpmw.Config{
			Recorder: httpmetrics.NewRecorder(httpmetrics.Config{Registry: reg}),
		}),
	}
}

// Wrap measures h under a fixed handler id. A fixed id keeps the
// caller-chosen path segments out of the label set.
func (m *HTTPMetrics) Wrap(handlerID string, h http.Handler) http.Handler {
	if m == nil {
		return h
	}
	return std.Handler(handlerID, m.mdlw, h)
}
