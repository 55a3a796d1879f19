package api

import (
	"encoding/json"
	"net/http"
)

// Health is the liveness body. SSRFGuard tells operators whether private
// destinations are being refused.
type Health struct {
	Status    string `json:"status"`
	SSRFGuard bool   `json:"ssrf_guard"`
}

// NewHealthHandler answers GET /api/healthz. It never touches the network.
func NewHealthHandler(ssrfGuard bool) http.HandlerFunc {
	body := Health{Status: "ok", SSRFGuard: ssrfGuard}
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		json.NewEncoder(w).Encode(body)
	}
}
