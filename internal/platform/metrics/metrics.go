// Package metrics exposes Prometheus collectors for the fetch pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch implements fetch.Observer on Prometheus collectors.
type Fetch struct {
	requests *prometheus.CounterVec
	hops     prometheus.Counter
	duration prometheus.Histogram
	blocked  *prometheus.CounterVec
}

// NewFetch creates the fetch collectors and registers them on reg.
func NewFetch(reg prometheus.Registerer) (*Fetch, error) {
	m := &Fetch{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetch_requests_total",
				Help: "Completed fetches by outcome (ok or error id).",
			},
			[]string{"outcome"},
		),
		hops: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fetch_hops_total",
				Help: "Outbound requests issued, one per redirect hop.",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fetch_duration_seconds",
				Help:    "Wall time of a fetch including all hops.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		blocked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetch_ssrf_blocked_total",
				Help: "Hops refused by the private-address policy, by stage.",
			},
			[]string{"stage"},
		),
	}
	for _, c := range []prometheus.Collector{m.requests, m.hops, m.duration, m.blocked} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveHop counts one outbound request.
func (m *Fetch) ObserveHop() { m.hops.Inc() }

// ObserveBlocked counts a refused hop.
func (m *Fetch) ObserveBlocked(stage string) { m.blocked.WithLabelValues(stage).Inc() }

// ObserveOutcome records the result of a whole fetch.
func (m *Fetch) ObserveOutcome(outcome string, elapsed time.Duration) {
	m.requests.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	return reg
}

// Handler serves the exposition format for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
