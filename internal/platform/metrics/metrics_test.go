package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// sample returns the value of the series name{labels...} in reg.
func sample(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	next:
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("series %s%v not found", name, labels)
	return 0
}

func TestFetch_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewFetch(reg)
	if err != nil {
		t.Fatal(err)
	}

	m.ObserveHop()
	m.ObserveHop()
	m.ObserveBlocked("check")
	m.ObserveOutcome("ok", 20*time.Millisecond)
	m.ObserveOutcome("SSRF_DETECTED", time.Millisecond)

	if got := sample(t, reg, "fetch_hops_total", nil); got != 2 {
		t.Errorf("hops = %v", got)
	}
	if got := sample(t, reg, "fetch_ssrf_blocked_total", map[string]string{"stage": "check"}); got != 1 {
		t.Errorf("blocked{check} = %v", got)
	}
	if got := sample(t, reg, "fetch_requests_total", map[string]string{"outcome": "SSRF_DETECTED"}); got != 1 {
		t.Errorf("requests{SSRF_DETECTED} = %v", got)
	}
	if got := sample(t, reg, "fetch_duration_seconds", nil); got != 2 {
		t.Errorf("duration samples = %v", got)
	}
}

func TestNewFetch_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewFetch(reg); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFetch(reg); err == nil {
		t.Fatal("expected an error registering twice on one registry")
	}
}

func TestHandler_Exposition(t *testing.T) {
	reg := NewRegistry()
	m, err := NewFetch(reg)
	if err != nil {
		t.Fatal(err)
	}
	m.ObserveOutcome("ok", time.Millisecond)

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rr.Body)
	for _, want := range []string{`fetch_requests_total{outcome="ok"} 1`, "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
