package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"

	"github.com/MahdiBaghbani/curlaas-go/internal/components/fetch"
	_ "github.com/MahdiBaghbani/curlaas-go/internal/interceptors/ratelimit"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/cache/memory"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/config"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/deps"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/http/realip"
)

type staticResolver struct{}

func (staticResolver) Resolve(context.Context, string) (netip.Addr, error) {
	return netip.MustParseAddr("93.184.216.34"), nil
}

type okDoer struct{ methods []string }

func (d *okDoer) Do(req *http.Request) (*http.Response, error) {
	d.methods = append(d.methods, req.Method)
	return &http.Response{
		StatusCode: http.StatusOK,
		ProtoMajor: 1, ProtoMinor: 1,
		Header: http.Header{"Server": {"test"}},
		Body:   http.NoBody,
	}, nil
}

func setupTestDeps(t *testing.T, cfg *config.Config) *okDoer {
	t.Helper()
	deps.ResetDeps()
	t.Cleanup(deps.ResetDeps)

	doer := &okDoer{}
	counter := memory.New(0)
	t.Cleanup(func() { counter.Close() })
	deps.SetDeps(&deps.Deps{
		Config:  cfg,
		Fetcher: fetch.NewFetcher(doer, staticResolver{}, fetch.Options{}),
		Cache:   counter,
		RealIP:  realip.NewTrustedProxies(nil),
	})
	return doer
}

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.RemoteAddr = "198.51.100.1:4000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_FailsWithoutSharedDeps(t *testing.T) {
	deps.ResetDeps()
	if _, err := New(nil, nil); err == nil {
		t.Error("expected error when shared deps are not initialized")
	}
}

func TestService_Routes(t *testing.T) {
	doer := setupTestDeps(t, config.StrictConfig())

	svc, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if svc.Prefix() != "api" {
		t.Errorf("Prefix() = %q", svc.Prefix())
	}
	h := svc.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz: %d", rec.Code)
	}

	rec = post(h, "/HTTP/G%45T", `{"url":"http://example.com/"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("fetch: %d %s", rec.Code, rec.Body.String())
	}
	if len(doer.methods) != 1 || doer.methods[0] != "GET" {
		t.Errorf("doer saw %v", doer.methods)
	}
	if !strings.Contains(rec.Body.String(), `"domain":"example.com"`) {
		t.Errorf("body %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/HTTP/get", nil))
	if rec.Code != http.StatusMethodNotAllowed || !strings.Contains(rec.Body.String(), "METHOD_NOT_ALLOWED") {
		t.Errorf("GET on fetch route: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown route: %d", rec.Code)
	}
}

func TestService_RatelimitProfile(t *testing.T) {
	cfg := config.StrictConfig()
	cfg.HTTP.Interceptors = map[string]map[string]any{
		"ratelimit": {"profiles": map[string]any{
			"tight": map[string]any{"requests_per_window": int64(1), "window_seconds": int64(60)},
		}},
	}
	setupTestDeps(t, cfg)

	svc, err := New(map[string]any{"ratelimit": map[string]any{"profile": "tight"}}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := svc.Handler()

	if rec := post(h, "/HTTP/get", `{"url":"http://example.com/"}`); rec.Code != http.StatusOK {
		t.Fatalf("first: %d", rec.Code)
	}
	rec := post(h, "/HTTP/get", `{"url":"http://example.com/"}`)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Errorf("second: %d retry-after %q", rec.Code, rec.Header().Get("Retry-After"))
	}

	// healthz is never limited
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("healthz limited: %d", rec.Code)
		}
	}
}

func TestService_UnknownRatelimitProfile(t *testing.T) {
	setupTestDeps(t, config.StrictConfig())

	_, err := New(map[string]any{"ratelimit": map[string]any{"profile": "missing"}}, nil)
	if err == nil {
		t.Fatal("expected error for an unknown profile")
	}
	if !strings.HasPrefix(err.Error(), "api: ") {
		t.Errorf("err = %v", err)
	}
}
