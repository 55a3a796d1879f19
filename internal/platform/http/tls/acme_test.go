package tls

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MahdiBaghbani/curlaas-go/internal/platform/config"
)

func TestHTTP01Provider_PresentAndCleanUp(t *testing.T) {
	p := &HTTP01Provider{}
	p.Present("example.com", "tok1", "keyAuth1")
	p.Present("example.com", "tok2", "keyAuth2")

	if v, ok := p.lookup("tok1"); !ok || v != "keyAuth1" {
		t.Errorf("tok1 = %q, %v", v, ok)
	}
	p.CleanUp("example.com", "tok1", "keyAuth1")
	if _, ok := p.lookup("tok1"); ok {
		t.Error("tok1 should be gone after CleanUp")
	}
	if v, ok := p.lookup("tok2"); !ok || v != "keyAuth2" {
		t.Errorf("tok2 = %q, %v", v, ok)
	}
}

func TestHTTP01Provider_ConcurrentAccess(t *testing.T) {
	p := &HTTP01Provider{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok := fmt.Sprintf("tok-%d", i)
			p.Present("example.com", tok, "auth")
			p.lookup(tok)
			p.CleanUp("example.com", tok, "auth")
		}(i)
	}
	wg.Wait()
}

func TestHTTP01Provider_TTLExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &HTTP01Provider{now: func() time.Time { return now }}
	p.Present("example.com", "tok", "auth")

	now = now.Add(challengeTTL)
	if _, ok := p.lookup("tok"); ok {
		t.Error("expected expired token")
	}
	if _, ok := p.tokens.Load("tok"); ok {
		t.Error("expired token should be deleted")
	}
}

func TestChallengeHandler(t *testing.T) {
	m := NewACMEManager(&config.ACMEConfig{StorageDir: t.TempDir()}, nil)
	m.provider.Present("example.com", "test-token", "test-key-auth")
	h := m.ChallengeHandler()

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/.well-known/acme-challenge/test-token", http.StatusOK, "test-key-auth"},
		{"/.well-known/acme-challenge/unknown", http.StatusNotFound, ""},
		{"/.well-known/acme-challenge/", http.StatusNotFound, ""},
		{"/other/path", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.wantCode {
			t.Errorf("%s: code %d, want %d", tt.path, rec.Code, tt.wantCode)
		}
		if tt.wantBody != "" {
			if rec.Body.String() != tt.wantBody || rec.Header().Get("Content-Type") != "text/plain" {
				t.Errorf("%s: body %q ct %q", tt.path, rec.Body.String(), rec.Header().Get("Content-Type"))
			}
		}
	}
}

func TestInit_RequiresDomainAndEmail(t *testing.T) {
	for _, cfg := range []config.ACMEConfig{
		{Email: "ops@example.org", StorageDir: t.TempDir()},
		{Domain: "fetch.example.org", StorageDir: t.TempDir()},
	} {
		if err := NewACMEManager(&cfg, nil).Init(context.Background()); err == nil {
			t.Errorf("Init(%+v) should fail", cfg)
		}
	}
}

func TestInit_UsesFreshStoredCertificate(t *testing.T) {
	dir := t.TempDir()
	certPEM, keyPEM := testKeyPair(t, "fetch.example.org", time.Now().Add(60*24*time.Hour))
	writeKeyPair(t, dir, "cert.pem", "key.pem", certPEM, keyPEM)

	// The directory URL is unroutable: any network use would fail Init.
	m := NewACMEManager(&config.ACMEConfig{
		Domain: "fetch.example.org", Email: "ops@example.org",
		StorageDir: dir, Directory: "http://127.0.0.1:1/directory",
	}, nil)
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	cert, err := m.GetTLSConfig().GetCertificate(nil)
	if err != nil || cert.Leaf.Subject.CommonName != "fetch.example.org" {
		t.Fatalf("GetCertificate = %v, %v", cert, err)
	}
}

func TestInit_RenewsExpiringCertificate(t *testing.T) {
	var hits atomic.Int32
	dirSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer dirSrv.Close()

	dir := t.TempDir()
	certPEM, keyPEM := testKeyPair(t, "fetch.example.org", time.Now().Add(5*24*time.Hour))
	writeKeyPair(t, dir, "cert.pem", "key.pem", certPEM, keyPEM)

	m := NewACMEManager(&config.ACMEConfig{
		Domain: "fetch.example.org", Email: "ops@example.org",
		StorageDir: dir, Directory: dirSrv.URL + "/directory",
	}, nil)
	err := m.Init(context.Background())
	if err == nil || !strings.Contains(err.Error(), "ACME client") {
		t.Fatalf("Init err = %v, want ACME client failure", err)
	}
	if hits.Load() == 0 {
		t.Error("expected the directory to be contacted for renewal")
	}
	if _, err := m.GetCertificate(nil); err == nil {
		t.Error("a certificate due for renewal must not be served")
	}
}

func TestStoreCertificate(t *testing.T) {
	m := NewACMEManager(&config.ACMEConfig{Domain: "fetch.example.org", StorageDir: t.TempDir()}, nil)
	certPEM, keyPEM := testKeyPair(t, "fetch.example.org", time.Now().Add(90*24*time.Hour))

	if err := m.storeCertificate(certPEM, keyPEM); err != nil {
		t.Fatal(err)
	}
	loaded, err := m.loadCertificate()
	if err != nil {
		t.Fatalf("loadCertificate: %v", err)
	}
	if !m.fresh(loaded) {
		t.Error("a 90 day certificate should be fresh")
	}
}

func TestDirectoryURL(t *testing.T) {
	tests := []struct {
		cfg  config.ACMEConfig
		want string
	}{
		{config.ACMEConfig{Directory: "https://acme.internal/dir", UseStaging: true}, "https://acme.internal/dir"},
		{config.ACMEConfig{UseStaging: true}, legoStagingURL},
		{config.ACMEConfig{}, legoProductionURL},
	}
	for _, tt := range tests {
		m := NewACMEManager(&tt.cfg, nil)
		if got := m.directoryURL(); got != tt.want {
			t.Errorf("directoryURL() = %q, want %q", got, tt.want)
		}
	}
}
