package tls

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"

	"github.com/MahdiBaghbani/curlaas-go/internal/platform/config"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/logutil"
)

const (
	legoStagingURL    = "https://acme-staging-v02.api.letsencrypt.org/directory"
	legoProductionURL = "https://acme-v02.api.letsencrypt.org/directory"

	// renewBefore is the remaining validity below which a stored
	// certificate is replaced at startup.
	renewBefore = 30 * 24 * time.Hour

	challengeTTL = 10 * time.Minute
)

// ACMEUser implements lego's registration.User.
type ACMEUser struct {
	Email        string                 `json:"email"`
	Registration *registration.Resource `json:"registration"`
	key          crypto.PrivateKey
}

func (u *ACMEUser) GetEmail() string                        { return u.Email }
func (u *ACMEUser) GetRegistration() *registration.Resource { return u.Registration }
func (u *ACMEUser) GetPrivateKey() crypto.PrivateKey        { return u.key }

type tokenEntry struct {
	keyAuth   string
	expiresAt time.Time
}

// HTTP01Provider is a lego challenge.Provider backed by an in-memory token
// map. The server owns the HTTP listener; lego never binds a port.
type HTTP01Provider struct {
	tokens sync.Map // token -> tokenEntry
	now    func() time.Time
}

func (p *HTTP01Provider) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

func (p *HTTP01Provider) Present(domain, token, keyAuth string) error {
	p.tokens.Store(token, tokenEntry{keyAuth: keyAuth, expiresAt: p.clock().Add(challengeTTL)})
	return nil
}

func (p *HTTP01Provider) CleanUp(domain, token, keyAuth string) error {
	p.tokens.Delete(token)
	return nil
}

func (p *HTTP01Provider) lookup(token string) (string, bool) {
	v, ok := p.tokens.Load(token)
	if !ok {
		return "", false
	}
	e := v.(tokenEntry)
	if !p.clock().Before(e.expiresAt) {
		p.tokens.Delete(token)
		return "", false
	}
	return e.keyAuth, true
}

// ACMEManager obtains and serves a certificate for [tls.acme] domain.
type ACMEManager struct {
	cfg      *config.ACMEConfig
	logger   *slog.Logger
	provider *HTTP01Provider
	now      func() time.Time

	mu   sync.RWMutex
	cert *cryptotls.Certificate
}

// NewACMEManager creates a manager. The challenge handler is usable
// immediately, before Init.
func NewACMEManager(cfg *config.ACMEConfig, logger *slog.Logger) *ACMEManager {
	return &ACMEManager{
		cfg:      cfg,
		logger:   logutil.NoopIfNil(logger),
		provider: &HTTP01Provider{},
		now:      time.Now,
	}
}

// Init loads the stored certificate when it is still valid for longer than
// renewBefore; otherwise it registers (once) and obtains a new one.
func (m *ACMEManager) Init(ctx context.Context) error {
	if m.cfg.Domain == "" {
		return errors.New("ACME domain is required")
	}
	if m.cfg.Email == "" {
		return errors.New("ACME email is required")
	}
	if err := os.MkdirAll(m.cfg.StorageDir, 0o700); err != nil {
		return fmt.Errorf("failed to create ACME storage dir: %w", err)
	}

	if cert, err := m.loadCertificate(); err == nil {
		if m.fresh(cert) {
			m.setCert(cert)
			m.logger.Info("loaded existing ACME certificate", "domain", m.cfg.Domain, "not_after", cert.Leaf.NotAfter)
			return nil
		}
		m.logger.Info("stored ACME certificate due for renewal", "domain", m.cfg.Domain, "not_after", cert.Leaf.NotAfter)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	client, user, err := m.newClient()
	if err != nil {
		return err
	}
	if user.Registration == nil {
		reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
		if err != nil {
			return fmt.Errorf("failed to register ACME account: %w", err)
		}
		user.Registration = reg
		if err := m.saveUser(user); err != nil {
			m.logger.Warn("failed to save ACME account", "error", err)
		}
	}

	m.logger.Info("obtaining ACME certificate", "domain", m.cfg.Domain)
	res, err := client.Certificate.Obtain(certificate.ObtainRequest{
		Domains: []string{m.cfg.Domain},
		Bundle:  true,
	})
	if err != nil {
		return fmt.Errorf("failed to obtain certificate: %w", err)
	}
	return m.storeCertificate(res.Certificate, res.PrivateKey)
}

func (m *ACMEManager) newClient() (*lego.Client, *ACMEUser, error) {
	user, err := m.loadOrCreateUser()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load ACME account: %w", err)
	}

	legoCfg := lego.NewConfig(user)
	legoCfg.CADirURL = m.directoryURL()
	legoCfg.Certificate.KeyType = certcrypto.EC256

	client, err := lego.NewClient(legoCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create ACME client: %w", err)
	}
	if err := client.Challenge.SetHTTP01Provider(m.provider); err != nil {
		return nil, nil, fmt.Errorf("failed to set HTTP-01 provider: %w", err)
	}
	return client, user, nil
}

func (m *ACMEManager) directoryURL() string {
	switch {
	case m.cfg.Directory != "":
		return m.cfg.Directory
	case m.cfg.UseStaging:
		return legoStagingURL
	default:
		return legoProductionURL
	}
}

func (m *ACMEManager) fresh(cert *cryptotls.Certificate) bool {
	return cert.Leaf != nil && cert.Leaf.NotAfter.Sub(m.now()) > renewBefore
}

func (m *ACMEManager) setCert(cert *cryptotls.Certificate) {
	m.mu.Lock()
	m.cert = cert
	m.mu.Unlock()
}

// GetCertificate implements tls.Config.GetCertificate.
func (m *ACMEManager) GetCertificate(*cryptotls.ClientHelloInfo) (*cryptotls.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cert == nil {
		return nil, errors.New("no certificate available")
	}
	return m.cert, nil
}

// GetTLSConfig returns a config serving the managed certificate.
func (m *ACMEManager) GetTLSConfig() *cryptotls.Config {
	return &cryptotls.Config{
		GetCertificate: m.GetCertificate,
		MinVersion:     cryptotls.VersionTLS12,
	}
}

// ChallengeHandler serves /.well-known/acme-challenge/{token}.
func (m *ACMEManager) ChallengeHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "/.well-known/acme-challenge/"
		token, ok := strings.CutPrefix(r.URL.Path, prefix)
		if !ok || token == "" {
			http.NotFound(w, r)
			return
		}
		keyAuth, ok := m.provider.lookup(token)
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, keyAuth)
	})
}

func (m *ACMEManager) path(name string) string {
	return filepath.Join(m.cfg.StorageDir, name)
}

func (m *ACMEManager) loadOrCreateUser() (*ACMEUser, error) {
	if userData, err := os.ReadFile(m.path("account.json")); err == nil {
		if keyData, err := os.ReadFile(m.path("account.key")); err == nil {
			user := &ACMEUser{}
			if err := json.Unmarshal(userData, user); err == nil {
				if key, err := certcrypto.ParsePEMPrivateKey(keyData); err == nil {
					user.key = key
					return user, nil
				}
			}
		}
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate account key: %w", err)
	}
	return &ACMEUser{Email: m.cfg.Email, key: key}, nil
}

func (m *ACMEManager) saveUser(user *ACMEUser) error {
	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.path("account.json"), data, 0o600); err != nil {
		return err
	}
	return os.WriteFile(m.path("account.key"), certcrypto.PEMEncode(user.key), 0o600)
}

func (m *ACMEManager) loadCertificate() (*cryptotls.Certificate, error) {
	cert, err := cryptotls.LoadX509KeyPair(m.path("cert.pem"), m.path("key.pem"))
	if err != nil {
		return nil, err
	}
	if cert.Leaf == nil {
		if cert.Leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
			return nil, err
		}
	}
	return &cert, nil
}

func (m *ACMEManager) storeCertificate(certPEM, keyPEM []byte) error {
	cert, err := cryptotls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}
	if cert.Leaf == nil {
		if cert.Leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
			return fmt.Errorf("failed to parse certificate: %w", err)
		}
	}
	if err := os.WriteFile(m.path("cert.pem"), certPEM, 0o644); err != nil {
		return fmt.Errorf("failed to save certificate: %w", err)
	}
	if err := os.WriteFile(m.path("key.pem"), keyPEM, 0o600); err != nil {
		return fmt.Errorf("failed to save key: %w", err)
	}
	m.setCert(&cert)
	m.logger.Info("obtained and saved ACME certificate", "domain", m.cfg.Domain)
	return nil
}
