// Package client provides the outbound HTTP transport used for fetches.
//
// The transport never follows redirects, ignores proxy environment
// variables and, when the request context carries a pinned address, dials
// that address instead of resolving the URL host again.
package client

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/MahdiBaghbani/curlaas-go/internal/platform/config"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/netguard"
)

// Client executes single HTTP requests for the fetcher.
type Client struct {
	cfg        *config.OutboundHTTPConfig
	httpClient *http.Client
}

// New creates a client. A nil cfg uses the strict defaults.
func New(cfg *config.OutboundHTTPConfig) *Client {
	if cfg == nil {
		cfg = config.DefaultOutboundHTTPConfig()
	}

	dialer := &net.Dialer{
		Timeout: time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond,
	}
	if cfg.SSRFMode == config.SSRFModeStrict && cfg.DialGuard {
		dialer.Control = netguard.NewDialGuard().Control
	}

	transport := &http.Transport{
		// Explicitly ignore proxy environment variables
		Proxy:       nil,
		DialContext: pinnedDialer(dialer),
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
		TLSHandshakeTimeout: time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond,
		// Every hop must dial the address checked for that hop.
		DisableKeepAlives: true,
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.TimeoutMS) * time.Millisecond,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func pinnedDialer(d *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if pinned, ok := netguard.PinnedAddr(ctx); ok {
			_, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			addr = net.JoinHostPort(pinned.String(), port)
		}
		return d.DialContext(ctx, network, addr)
	}
}

// Do performs exactly one request. Redirect responses are returned as-is.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.cfg.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	return c.httpClient.Do(req)
}
