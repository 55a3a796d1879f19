// Package fetch performs outbound HTTP requests on behalf of callers,
// following redirects itself so that every hop is resolved and checked
// against the private-address policy before any connection is made.
package fetch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MahdiBaghbani/curlaas-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/curlaas-go/internal/platform/netguard"
)

// DefaultMaxRedirects is the redirect bound used when Options leaves it unset.
const DefaultMaxRedirects = 10

// Doer executes exactly one HTTP request and must not follow redirects.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// AddrResolver maps a host to the single address that will be checked.
type AddrResolver interface {
	Resolve(ctx context.Context, host string) (netip.Addr, error)
}

// Observer receives fetch events. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveHop()
	ObserveBlocked(stage string)
	ObserveOutcome(outcome string, elapsed time.Duration)
}

// Blocked stages reported to Observer.
const (
	StageCheck = "check"
	StageDial  = "dial"
)

// OutcomeOK is the outcome label of a successful fetch; failures use their Kind.
const OutcomeOK = "ok"

type noopObserver struct{}

func (noopObserver) ObserveHop()                          {}
func (noopObserver) ObserveBlocked(string)                {}
func (noopObserver) ObserveOutcome(string, time.Duration) {}

// Options configures a Fetcher.
type Options struct {
	// MaxRedirects bounds the number of redirects followed. Zero means
	// DefaultMaxRedirects.
	MaxRedirects int
	// DisableGuard skips the private-address check. Only for development.
	DisableGuard bool
	// DisablePinning lets the transport resolve the host again instead of
	// dialing the checked address.
	DisablePinning bool
	// LogURLs includes full target URLs in logs; otherwise only hosts.
	LogURLs bool
	Logger  *slog.Logger
	Metrics Observer
}

// Fetcher follows redirect chains under the private-address policy.
// A Fetcher holds no per-call state and is safe for concurrent use.
type Fetcher struct {
	doer         Doer
	resolver     AddrResolver
	maxRedirects int
	guard        bool
	pin          bool
	logURLs      bool
	log          *slog.Logger
	obs          Observer
}

// NewFetcher creates a Fetcher.
func NewFetcher(doer Doer, resolver AddrResolver, opts Options) *Fetcher {
	limit := opts.MaxRedirects
	if limit <= 0 {
		limit = DefaultMaxRedirects
	}
	obs := opts.Metrics
	if obs == nil {
		obs = noopObserver{}
	}
	return &Fetcher{
		doer:         doer,
		resolver:     resolver,
		maxRedirects: limit,
		guard:        !opts.DisableGuard,
		pin:          !opts.DisablePinning,
		logURLs:      opts.LogURLs,
		log:          logutil.NoopIfNil(opts.Logger),
		obs:          obs,
	}
}

// Fetch requests rawURL with method and follows redirects. It returns either
// the complete trail or an *Error; history gathered before a failure is
// discarded.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, method string) (*Result, error) {
	start := time.Now()
	log := f.log.With("fetch_id", uuid.NewString(), "method", method)

	res, err := f.follow(ctx, log, rawURL, method)

	outcome := OutcomeOK
	if err != nil {
		outcome = string(KindOf(err))
	}
	f.obs.ObserveOutcome(outcome, time.Since(start))

	if err != nil {
		log.Info("fetch failed", "error_id", outcome, "error", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	log.Info("fetch completed", "hops", len(res.Request), "duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

func (f *Fetcher) follow(ctx context.Context, log *slog.Logger, current, method string) (*Result, error) {
	res := &Result{
		Request:  []RequestRecord{},
		Response: []ResponseRecord{},
	}
	redirects := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, requestException(err)
		}

		u, err := parseURL(current)
		if err != nil {
			return nil, err
		}

		addr, err := f.resolver.Resolve(ctx, u.Hostname())
		if err != nil {
			if errors.Is(err, netguard.ErrResolveTimeout) {
				return nil, requestException(err)
			}
			return nil, newError(KindInvalidDomainRecord, detailInvalidDomain, err)
		}

		hopLog := log.With("hop", len(res.Request), "target", f.target(current, u.Host), "addr", addr.String())

		if f.guard {
			if err := netguard.Check(addr); err != nil {
				f.obs.ObserveBlocked(StageCheck)
				hopLog.Warn("destination blocked", "classification", string(netguard.Classify(addr)))
				return nil, newError(KindSSRFDetected, detailSSRF, err)
			}
		}

		res.Request = append(res.Request, RequestRecord{Method: method, URL: current})

		resp, err := f.do(ctx, current, method, addr)
		if err != nil {
			if errors.Is(err, netguard.ErrBlocked) {
				f.obs.ObserveBlocked(StageDial)
				hopLog.Warn("destination blocked at dial", "error", err)
				return nil, newError(KindSSRFDetected, detailSSRF, err)
			}
			hopLog.Debug("request failed", "error", err)
			return nil, requestException(err)
		}
		resp.Body.Close()
		f.obs.ObserveHop()

		res.Response = append(res.Response, ResponseRecord{
			HTTPVersion: HTTPVersion(resp.ProtoMajor, resp.ProtoMinor),
			StatusCode:  resp.StatusCode,
			Headers:     FilterHeaders(resp.Header),
		})
		hopLog.Debug("hop completed", "status", resp.StatusCode)

		if !IsRedirect(resp.StatusCode) {
			return res, nil
		}
		if redirects >= f.maxRedirects {
			return nil, newError(KindTooManyRedirects, detailTooManyRedirects, nil)
		}

		loc := resp.Header.Get("Location")
		if loc == "" {
			return nil, requestException(errors.New("redirect response without Location header"))
		}
		next, err := u.Parse(loc)
		if err != nil {
			return nil, requestException(err)
		}
		redirects++
		current = next.String()
	}
}

func (f *Fetcher) do(ctx context.Context, target, method string, addr netip.Addr) (*http.Response, error) {
	if f.pin {
		ctx = netguard.WithPinnedAddr(ctx, addr)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), target, nil)
	if err != nil {
		return nil, err
	}
	return f.doer.Do(req)
}

func (f *Fetcher) target(raw, host string) string {
	if f.logURLs {
		return raw
	}
	return host
}
