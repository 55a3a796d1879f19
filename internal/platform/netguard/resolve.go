package netguard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"golang.org/x/net/idna"
)

var (
	// ErrUnresolvableHost means the name has no usable address record.
	ErrUnresolvableHost = errors.New("host could not be resolved")
	// ErrResolveTimeout means the lookup ran out of time or was cancelled.
	ErrResolveTimeout = errors.New("host resolution timed out")
)

// LookupBackend performs forward lookups. *net.Resolver satisfies it.
type LookupBackend interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Resolver maps a host to exactly one address. Results are never cached:
// every call performs a fresh lookup so each redirect hop is judged on
// its own answer.
type Resolver struct {
	backend LookupBackend
	timeout time.Duration
}

// NewResolver creates a resolver. A nil backend uses net.DefaultResolver;
// a zero timeout leaves the lookup bounded only by ctx.
func NewResolver(backend LookupBackend, timeout time.Duration) *Resolver {
	if backend == nil {
		backend = net.DefaultResolver
	}
	return &Resolver{backend: backend, timeout: timeout}
}

// Resolve returns the address for host. IP literals (bracketed or not) are
// returned as-is without a lookup. Names are converted to their ASCII form
// before querying and the first returned address is used.
func (r *Resolver) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	h := strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if h == "" {
		return netip.Addr{}, fmt.Errorf("%w: empty host", ErrUnresolvableHost)
	}
	if addr, err := netip.ParseAddr(h); err == nil {
		return addr, nil
	}

	name, err := idna.Lookup.ToASCII(h)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q: %w", ErrUnresolvableHost, h, err)
	}

	lookupCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	addrs, err := r.backend.LookupNetIP(lookupCtx, "ip", name)
	if err != nil {
		if lookupCtx.Err() != nil {
			return netip.Addr{}, fmt.Errorf("%w: %s: %w", ErrResolveTimeout, name, lookupCtx.Err())
		}
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsTimeout {
			return netip.Addr{}, fmt.Errorf("%w: %s: %w", ErrResolveTimeout, name, err)
		}
		return netip.Addr{}, fmt.Errorf("%w: %s: %w", ErrUnresolvableHost, name, err)
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("%w: %s: no addresses", ErrUnresolvableHost, name)
	}
	// IPv4 answers come back in ::ffff: form from the stdlib resolver.
	return addrs[0].Unmap(), nil
}
