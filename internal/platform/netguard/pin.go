package netguard

import (
	"context"
	"net/netip"
)

type pinnedAddrKey struct{}

// WithPinnedAddr records the address a request was checked against. A
// transport that honours it dials addr instead of resolving the host again.
func WithPinnedAddr(ctx context.Context, addr netip.Addr) context.Context {
	return context.WithValue(ctx, pinnedAddrKey{}, addr)
}

// PinnedAddr returns the address attached by WithPinnedAddr.
func PinnedAddr(ctx context.Context) (netip.Addr, bool) {
	addr, ok := ctx.Value(pinnedAddrKey{}).(netip.Addr)
	return addr, ok && addr.IsValid()
}
