// Package netguard decides which network destinations outbound requests may reach.
//
// Classification is pure: it never performs lookups. Resolution lives in
// Resolver and the dial-time check in DialGuard, so callers can enforce the
// same policy before a request is issued and again when the socket is opened.
package netguard

import (
	"errors"
	"fmt"
	"net/netip"

	"code.dny.dev/ssrf"
)

// ErrBlocked is returned when a destination address is not publicly routable.
var ErrBlocked = errors.New("destination address is not allowed")

// Classification names the rule an address matched.
type Classification string

const (
	Public      Classification = "public"
	Invalid     Classification = "invalid"
	Loopback    Classification = "loopback"
	Private     Classification = "private"
	LinkLocal   Classification = "link_local"
	Unspecified Classification = "unspecified"
	Multicast   Classification = "multicast"
	// Reserved covers the IANA special-purpose registries.
	Reserved Classification = "reserved"
	// NonGlobal is any IPv6 address outside 2000::/3, including the
	// IPv4-mapped and IPv4-compatible forms.
	NonGlobal Classification = "non_global"
)

// Blocked reports whether the classification denies outbound traffic.
func (c Classification) Blocked() bool { return c != Public }

// IsPrivate reports whether addr must not be contacted.
// Invalid addresses are treated as private.
func IsPrivate(addr netip.Addr) bool {
	return Classify(addr).Blocked()
}

// Check returns an error wrapping ErrBlocked when addr is not public.
func Check(addr netip.Addr) error {
	if c := Classify(addr); c.Blocked() {
		return fmt.Errorf("%w: %s is %s", ErrBlocked, addrString(addr), c)
	}
	return nil
}

// Classify returns the first rule addr matches, or Public.
func Classify(addr netip.Addr) Classification {
	if !addr.IsValid() {
		return Invalid
	}
	if addr.Is4() {
		return classify4(addr)
	}
	if addr.Is4In6() {
		return embedded(addr.Unmap())
	}
	return classify6(addr)
}

func classify4(addr netip.Addr) Classification {
	switch {
	case addr.IsLoopback():
		return Loopback
	case addr.IsUnspecified():
		return Unspecified
	case addr.IsPrivate():
		return Private
	case addr.IsLinkLocalUnicast():
		return LinkLocal
	case addr.IsMulticast(), addr.IsLinkLocalMulticast():
		return Multicast
	}
	for _, p := range ssrf.IPv4DeniedPrefixes {
		if p.Contains(addr) {
			return Reserved
		}
	}
	return Public
}

func classify6(addr netip.Addr) Classification {
	switch {
	case addr.IsLoopback():
		return Loopback
	case addr.IsUnspecified():
		return Unspecified
	case addr.IsPrivate():
		return Private
	case addr.IsLinkLocalUnicast():
		return LinkLocal
	case addr.IsMulticast(), addr.IsLinkLocalMulticast(), addr.IsInterfaceLocalMulticast():
		return Multicast
	}
	if v4, ok := compatible4(addr); ok {
		return embedded(v4)
	}
	if !ssrf.IPv6GlobalUnicast.Contains(addr) {
		return NonGlobal
	}
	for _, p := range ssrf.IPv6DeniedPrefixes {
		if p.Contains(addr) {
			return Reserved
		}
	}
	return Public
}

// embedded classifies an IPv4 address carried inside an IPv6 one. A public
// embedded address still lands outside 2000::/3, so the result is never Public.
func embedded(v4 netip.Addr) Classification {
	if c := classify4(v4); c.Blocked() {
		return c
	}
	return NonGlobal
}

// compatible4 extracts the IPv4 address from the deprecated ::a.b.c.d form.
func compatible4(addr netip.Addr) (netip.Addr, bool) {
	b := addr.As16()
	for _, x := range b[:12] {
		if x != 0 {
			return netip.Addr{}, false
		}
	}
	return netip.AddrFrom4([4]byte{b[12], b[13], b[14], b[15]}), true
}

func addrString(addr netip.Addr) string {
	if !addr.IsValid() {
		return "invalid address"
	}
	return addr.String()
}
