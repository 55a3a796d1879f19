package netguard

import (
	"errors"
	"fmt"
	"syscall"

	"code.dny.dev/ssrf"
)

// DialGuard rejects connections to non-public addresses at socket level.
// Install Control as net.Dialer.Control. It catches destinations that were
// not checked up front, such as proxies or dial paths that bypass pinning.
type DialGuard struct {
	g *ssrf.Guardian
}

// NewDialGuard creates a guard that allows any TCP port.
func NewDialGuard() *DialGuard {
	return &DialGuard{g: ssrf.New(ssrf.WithAnyPort())}
}

// Control matches the net.Dialer.Control signature.
func (d *DialGuard) Control(network, address string, c syscall.RawConn) error {
	if err := d.g.Safe(network, address, c); err != nil {
		if errors.Is(err, ssrf.ErrProhibitedIP) {
			return fmt.Errorf("%w: %w", ErrBlocked, err)
		}
		return err
	}
	return nil
}
