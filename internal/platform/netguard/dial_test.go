package netguard

import (
	"errors"
	"testing"
)

func TestDialGuard_Control(t *testing.T) {
	g := NewDialGuard()

	tests := []struct {
		network string
		address string
		blocked bool
	}{
		{"tcp4", "8.8.8.8:443", false},
		{"tcp4", "93.184.216.34:8080", false},
		{"tcp6", "[2606:4700:4700::1111]:80", false},
		{"tcp4", "127.0.0.1:80", true},
		{"tcp4", "10.0.0.1:443", true},
		{"tcp4", "169.254.169.254:80", true},
		{"tcp6", "[::1]:80", true},
		{"tcp6", "[::ffff:127.0.0.1]:80", true},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			err := g.Control(tt.network, tt.address, nil)
			if got := errors.Is(err, ErrBlocked); got != tt.blocked {
				t.Errorf("Control(%s) blocked = %v, want %v (err=%v)", tt.address, got, tt.blocked, err)
			}
		})
	}
}

func TestDialGuard_NonTCPRejected(t *testing.T) {
	err := NewDialGuard().Control("udp4", "8.8.8.8:53", nil)
	if err == nil {
		t.Fatal("expected udp to be rejected")
	}
	if errors.Is(err, ErrBlocked) {
		t.Error("network rejection should not be reported as a blocked address")
	}
}
