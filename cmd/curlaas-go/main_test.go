package main

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MahdiBaghbani/curlaas-go/internal/platform/logutil"
)

// fakeServer blocks in Start until Shutdown, unless startErr is set.
type fakeServer struct {
	startErr    error
	shutdownErr error
	stopped     chan struct{}
	shutdowns   atomic.Int32
}

func newFakeServer() *fakeServer {
	return &fakeServer{stopped: make(chan struct{})}
}

func (f *fakeServer) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	<-f.stopped
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	if f.shutdowns.Add(1) == 1 {
		close(f.stopped)
	}
	return f.shutdownErr
}

func TestServe(t *testing.T) {
	tests := []struct {
		name        string
		startErr    error
		shutdownErr error
		cancel      bool
		want        int
	}{
		{"signal", nil, nil, true, 0},
		{"start fails", errors.New("bind: address in use"), nil, false, 1},
		{"shutdown fails", nil, context.DeadlineExceeded, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeServer()
			srv.startErr = tt.startErr
			srv.shutdownErr = tt.shutdownErr

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancel {
				cancel()
			}

			done := make(chan int, 1)
			go func() { done <- serve(ctx, srv, logutil.Noop(), time.Second) }()

			select {
			case got := <-done:
				if got != tt.want {
					t.Errorf("serve() = %d, want %d", got, tt.want)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("serve did not return")
			}
			if srv.shutdowns.Load() != 1 {
				t.Errorf("Shutdown called %d times, want 1", srv.shutdowns.Load())
			}
		})
	}
}
