// Package service defines the unit the HTTP server mounts: a named handler
// tree under a path prefix, constructed from [http.services.<name>].
package service

import (
	"log/slog"
	"net/http"
)

// Service is an HTTP service that can be registered and mounted.
type Service interface {
	Handler() http.Handler
	// Prefix is the mount point below external_base_path, without slashes.
	Prefix() string
	Close() error
}

// NewService is the constructor type services register.
type NewService func(conf map[string]any, log *slog.Logger) (Service, error)
