// Package loader registers every service and interceptor via blank imports.
package loader

import (
	_ "github.com/MahdiBaghbani/curlaas-go/internal/interceptors/ratelimit"
	_ "github.com/MahdiBaghbani/curlaas-go/internal/services/api"
)
