// Package loader registers the built-in cache drivers. Import it for side effects.
package loader

import (
	_ "github.com/MahdiBaghbani/curlaas-go/internal/platform/cache/memory"
	_ "github.com/MahdiBaghbani/curlaas-go/internal/platform/cache/redis"
)
