// Package cache persists the last fetched configuration and decides whether
// that copy is still fresh enough to serve without going to the network.
package cache

import (
	"context"
	"time"

	"github.com/artemnikitin/remoteconf/internal/document"
)

// Gateway is the persistence boundary used by the config store.
//
// Three implementations ship with this package: Live (backed by a Storage
// primitive), Fixed (canned responses for tests) and Noop (never valid,
// never stores anything).
type Gateway interface {
	// IsValid reports whether a cached record exists and was last modified
	// less than window ago. It never fails; any error reads as false.
	IsValid(ctx context.Context, window time.Duration) bool

	// Read returns the cached configuration, or nil when nothing is cached.
	// A record that cannot be decoded is an error, not a miss.
	Read(ctx context.Context) (*document.Configuration, error)

	// Write replaces the cached record with cfg.
	Write(ctx context.Context, cfg document.Configuration) error

	// Delete removes the cached record. Deleting a missing record is not
	// an error.
	Delete(ctx context.Context) error
}
