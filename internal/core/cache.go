// Package core defines the port interfaces the persona analysis services
// are built against. The core defines interfaces and the data/adapters
// layers provide implementations.
package core

import (
	"context"
	"time"
)

//go:generate go run go.uber.org/mock/mockgen -source=cache.go -destination=cache_mock.go -package=core

// CacheRepository defines the interface for the durable key-value store the
// job pipeline persists into. Two key namespaces share one store: raw job
// ids (UUID-shaped) and wallet-prefixed keys; the prefix discipline lives in
// the data layer, not here.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists checks if a key exists in the cache.
	Exists(ctx context.Context, key string) (bool, error)

	// SetIfNotExists atomically sets a key only if it doesn't already exist.
	// Returns true if the key was set, false if it already existed.
	// This backs the per-wallet in-flight lock.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// DeleteIfEquals atomically removes the key only while it still holds
	// the given value. Returns true if the key was deleted. This backs
	// lock release: an expired holder must not drop a successor's lock.
	DeleteIfEquals(ctx context.Context, key string, value []byte) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}
