// Package storage defines the route store port shared by the Redis and SQLite
// backends, the stored record format, and the decorators wrapped around a store
// at startup (circuit breaker, read cache).
//
// The store is populated by external pipelines. Nothing in this module writes
// route records.
package storage

import (
	"context"
	"errors"
)

// DefaultKeyPrefix is the key namespace used by the population pipeline
const DefaultKeyPrefix = "route:"

var (
	// ErrStoreUnavailable is returned when the store cannot be reached in time.
	// Adapters wrap the cause; callers must only look at the kind.
	ErrStoreUnavailable = errors.New("route store unavailable")

	// ErrNotFound is returned by single-key lookups with no record
	ErrNotFound = errors.New("route not found")
)

// RouteStore reads route records in batches
type RouteStore interface {
	// GetMany fetches all keys in one round-trip. Missing keys are absent
	// from the result. An empty key set must not reach the backend.
	GetMany(ctx context.Context, keys []string) (map[string]RouteRecord, error)

	// Ping checks connectivity
	Ping(ctx context.Context) error

	Close() error
}

// RouteLister enumerates the stored callsigns
type RouteLister interface {
	Callsigns(ctx context.Context) ([]string, error)
}

// Store is what the backends implement
type Store interface {
	RouteStore
	RouteLister
}

// Get is a single-key convenience on top of GetMany
func Get(ctx context.Context, s RouteStore, key string) (RouteRecord, error) {
	records, err := s.GetMany(ctx, []string{key})
	if err != nil {
		return RouteRecord{}, err
	}
	record, ok := records[key]
	if !ok {
		return RouteRecord{}, ErrNotFound
	}
	return record, nil
}
