package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the circuit breaker around a store
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32        // consecutive unavailable errors before opening
	Cooldown         time.Duration // time spent open before a half-open probe
	OnStateChange    func(from, to gobreaker.State)
}

// BreakerStore fails fast with ErrStoreUnavailable while the backend is known
// to be down, so requests do not each wait for the store timeout.
type BreakerStore struct {
	inner Store
	cb    *gobreaker.CircuitBreaker[any]
}

// NewBreakerStore wraps a store with a circuit breaker
func NewBreakerStore(inner Store, cfg BreakerConfig) *BreakerStore {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Only outages count, a cancelled request says nothing about the store
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrStoreUnavailable)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(from, to)
			}
		},
	}

	return &BreakerStore{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[any](settings),
	}
}

// State returns the current breaker state
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

// GetMany implements RouteStore
func (b *BreakerStore) GetMany(ctx context.Context, keys []string) (map[string]RouteRecord, error) {
	if len(keys) == 0 {
		return map[string]RouteRecord{}, nil
	}
	result, err := b.cb.Execute(func() (any, error) {
		return b.inner.GetMany(ctx, keys)
	})
	if err != nil {
		return nil, breakerError(err)
	}
	return result.(map[string]RouteRecord), nil
}

// Callsigns implements RouteLister
func (b *BreakerStore) Callsigns(ctx context.Context) ([]string, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return b.inner.Callsigns(ctx)
	})
	if err != nil {
		return nil, breakerError(err)
	}
	return result.([]string), nil
}

// Ping bypasses the breaker so readiness reflects the backend itself
func (b *BreakerStore) Ping(ctx context.Context) error {
	return b.inner.Ping(ctx)
}

// Close implements RouteStore
func (b *BreakerStore) Close() error {
	return b.inner.Close()
}

func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}
