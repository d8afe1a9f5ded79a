package storage

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// DecorateConfig selects the layers wrapped around a backend
type DecorateConfig struct {
	CacheSize int // 0 disables the read cache
	CacheTTL  time.Duration
	Clock     clockwork.Clock
	Breaker   BreakerConfig
}

// Decorate wraps a backend in the optional read cache and then the circuit
// breaker. Cached batches therefore never count against the breaker.
func Decorate(backend Store, cfg DecorateConfig) *BreakerStore {
	inner := backend
	if cfg.CacheSize > 0 {
		inner = NewCachedStore(backend, cfg.CacheSize, cfg.CacheTTL, cfg.Clock)
	}
	return NewBreakerStore(inner, cfg.Breaker)
}
