// Package routes resolves batches of callsigns to stored route records.
//
// A batch is deduplicated and classified first; registrations and malformed
// callsigns never reach the store. All remaining keys are fetched with a
// single batched read, and the call is skipped entirely when no key is left.
package routes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yegors/flightroutes/internal/callsign"
	"github.com/yegors/flightroutes/internal/metrics"
	"github.com/yegors/flightroutes/internal/storage"
	"github.com/yegors/flightroutes/pkg/logger"
)

// BatchResponse maps each resolved callsign, as supplied by the client, to its route
type BatchResponse map[string]storage.RouteRecord

// Resolver resolves callsign batches against a route store
type Resolver struct {
	classifier *callsign.Classifier
	store      storage.Store
	timeout    time.Duration
	metrics    *metrics.Metrics
	logger     *logger.Logger
}

// NewResolver creates a resolver. A zero timeout leaves store calls bounded
// only by the caller's context.
func NewResolver(classifier *callsign.Classifier, store storage.Store, timeout time.Duration, m *metrics.Metrics, log *logger.Logger) *Resolver {
	return &Resolver{
		classifier: classifier,
		store:      store,
		timeout:    timeout,
		metrics:    m,
		logger:     log.Named("route-resolver"),
	}
}

// Resolve looks up routes for a batch of callsigns. Callsigns that are not
// flight identifiers or have no stored route are omitted. The only error is
// a failed store read, which wraps storage.ErrStoreUnavailable (or the
// context error when the caller went away).
func (r *Resolver) Resolve(ctx context.Context, callsigns []string) (BatchResponse, error) {
	// callsign as supplied -> store key
	keyFor := make(map[string]string, len(callsigns))
	seen := make(map[string]struct{}, len(callsigns))
	keySeen := make(map[string]struct{}, len(callsigns))
	var keys []string
	counts := map[callsign.Kind]int{}
	r.metrics.BatchSize.Observe(float64(len(callsigns)))

	for _, cs := range callsigns {
		if _, dup := seen[cs]; dup {
			continue
		}
		seen[cs] = struct{}{}

		c := r.classifier.Classify(cs)
		counts[c.Kind]++
		if c.Kind != callsign.FlightIdentifier {
			continue
		}

		keyFor[cs] = c.Key
		// several callsigns may normalize to one key
		if _, dup := keySeen[c.Key]; !dup {
			keySeen[c.Key] = struct{}{}
			keys = append(keys, c.Key)
		}
	}

	for kind, n := range counts {
		r.metrics.Callsigns.WithLabelValues(kind.String()).Add(float64(n))
	}

	response := make(BatchResponse, len(keyFor))
	if len(keys) == 0 {
		return response, nil
	}

	records, err := r.fetch(ctx, keys)
	if err != nil {
		return nil, err
	}

	for cs, key := range keyFor {
		if record, ok := records[key]; ok {
			response[cs] = record
		}
	}

	r.metrics.ObserveLookups(len(records), len(keys)-len(records))
	r.logger.Debug("Resolved batch",
		logger.Int("callsigns", len(callsigns)),
		logger.Int("keys", len(keys)),
		logger.Int("hits", len(records)),
	)

	return response, nil
}

func (r *Resolver) fetch(ctx context.Context, keys []string) (map[string]storage.RouteRecord, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	start := time.Now()
	records, err := r.store.GetMany(ctx, keys)
	r.metrics.ObserveStore(time.Since(start), err)
	if err != nil {
		return nil, storeError(err, fmt.Sprintf("fetch %d routes", len(keys)))
	}
	return records, nil
}

// Lookup resolves a single callsign. It returns storage.ErrNotFound when the
// callsign is not a flight identifier or has no stored route.
func (r *Resolver) Lookup(ctx context.Context, raw string) (storage.RouteRecord, error) {
	c := r.classifier.Classify(raw)
	if c.Kind != callsign.FlightIdentifier {
		return storage.RouteRecord{}, storage.ErrNotFound
	}

	ctx, cancel := r.bounded(ctx)
	defer cancel()

	start := time.Now()
	record, err := storage.Get(ctx, r.store, c.Key)
	switch {
	case err == nil:
		r.metrics.ObserveStore(time.Since(start), nil)
		r.metrics.ObserveLookups(1, 0)
		return record, nil
	case errors.Is(err, storage.ErrNotFound):
		r.metrics.ObserveStore(time.Since(start), nil)
		r.metrics.ObserveLookups(0, 1)
		return storage.RouteRecord{}, err
	default:
		r.metrics.ObserveStore(time.Since(start), err)
		return storage.RouteRecord{}, storeError(err, "look up "+c.Key)
	}
}

// Callsigns lists every stored callsign, bounded like any other store read
func (r *Resolver) Callsigns(ctx context.Context) ([]string, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	callsigns, err := r.store.Callsigns(ctx)
	if err != nil {
		return nil, storeError(err, "list callsigns")
	}
	if callsigns == nil {
		callsigns = []string{}
	}
	return callsigns, nil
}

func (r *Resolver) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}
	return context.WithCancel(ctx)
}

// storeError reports a store deadline as ErrStoreUnavailable
func storeError(err error, op string) error {
	if !errors.Is(err, storage.ErrStoreUnavailable) && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: store read timed out: %w", storage.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// Filter returns the keys whose stored record has the given plausibility,
// reading them in chunks of at most chunkSize keys.
func (r *Resolver) Filter(ctx context.Context, keys []string, want storage.Plausibility, chunkSize int) ([]string, error) {
	if chunkSize <= 0 {
		chunkSize = len(keys)
	}
	out := make([]string, 0)
	for start := 0; start < len(keys); start += chunkSize {
		end := min(start+chunkSize, len(keys))
		chunk := keys[start:end]
		records, err := r.fetch(ctx, chunk)
		if err != nil {
			return nil, err
		}
		for _, key := range chunk {
			if record, ok := records[key]; ok && record.Plausibility == want {
				out = append(out, key)
			}
		}
	}
	return out, nil
}
