package routes_test

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/flightroutes/internal/callsign"
	"github.com/yegors/flightroutes/internal/metrics"
	"github.com/yegors/flightroutes/internal/routes"
	"github.com/yegors/flightroutes/internal/storage"
	"github.com/yegors/flightroutes/internal/storage/storagetest"
	"github.com/yegors/flightroutes/pkg/logger"
)

var (
	dlh400 = storage.RouteRecord{
		Callsign: "DLH400", Origin: "EDDF", Destination: "KJFK",
		AirportCodes: "EDDF-KJFK", AirportCodesIATA: "FRA-JFK", Plausibility: storage.Plausible,
	}
	afr136 = storage.RouteRecord{
		Callsign: "AFR136", Origin: "LFPG", Destination: "KORD",
		AirportCodes: "LFPG-KORD", AirportCodesIATA: "CDG-ORD", Plausibility: storage.Implausible,
	}
	klm000 = storage.RouteRecord{
		Callsign: "KLM000", AirportCodes: "unknown", AirportCodesIATA: "unknown", Plausibility: storage.Unknown,
	}
)

func newResolver(t *testing.T, store storage.Store, rules callsign.Rules, timeout time.Duration) (*routes.Resolver, *metrics.Metrics) {
	t.Helper()
	classifier, err := callsign.New(rules)
	require.NoError(t, err)
	m := metrics.New(prometheus.NewRegistry())
	return routes.NewResolver(classifier, store, timeout, m, logger.NewNop()), m
}

func TestResolve_MixedBatch(t *testing.T) {
	store := storagetest.NewFake(dlh400, afr136, klm000)
	r, m := newResolver(t, store, callsign.DefaultRules(), time.Second)

	got, err := r.Resolve(context.Background(), []string{"AFR136", "DLH400", "KLM000", "BAW123", "DEOZK", "N12345", "", "dlh1"})
	require.NoError(t, err)

	assert.Equal(t, routes.BatchResponse{"AFR136": afr136, "DLH400": dlh400, "KLM000": klm000}, got)
	assert.Equal(t, 1, store.GetManyCalls())
	assert.ElementsMatch(t, []string{"AFR136", "DLH400", "KLM000", "BAW123"}, store.KeysFetched()[0])

	assert.Equal(t, 4.0, testutil.ToFloat64(m.Callsigns.WithLabelValues("flight")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Callsigns.WithLabelValues("registration")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Callsigns.WithLabelValues("malformed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RouteLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RouteLookups.WithLabelValues("miss")))
}

func TestResolve_PlausibilityPassesThrough(t *testing.T) {
	store := storagetest.NewFake(dlh400, afr136, klm000)
	r, _ := newResolver(t, store, callsign.DefaultRules(), time.Second)

	got, err := r.Resolve(context.Background(), []string{"AFR136", "DLH400", "KLM000"})
	require.NoError(t, err)
	assert.Equal(t, storage.Implausible, got["AFR136"].Plausibility)
	assert.Equal(t, storage.Plausible, got["DLH400"].Plausibility)
	assert.Equal(t, storage.Unknown, got["KLM000"].Plausibility)
}

func TestResolve_EmptyBatch(t *testing.T) {
	store := storagetest.NewFake(dlh400)
	r, _ := newResolver(t, store, callsign.DefaultRules(), time.Second)

	got, err := r.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, store.GetManyCalls())
}

func TestResolve_RegistrationsSkipStore(t *testing.T) {
	store := storagetest.NewFake(dlh400)
	r, _ := newResolver(t, store, callsign.DefaultRules(), time.Second)

	got, err := r.Resolve(context.Background(), []string{"N12345", "D-AIBL", "G-EUPT", "DEOZK", "N123AB"})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, store.GetManyCalls())
}

func TestResolve_Duplicates(t *testing.T) {
	store := storagetest.NewFake(dlh400)
	r, _ := newResolver(t, store, callsign.DefaultRules(), time.Second)

	got, err := r.Resolve(context.Background(), []string{"DLH400", "DLH400"})
	require.NoError(t, err)
	assert.Equal(t, routes.BatchResponse{"DLH400": dlh400}, got)
	assert.Equal(t, [][]string{{"DLH400"}}, store.KeysFetched())
}

func TestResolve_SuffixWithoutNormalization(t *testing.T) {
	store := storagetest.NewFake(dlh400)
	r, _ := newResolver(t, store, callsign.DefaultRules(), time.Second)

	got, err := r.Resolve(context.Background(), []string{"DLH400A"})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, [][]string{{"DLH400A"}}, store.KeysFetched())
}

func TestResolve_SuffixStripped(t *testing.T) {
	store := storagetest.NewFake(dlh400)
	r, _ := newResolver(t, store, callsign.Rules{Normalization: callsign.NormalizeStripSuffix}, time.Second)

	got, err := r.Resolve(context.Background(), []string{"DLH400A", "DLH400B", "DLH400"})
	require.NoError(t, err)

	// every supplied callsign gets the shared record, the store sees one key
	assert.Equal(t, routes.BatchResponse{"DLH400A": dlh400, "DLH400B": dlh400, "DLH400": dlh400}, got)
	assert.Equal(t, [][]string{{"DLH400"}}, store.KeysFetched())
}

func TestResolve_ResponseBoundedByInput(t *testing.T) {
	store := storagetest.NewFake()
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		store.Put(fmt.Sprintf("DLH%d", i), storage.RouteRecord{Callsign: fmt.Sprintf("DLH%d", i)})
	}
	r, _ := newResolver(t, store, callsign.DefaultRules(), time.Second)

	pool := []string{"N12345", "D-AIBL", "", "xx", "DEOZK"}
	for round := 0; round < 50; round++ {
		n := rng.Intn(101)
		batch := make([]string, n)
		for i := range batch {
			if rng.Intn(3) == 0 {
				batch[i] = pool[rng.Intn(len(pool))]
			} else {
				batch[i] = fmt.Sprintf("DLH%d", rng.Intn(400))
			}
		}

		got, err := r.Resolve(context.Background(), batch)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(got), len(batch))

		input := make(map[string]bool, len(batch))
		for _, cs := range batch {
			input[cs] = true
		}
		for cs := range got {
			assert.True(t, input[cs], "response key %q not in request", cs)
		}
	}
}

func TestResolve_StoreUnavailable(t *testing.T) {
	store := storagetest.NewFake(dlh400)
	store.SetErr(fmt.Errorf("%w: connection refused", storage.ErrStoreUnavailable))
	r, m := newResolver(t, store, callsign.DefaultRules(), time.Second)

	_, err := r.Resolve(context.Background(), []string{"DLH400"})
	require.ErrorIs(t, err, storage.ErrStoreUnavailable)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrors))
}

func TestResolve_TimeoutIsBounded(t *testing.T) {
	store := storagetest.NewFake(dlh400)
	store.Block = true
	r, _ := newResolver(t, store, callsign.DefaultRules(), 50*time.Millisecond)

	start := time.Now()
	_, err := r.Resolve(context.Background(), []string{"DLH400"})
	require.ErrorIs(t, err, storage.ErrStoreUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResolve_CallerCancelled(t *testing.T) {
	store := storagetest.NewFake(dlh400)
	store.Block = true
	r, _ := newResolver(t, store, callsign.DefaultRules(), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := r.Resolve(ctx, []string{"DLH400"})
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, storage.ErrStoreUnavailable)
}

func TestLookup(t *testing.T) {
	store := storagetest.NewFake(dlh400)
	r, _ := newResolver(t, store, callsign.DefaultRules(), time.Second)

	got, err := r.Lookup(context.Background(), "DLH400")
	require.NoError(t, err)
	assert.Equal(t, dlh400, got)

	_, err = r.Lookup(context.Background(), "AFR136")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = r.Lookup(context.Background(), "D-AIBL")
	require.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 2, store.GetManyCalls())
}

func TestFilter_Chunks(t *testing.T) {
	store := storagetest.NewFake(dlh400, afr136, klm000)
	r, _ := newResolver(t, store, callsign.DefaultRules(), time.Second)

	keys := []string{"AFR136", "DLH400", "KLM000"}
	got, err := r.Filter(context.Background(), keys, storage.Plausible, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"DLH400"}, got)
	assert.Equal(t, [][]string{{"AFR136", "DLH400"}, {"KLM000"}}, store.KeysFetched())

	got, err = r.Filter(context.Background(), keys, storage.Implausible, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"AFR136"}, got)
}

func TestFilter_NoKeys(t *testing.T) {
	store := storagetest.NewFake(dlh400)
	r, _ := newResolver(t, store, callsign.DefaultRules(), time.Second)

	got, err := r.Filter(context.Background(), nil, storage.Plausible, 100)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, store.GetManyCalls())
}

func decoratedStore(fake *storagetest.Fake, m *metrics.Metrics) *storage.BreakerStore {
	return storage.Decorate(fake, storage.DecorateConfig{
		CacheSize: 10,
		CacheTTL:  time.Minute,
		Clock:     clockwork.NewFakeClock(),
		Breaker: storage.BreakerConfig{
			Name:             "test",
			FailureThreshold: 2,
			Cooldown:         time.Hour,
			OnStateChange: func(_, to gobreaker.State) {
				m.SetBreakerState(to)
			},
		},
	})
}

func TestResolve_CachedBatchSkipsStore(t *testing.T) {
	fake := storagetest.NewFake(dlh400, afr136)
	m := metrics.New(prometheus.NewRegistry())
	store := decoratedStore(fake, m)
	r := routes.NewResolver(callsign.MustNew(callsign.DefaultRules()), store, time.Second, m, logger.NewNop())
	ctx := context.Background()

	first, err := r.Resolve(ctx, []string{"DLH400", "AFR136"})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.GetManyCalls())

	second, err := r.Resolve(ctx, []string{"AFR136", "DLH400", "N12345"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.GetManyCalls(), "cached batch must not reach the backend")
	assert.Equal(t, gobreaker.StateClosed, store.State())
}

func TestResolve_BreakerTripIsExported(t *testing.T) {
	fake := storagetest.NewFake(dlh400)
	m := metrics.New(prometheus.NewRegistry())
	store := decoratedStore(fake, m)
	r := routes.NewResolver(callsign.MustNew(callsign.DefaultRules()), store, time.Second, m, logger.NewNop())
	ctx := context.Background()

	fake.SetErr(fmt.Errorf("%w: connection refused", storage.ErrStoreUnavailable))
	for i := 0; i < 2; i++ {
		_, err := r.Resolve(ctx, []string{"DLH400"})
		require.ErrorIs(t, err, storage.ErrStoreUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, store.State())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState))

	// open breaker fails fast without touching the backend
	_, err := r.Resolve(ctx, []string{"DLH400"})
	require.ErrorIs(t, err, storage.ErrStoreUnavailable)
	assert.Equal(t, 2, fake.GetManyCalls())
}

func TestCallsigns(t *testing.T) {
	store := storagetest.NewFake(dlh400, afr136)
	r, _ := newResolver(t, store, callsign.DefaultRules(), time.Second)

	got, err := r.Callsigns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AFR136", "DLH400"}, got)

	r, _ = newResolver(t, storagetest.NewFake(), callsign.DefaultRules(), time.Second)
	got, err = r.Callsigns(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCallsigns_TimeoutIsBounded(t *testing.T) {
	store := storagetest.NewFake(dlh400)
	store.Block = true
	r, _ := newResolver(t, store, callsign.DefaultRules(), 50*time.Millisecond)

	start := time.Now()
	_, err := r.Callsigns(context.Background())
	require.ErrorIs(t, err, storage.ErrStoreUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestLookup_TimeoutIsBounded(t *testing.T) {
	store := storagetest.NewFake(dlh400)
	store.Block = true
	r, _ := newResolver(t, store, callsign.DefaultRules(), 50*time.Millisecond)

	_, err := r.Lookup(context.Background(), "DLH400")
	require.ErrorIs(t, err, storage.ErrStoreUnavailable)
}
