package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	gobreaker "github.com/sony/gobreaker/v2"
)

const namespace = "flightroutes"

// Metrics holds the Prometheus collectors for the route API
type Metrics struct {
	HTTPRequests *prometheus.CounterVec   // labels: method, route, status
	HTTPDuration *prometheus.HistogramVec // labels: method, route

	BatchSize     prometheus.Histogram
	Callsigns     *prometheus.CounterVec // labels: kind={flight,registration,malformed}
	RouteLookups  *prometheus.CounterVec // labels: result={hit,miss}
	StoreDuration prometheus.Histogram
	StoreErrors   prometheus.Counter
	BreakerState  prometheus.Gauge
}

// New creates the collectors and registers them with reg.
// Tests pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"method", "route"}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of callsigns per routeset request.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		Callsigns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callsigns_total",
			Help:      "Unique callsigns per batch by classification.",
		}, []string{"kind"}),
		RouteLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_lookups_total",
			Help:      "Route store key lookups by result.",
		}, []string{"result"}),
		StoreDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_round_trip_seconds",
			Help:      "Duration of one batched route store read.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5},
		}),
		StoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Batched route store reads that failed.",
		}),
		BreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_breaker_state",
			Help:      "Route store circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}),
	}
}

// ObserveStore records one store round-trip
func (m *Metrics) ObserveStore(d time.Duration, err error) {
	m.StoreDuration.Observe(d.Seconds())
	if err != nil {
		m.StoreErrors.Inc()
	}
}

// ObserveLookups records hits and misses of one batch
func (m *Metrics) ObserveLookups(hits, misses int) {
	m.RouteLookups.WithLabelValues("hit").Add(float64(hits))
	m.RouteLookups.WithLabelValues("miss").Add(float64(misses))
}

// SetBreakerState exports the breaker state
func (m *Metrics) SetBreakerState(state gobreaker.State) {
	switch state {
	case gobreaker.StateClosed:
		m.BreakerState.Set(0)
	case gobreaker.StateHalfOpen:
		m.BreakerState.Set(1)
	case gobreaker.StateOpen:
		m.BreakerState.Set(2)
	}
}
