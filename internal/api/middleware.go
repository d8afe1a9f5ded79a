package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/yegors/flightroutes/internal/metrics"
	"github.com/yegors/flightroutes/pkg/logger"
)

// APIKeyHeader is the header name tar1090 deployments send the key in
const APIKeyHeader = "api_key"

// Middleware contains custom middleware functions
type Middleware struct {
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewMiddleware creates a new middleware
func NewMiddleware(m *metrics.Metrics, log *logger.Logger) *Middleware {
	return &Middleware{
		logger:  log.Named("api-middleware"),
		metrics: m,
	}
}

// Logger logs every request at debug level
func (m *Middleware) Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			m.logger.WithRequestID(middleware.GetReqID(r.Context())).Debug("HTTP request",
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.String("remote_addr", r.RemoteAddr),
				logger.Int("status", ww.Status()),
				logger.Int("bytes", ww.BytesWritten()),
				logger.Duration("duration", time.Since(start)),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// Metrics records request counts and latency by route pattern
func (m *Middleware) Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// CORS allows browser calls from the configured origins only. With no
// origins configured no CORS headers are sent at all.
func (m *Middleware) CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", APIKeyHeader, "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// RateLimit limits requests per client IP. requests <= 0 disables it.
func (m *Middleware) RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
		}),
	)
}

// APIKey rejects requests without the configured key before any handler runs
func (m *Middleware) APIKey(key string) func(http.Handler) http.Handler {
	want := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := requestAPIKey(r)
			if got == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing api key")
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				m.logger.Debug("Rejected API key",
					logger.String("remote_addr", r.RemoteAddr),
					logger.String("path", r.URL.Path))
				writeError(w, http.StatusForbidden, "FORBIDDEN", "could not validate credentials")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestAPIKey(r *http.Request) string {
	if v := r.Header.Get(APIKeyHeader); v != "" {
		return v
	}
	if v := r.Header.Get("X-API-Key"); v != "" {
		return v
	}
	return r.URL.Query().Get(APIKeyHeader)
}

// RequestID is a middleware that adds a request ID to the context
func (m *Middleware) RequestID(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

// Recoverer is a middleware that recovers from panics
func (m *Middleware) Recoverer(next http.Handler) http.Handler {
	return middleware.Recoverer(next)
}
