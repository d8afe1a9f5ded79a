package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/net/netutil"

	"github.com/yegors/flightroutes/internal/api"
	"github.com/yegors/flightroutes/internal/callsign"
	"github.com/yegors/flightroutes/internal/config"
	"github.com/yegors/flightroutes/internal/metrics"
	"github.com/yegors/flightroutes/internal/routes"
	"github.com/yegors/flightroutes/internal/storage"
	"github.com/yegors/flightroutes/internal/storage/redis"
	"github.com/yegors/flightroutes/internal/storage/sqlite"
	"github.com/yegors/flightroutes/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "flightroutes: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	m := metrics.New(prometheus.DefaultRegisterer)

	store, err := openStore(cfg.Store, m, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to close route store", logger.Error(err))
		}
	}()

	classifier, err := callsign.New(cfg.Callsign)
	if err != nil {
		return fmt.Errorf("invalid callsign rules: %w", err)
	}
	resolver := routes.NewResolver(classifier, store, cfg.Store.Timeout, m, log)

	router := api.NewRouter(resolver, store, cfg.Server, m, prometheus.DefaultGatherer, log)
	srv := router.Server()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Addr, err)
	}
	if cfg.Server.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConnections)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server",
			logger.String("addr", ln.Addr().String()),
			logger.String("backend", cfg.Store.Backend),
			logger.Int("max_connections", cfg.Server.MaxConnections),
		)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	}
	log.Info("Shutdown complete")
	return nil
}

// openStore builds the configured backend and wraps it in the optional read
// cache and the circuit breaker
func openStore(cfg config.StoreConfig, m *metrics.Metrics, log *logger.Logger) (storage.Store, error) {
	var backend storage.Store
	switch cfg.Backend {
	case "redis":
		backend = redis.NewStore(redis.Config{
			Host:         cfg.RedisHost,
			Port:         cfg.RedisPort,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			Timeout:      cfg.Timeout,
			KeyPrefix:    cfg.KeyPrefix,
		}, log)
	case "sqlite":
		s, err := sqlite.Open(cfg.SQLitePath, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite route store: %w", err)
		}
		backend = s
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	if cfg.CacheSize > 0 {
		log.Info("Route cache enabled",
			logger.Int("entries", cfg.CacheSize),
			logger.Duration("ttl", cfg.CacheTTL))
	}

	breakerLog := log.Named("store-breaker")
	m.SetBreakerState(gobreaker.StateClosed)
	return storage.Decorate(backend, storage.DecorateConfig{
		CacheSize: cfg.CacheSize,
		CacheTTL:  cfg.CacheTTL,
		Breaker: storage.BreakerConfig{
			Name:             cfg.Backend,
			FailureThreshold: uint32(cfg.BreakerFailures),
			Cooldown:         cfg.BreakerCooldown,
			OnStateChange: func(from, to gobreaker.State) {
				breakerLog.Warn("Route store breaker changed state",
					logger.String("from", from.String()),
					logger.String("to", to.String()))
				m.SetBreakerState(to)
			},
		},
	}), nil
}
