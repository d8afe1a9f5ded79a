package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yegors/flightroutes/internal/storage"
	"github.com/yegors/flightroutes/pkg/logger"
)

// Config holds the Redis connection settings
type Config struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	Timeout      time.Duration // dial, read and write timeout
	KeyPrefix    string
}

// Store reads route records from Redis. The underlying client is a
// connection pool shared by all requests.
type Store struct {
	client goredis.UniversalClient
	prefix string
	logger *logger.Logger
}

// NewStore creates a pooled Redis route store. No connection is made until
// the first command.
func NewStore(cfg Config, log *logger.Logger) *Store {
	client := goredis.NewClient(&goredis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		// Retry policy belongs to the caller
		MaxRetries:            -1,
		ContextTimeoutEnabled: true,
	})
	return NewStoreWithClient(client, cfg.KeyPrefix, log)
}

// NewStoreWithClient wraps an existing client
func NewStoreWithClient(client goredis.UniversalClient, prefix string, log *logger.Logger) *Store {
	if prefix == "" {
		prefix = storage.DefaultKeyPrefix
	}
	return &Store{
		client: client,
		prefix: prefix,
		logger: log.Named("redis-store"),
	}
}

// GetMany fetches all keys with a single MGET
func (s *Store) GetMany(ctx context.Context, keys []string) (map[string]storage.RouteRecord, error) {
	records := make(map[string]storage.RouteRecord, len(keys))
	if len(keys) == 0 {
		return records, nil
	}

	redisKeys := make([]string, len(keys))
	for i, key := range keys {
		redisKeys[i] = s.prefix + key
	}

	values, err := s.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, s.mapError("mget", err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		record, err := storage.DecodeRoute(keys[i], []byte(raw))
		if err != nil {
			s.logger.Warn("Skipping undecodable route",
				logger.String("key", redisKeys[i]),
				logger.Error(err))
			continue
		}
		records[keys[i]] = record
	}

	return records, nil
}

// Callsigns lists every callsign under the key prefix using SCAN
func (s *Store) Callsigns(ctx context.Context) ([]string, error) {
	var callsigns []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 1000).Iterator()
	for iter.Next(ctx) {
		callsigns = append(callsigns, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, s.mapError("scan", err)
	}
	return callsigns, nil
}

// Ping implements storage.RouteStore
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return s.mapError("ping", err)
	}
	return nil
}

// Close releases the connection pool
func (s *Store) Close() error {
	return s.client.Close()
}

// mapError keeps cancellation as is and turns everything else into an
// unavailability error. The cause stays in the chain for logging.
func (s *Store) mapError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	s.logger.Debug("Redis command failed", logger.String("op", op), logger.Error(err))
	return fmt.Errorf("%w: redis %s: %w", storage.ErrStoreUnavailable, op, err)
}
