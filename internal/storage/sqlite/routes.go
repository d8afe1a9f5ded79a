package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/yegors/flightroutes/internal/storage"
	"github.com/yegors/flightroutes/pkg/logger"
)

// RouteStorage reads route records from a SQLite database. Each row holds
// the same JSON document the Redis pipeline writes.
type RouteStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// Open opens (or creates) the database file at path
func Open(path string, log *logger.Logger) (*RouteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// every connection to :memory: would see its own empty database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	s, err := NewRouteStorage(db, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewRouteStorage creates a route storage on an open database
func NewRouteStorage(db *sql.DB, log *logger.Logger) (*RouteStorage, error) {
	s := &RouteStorage{
		db:     db,
		logger: log.Named("sqlite-routes"),
	}
	if err := s.initDB(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RouteStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS routes (
			callsign TEXT PRIMARY KEY,
			data TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create routes table: %w", err)
	}
	return nil
}

// GetMany fetches all keys with a single IN query
func (s *RouteStorage) GetMany(ctx context.Context, keys []string) (map[string]storage.RouteRecord, error) {
	records := make(map[string]storage.RouteRecord, len(keys))
	if len(keys) == 0 {
		return records, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, key := range keys {
		args[i] = key
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT callsign, data FROM routes WHERE callsign IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, s.mapError("query routes", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			return nil, s.mapError("scan route", err)
		}
		record, err := storage.DecodeRoute(key, []byte(data))
		if err != nil {
			s.logger.Warn("Skipping undecodable route", logger.String("callsign", key), logger.Error(err))
			continue
		}
		records[key] = record
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapError("iterate routes", err)
	}

	return records, nil
}

// Callsigns lists every stored callsign
func (s *RouteStorage) Callsigns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT callsign FROM routes ORDER BY callsign`)
	if err != nil {
		return nil, s.mapError("list callsigns", err)
	}
	defer rows.Close()

	var callsigns []string
	for rows.Next() {
		var cs string
		if err := rows.Scan(&cs); err != nil {
			return nil, s.mapError("scan callsign", err)
		}
		callsigns = append(callsigns, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapError("iterate callsigns", err)
	}
	return callsigns, nil
}

// Ping implements storage.RouteStore
func (s *RouteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return s.mapError("ping", err)
	}
	return nil
}

// Close closes the database
func (s *RouteStorage) Close() error {
	return s.db.Close()
}

func (s *RouteStorage) mapError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: failed to %s: %w", storage.ErrStoreUnavailable, op, err)
}
