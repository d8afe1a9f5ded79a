package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/yegors/flightroutes/internal/callsign"
	"github.com/yegors/flightroutes/pkg/logger"
)

// MaxPlaneLimit is the largest batch a client may send
const MaxPlaneLimit = 100

// Config is built once at startup and passed to every component
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Store    StoreConfig    `toml:"store"`
	Callsign callsign.Rules `toml:"callsign"`
	Logging  logger.Config  `toml:"logging"`
}

// ServerConfig holds the HTTP API settings
type ServerConfig struct {
	Addr              string        `toml:"addr" env:"HTTP_ADDR" validate:"required"`
	APIKey            string        `toml:"api_key" env:"API_KEY" validate:"required"`
	AllowedOrigins    []string      `toml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	PlaneLimit        int           `toml:"plane_limit" env:"PLANE_LIMIT" validate:"min=1,max=100"`
	RateLimitRequests int           `toml:"rate_limit_requests" env:"RATE_LIMIT_REQUESTS" validate:"min=0"`
	RateLimitWindow   time.Duration `toml:"rate_limit_window" env:"RATE_LIMIT_WINDOW" validate:"gt=0"`
	MaxConnections    int           `toml:"max_connections" env:"MAX_CONNECTIONS" validate:"min=0"`
	ReadTimeout       time.Duration `toml:"read_timeout" env:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout      time.Duration `toml:"write_timeout" env:"WRITE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout   time.Duration `toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

// StoreConfig holds the route store settings
type StoreConfig struct {
	Backend         string        `toml:"backend" env:"STORE_BACKEND" validate:"oneof=redis sqlite"`
	RedisHost       string        `toml:"redis_host" env:"REDIS_HOST" validate:"required_if=Backend redis"`
	RedisPort       int           `toml:"redis_port" env:"REDIS_PORT" validate:"min=1,max=65535"`
	RedisPassword   string        `toml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB         int           `toml:"redis_db" env:"REDIS_DB" validate:"min=0"`
	PoolSize        int           `toml:"pool_size" env:"REDIS_POOL_SIZE" validate:"min=1"`
	MinIdleConns    int           `toml:"min_idle_conns" env:"REDIS_MIN_IDLE_CONNS" validate:"min=0"`
	SQLitePath      string        `toml:"sqlite_path" env:"SQLITE_PATH" validate:"required_if=Backend sqlite"`
	KeyPrefix       string        `toml:"key_prefix" env:"STORE_KEY_PREFIX"`
	Timeout         time.Duration `toml:"timeout" env:"STORE_TIMEOUT" validate:"gt=0"`
	BreakerFailures int           `toml:"breaker_failures" env:"BREAKER_FAILURES" validate:"min=1"`
	BreakerCooldown time.Duration `toml:"breaker_cooldown" env:"BREAKER_COOLDOWN" validate:"gt=0"`
	CacheSize       int           `toml:"cache_size" env:"ROUTE_CACHE_SIZE" validate:"min=0"`
	CacheTTL        time.Duration `toml:"cache_ttl" env:"ROUTE_CACHE_TTL" validate:"gt=0"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			PlaneLimit:      MaxPlaneLimit,
			RateLimitWindow: time.Minute,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Backend:         "redis",
			RedisHost:       "127.0.0.1",
			RedisPort:       6379,
			PoolSize:        50,
			KeyPrefix:       "route:",
			Timeout:         500 * time.Millisecond,
			BreakerFailures: 5,
			BreakerCooldown: 10 * time.Second,
			CacheTTL:        time.Minute,
		},
		Callsign: callsign.DefaultRules(),
		Logging: logger.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration: defaults, then the TOML file named by
// CONFIG_FILE, then a .env file if present, then the environment.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	// A missing .env is normal in containers
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	s, st := &cfg.Server, &cfg.Store

	envString("HTTP_ADDR", &s.Addr)
	envString("API_KEY", &s.APIKey)
	envList("ALLOWED_ORIGINS", &s.AllowedOrigins)
	envString("STORE_BACKEND", &st.Backend)
	envString("REDIS_HOST", &st.RedisHost)
	envString("REDIS_PASSWORD", &st.RedisPassword)
	envString("SQLITE_PATH", &st.SQLitePath)
	envString("STORE_KEY_PREFIX", &st.KeyPrefix)
	envString("CALLSIGN_PATTERN", &cfg.Callsign.FlightPattern)
	envString("LOG_LEVEL", &cfg.Logging.Level)
	envString("LOG_FORMAT", &cfg.Logging.Format)
	if v, ok := os.LookupEnv("CALLSIGN_NORMALIZATION"); ok && v != "" {
		cfg.Callsign.Normalization = callsign.Normalization(v)
	}

	ints := map[string]*int{
		"PLANE_LIMIT":          &s.PlaneLimit,
		"RATE_LIMIT_REQUESTS":  &s.RateLimitRequests,
		"MAX_CONNECTIONS":      &s.MaxConnections,
		"REDIS_PORT":           &st.RedisPort,
		"REDIS_DB":             &st.RedisDB,
		"REDIS_POOL_SIZE":      &st.PoolSize,
		"REDIS_MIN_IDLE_CONNS": &st.MinIdleConns,
		"BREAKER_FAILURES":     &st.BreakerFailures,
		"ROUTE_CACHE_SIZE":     &st.CacheSize,
		"CALLSIGN_MAX_LENGTH":  &cfg.Callsign.MaxLength,
	}
	for key, dst := range ints {
		if err := envInt(key, dst); err != nil {
			return err
		}
	}

	durations := map[string]*time.Duration{
		"RATE_LIMIT_WINDOW": &s.RateLimitWindow,
		"READ_TIMEOUT":      &s.ReadTimeout,
		"WRITE_TIMEOUT":     &s.WriteTimeout,
		"SHUTDOWN_TIMEOUT":  &s.ShutdownTimeout,
		"STORE_TIMEOUT":     &st.Timeout,
		"BREAKER_COOLDOWN":  &st.BreakerCooldown,
		"ROUTE_CACHE_TTL":   &st.CacheTTL,
	}
	for key, dst := range durations {
		if err := envDuration(key, dst); err != nil {
			return err
		}
	}
	return nil
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envList(key string, dst *[]string) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func envInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %q is not an integer", key, v)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %q is not a duration", key, v)
	}
	*dst = d
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their environment variable
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Validate checks ranges and required settings
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return validationError(err)
	}
	if _, err := callsign.New(c.Callsign); err != nil {
		return fmt.Errorf("invalid callsign rules: %w", err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
