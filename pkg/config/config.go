package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	// Load environment variables from .env files when present.
	_ "github.com/joho/godotenv/autoload"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Worker        WorkerConfig
	Session       SessionConfig
	Cache         CacheConfig
	Ingest        IngestConfig
	Observability ObservabilityConfig
	Log           LogConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	RateLimitPerSecond int
	RateLimitBurst     int
	CORSOrigins        []string
	MaxUploadBytes     int64
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type WorkerConfig struct {
	Count         int
	QueueSize     int
	TaskRetention time.Duration
	EvictSchedule string
}

type SessionConfig struct {
	TTL           time.Duration
	SweepSchedule string
}

// CacheConfig sizes the analytics result cache. MaxCost counts results,
// not bytes.
type CacheConfig struct {
	MaxCost int64
}

type IngestConfig struct {
	// Timezone used to interpret statement completion times.
	Timezone string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	MetricsPort    int
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 20),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 40),
			CORSOrigins:        getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
			MaxUploadBytes:     int64(getEnvAsInt("MAX_UPLOAD_BYTES", 20<<20)),
			ReadTimeout:        getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:       getEnvAsDuration("SERVER_WRITE_TIMEOUT", 2*time.Minute),
			ShutdownTimeout:    getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Worker: WorkerConfig{
			Count:         getEnvAsInt("WORKER_COUNT", 4),
			QueueSize:     getEnvAsInt("WORKER_QUEUE_SIZE", 32),
			TaskRetention: getEnvAsDuration("TASK_RETENTION", time.Hour),
			EvictSchedule: getEnv("TASK_EVICT_SCHEDULE", "*/5 * * * *"),
		},
		Session: SessionConfig{
			TTL:           getEnvAsDuration("SESSION_TTL", 2*time.Hour),
			SweepSchedule: getEnv("SESSION_SWEEP_SCHEDULE", "*/10 * * * *"),
		},
		Cache: CacheConfig{
			MaxCost: int64(getEnvAsInt("ANALYTICS_CACHE_MAX_ENTRIES", 10000)),
		},
		Ingest: IngestConfig{
			Timezone: getEnv("STATEMENT_TIMEZONE", "Africa/Nairobi"),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT out of range: %d", c.Server.Port))
	}
	if c.Server.RateLimitPerSecond <= 0 {
		errs = append(errs, errors.New("SERVER_RATE_LIMIT_PER_SECOND must be positive"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.Worker.Count < 1 {
		errs = append(errs, errors.New("WORKER_COUNT must be at least 1"))
	}
	if c.Worker.QueueSize < 0 {
		errs = append(errs, errors.New("WORKER_QUEUE_SIZE must not be negative"))
	}
	if c.Observability.MetricsEnabled && (c.Observability.MetricsPort <= 0 || c.Observability.MetricsPort > 65535) {
		errs = append(errs, fmt.Errorf("METRICS_PORT out of range: %d", c.Observability.MetricsPort))
	}
	if _, err := time.LoadLocation(c.Ingest.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("STATEMENT_TIMEZONE: %w", err))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
