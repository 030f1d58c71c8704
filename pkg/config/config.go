package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/artifacts"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/canonicalize"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/observability"
)

const (
	DefaultAccessWindow = 24 * time.Hour
	DefaultPendingTTL   = 72 * time.Hour
)

// Config holds process configuration.
type Config struct {
	LogLevel string
	// DatabaseURL selects Postgres. Empty runs in lite mode on SQLite under DataDir.
	DatabaseURL string
	DataDir     string
	// PolicyPath is an optional YAML permission policy; empty uses the built-in tables.
	PolicyPath   string
	AccessWindow time.Duration
	PendingTTL   time.Duration
	Digest       canonicalize.Algorithm
	// RedisAddr shares the commit sequencer across nodes when set.
	RedisAddr string
	Telemetry *observability.Config
	Artifacts artifacts.Config
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	window, err := duration("EVIDENTIA_ACCESS_WINDOW", DefaultAccessWindow)
	if err != nil {
		return nil, err
	}
	ttl, err := duration("EVIDENTIA_PENDING_TTL", DefaultPendingTTL)
	if err != nil {
		return nil, err
	}
	digest, err := canonicalize.ParseAlgorithm(os.Getenv("EVIDENTIA_DIGEST"))
	if err != nil {
		return nil, fmt.Errorf("EVIDENTIA_DIGEST: %w", err)
	}

	telemetry := observability.DefaultConfig()
	telemetry.Enabled = os.Getenv("OTEL_ENABLED") == "true"
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		telemetry.OTLPEndpoint = v
	}
	if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		telemetry.ServiceName = v
	}
	if v := os.Getenv("OTEL_ENVIRONMENT"); v != "" {
		telemetry.Environment = v
	}
	telemetry.Insecure = os.Getenv("OTEL_INSECURE") == "true"
	if v := os.Getenv("OTEL_SAMPLE_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil || rate < 0 || rate > 1 {
			return nil, fmt.Errorf("OTEL_SAMPLE_RATE: want a number in [0,1], got %q", v)
		}
		telemetry.SampleRate = rate
	}

	store := artifacts.ConfigFromEnv()
	store.Dir = filepath.Join(dataDir, "artifacts")

	return &Config{
		LogLevel:     logLevel,
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DataDir:      dataDir,
		PolicyPath:   os.Getenv("EVIDENTIA_POLICY"),
		AccessWindow: window,
		PendingTTL:   ttl,
		Digest:       digest,
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		Telemetry:    telemetry,
		Artifacts:    store,
	}, nil
}

// LiteMode reports whether the ledger runs on local SQLite.
func (c *Config) LiteMode() bool {
	return c.DatabaseURL == ""
}

// SQLitePath is the lite-mode database file.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "evidentia.db")
}

// SlogLevel maps LogLevel to a slog level; unknown names mean Info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func duration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", key, d)
	}
	return d, nil
}
