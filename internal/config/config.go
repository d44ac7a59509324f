package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/efreitasn/isinprofit/internal/domain"
)

// Config holds all runtime configuration for the profit service.
type Config struct {
	Port            int
	LogLevel        string
	DBPath          string // empty selects the in-memory ledger
	EpochFloor      domain.Date
	MatchWorkers    int
	MatchTimeout    time.Duration // 0 disables the per-match deadline
	MaxRangeDays    int
	TracingEnabled  bool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// LoadDotEnv sets environment variables from the given .env files without
// overriding variables already set. With no paths it reads ./.env and
// ignores its absence.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d, must be between 1 and 65535", port)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	epochFloor, err := getDate("EPOCH_FLOOR", domain.NewDate(2000, time.January, 1))
	if err != nil {
		return nil, fmt.Errorf("invalid EPOCH_FLOOR: %w", err)
	}

	matchWorkers, err := getInt("MATCH_WORKERS", 4)
	if err != nil {
		return nil, fmt.Errorf("invalid MATCH_WORKERS: %w", err)
	}
	if matchWorkers < 1 {
		return nil, fmt.Errorf("invalid MATCH_WORKERS: %d, must be >= 1", matchWorkers)
	}

	matchTimeout, err := getDuration("MATCH_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid MATCH_TIMEOUT: %w", err)
	}
	if matchTimeout < 0 {
		return nil, fmt.Errorf("invalid MATCH_TIMEOUT: %v, must be >= 0", matchTimeout)
	}

	maxRangeDays, err := getInt("MAX_RANGE_DAYS", 366)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_RANGE_DAYS: %w", err)
	}
	if maxRangeDays < 1 {
		return nil, fmt.Errorf("invalid MAX_RANGE_DAYS: %d, must be >= 1", maxRangeDays)
	}

	tracingEnabled, err := getBool("TRACING_ENABLED", false)
	if err != nil {
		return nil, fmt.Errorf("invalid TRACING_ENABLED: %w", err)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Port:            port,
		LogLevel:        logLevel,
		DBPath:          getStr("DB_PATH", ""),
		EpochFloor:      epochFloor,
		MatchWorkers:    matchWorkers,
		MatchTimeout:    matchTimeout,
		MaxRangeDays:    maxRangeDays,
		TracingEnabled:  tracingEnabled,
		ReadTimeout:     readTimeout,
		WriteTimeout:    writeTimeout,
		IdleTimeout:     idleTimeout,
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

// SlogLevel returns the slog level named by LogLevel.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseBool(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func getDate(key string, defaultVal domain.Date) (domain.Date, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return domain.ParseDate(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
