package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage backends
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageSQLite = "sqlite"
)

// Config holds server settings read from the environment
type Config struct {
	Host string `env:"GRIMOIRE_HOST"`
	Port int    `env:"GRIMOIRE_PORT" envDefault:"8080"`

	Storage    string `env:"GRIMOIRE_STORAGE" envDefault:"memory"`
	RedisURL   string `env:"GRIMOIRE_REDIS_URL"`
	SQLitePath string `env:"GRIMOIRE_SQLITE_PATH" envDefault:"grimoire.db"`

	LobbyTTL        time.Duration `env:"GRIMOIRE_LOBBY_TTL" envDefault:"6h"`
	ReapInterval    time.Duration `env:"GRIMOIRE_REAP_INTERVAL" envDefault:"1h"`
	MaxCodeAttempts int           `env:"GRIMOIRE_MAX_CODE_ATTEMPTS" envDefault:"1000"`

	LogLevel string `env:"GRIMOIRE_LOG_LEVEL" envDefault:"info"`
	// AllowedOrigins lists websocket origins; empty allows any
	AllowedOrigins []string `env:"GRIMOIRE_ALLOWED_ORIGINS" envSeparator:","`
}

// Load reads an optional dotenv file and then parses the environment.
// Variables already set in the environment win over the file.
func Load(dotenvPaths ...string) (Config, error) {
	for _, p := range dotenvPaths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", p, err)
		}
	}
	return Parse()
}

// Parse builds a Config from the process environment
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the parser cannot
func (c Config) Validate() error {
	var errs []error
	switch c.Storage {
	case StorageMemory, StorageSQLite:
	case StorageRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("GRIMOIRE_REDIS_URL is required when GRIMOIRE_STORAGE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("GRIMOIRE_STORAGE must be memory, redis or sqlite, got %q", c.Storage))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("GRIMOIRE_PORT out of range: %d", c.Port))
	}
	if c.LobbyTTL <= 0 {
		errs = append(errs, errors.New("GRIMOIRE_LOBBY_TTL must be positive"))
	}
	if c.ReapInterval <= 0 {
		errs = append(errs, errors.New("GRIMOIRE_REAP_INTERVAL must be positive"))
	}
	if c.MaxCodeAttempts <= 0 {
		errs = append(errs, errors.New("GRIMOIRE_MAX_CODE_ATTEMPTS must be positive"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel returns the configured log level
func (c Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("GRIMOIRE_LOG_LEVEL: %w", err)
	}
	return level, nil
}
