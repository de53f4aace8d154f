package factory

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/mcoot/grimoire/internal/api"
	"github.com/mcoot/grimoire/internal/config"
	"github.com/mcoot/grimoire/internal/dependencies/clock"
	"github.com/mcoot/grimoire/internal/dependencies/random"
	"github.com/mcoot/grimoire/internal/realtime"
	"github.com/mcoot/grimoire/internal/services/catalog"
	"github.com/mcoot/grimoire/internal/services/lobby"
	"github.com/mcoot/grimoire/internal/services/reaper"
	"github.com/mcoot/grimoire/internal/services/session"
	"github.com/mcoot/grimoire/internal/services/view"
	"github.com/mcoot/grimoire/internal/storage"
	"github.com/mcoot/grimoire/internal/storage/memory"
	redisstorage "github.com/mcoot/grimoire/internal/storage/redis"
	"github.com/mcoot/grimoire/internal/storage/sqlite"
)

// Storage type constants
const (
	StorageTypeMemory = config.StorageMemory
	StorageTypeRedis  = config.StorageRedis
	StorageTypeSQLite = config.StorageSQLite
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Services
	Catalog         *catalog.Catalog
	Sessions        *session.Service
	Locks           *lobby.LockTable
	LobbyController *lobby.Controller
	Projector       *view.Projector
	Reaper          *reaper.Reaper

	// Realtime
	Registry    *realtime.Registry
	Dispatcher  *realtime.Dispatcher
	Broadcaster *realtime.Broadcaster
	Commands    *realtime.CommandHandler
	WebSocket   *realtime.Server

	logger *slog.Logger
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory", "redis" or "sqlite")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// SQLitePath is the database file (required if StorageType is "sqlite")
	SQLitePath string
	// Lobby holds lobby policy; zero fields take the lobby defaults
	Lobby lobby.Config
	// Reaper holds expiry policy; zero fields take the reaper defaults
	Reaper reaper.Config
	// AllowedOrigins restricts websocket origins; empty allows any
	AllowedOrigins []string
}

// ConfigFromEnv maps parsed environment settings onto a factory Config
func ConfigFromEnv(env config.Config, logger *slog.Logger) Config {
	cfg := Config{
		Logger:         logger,
		StorageType:    env.Storage,
		SQLitePath:     env.SQLitePath,
		AllowedOrigins: env.AllowedOrigins,
		Reaper: reaper.Config{
			TTL:      env.LobbyTTL,
			Interval: env.ReapInterval,
		},
	}
	cfg.Lobby = lobby.DefaultConfig()
	cfg.Lobby.MaxCodeAttempts = env.MaxCodeAttempts
	if env.Storage == StorageTypeRedis {
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = env.RedisURL
		cfg.RedisConfig = &redisCfg
	}
	return cfg
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	store, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Default()
	if err != nil {
		closeStorage(store)
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	return newWithDependencies(store, cat, clock.New(), random.New(), cfg, logger), nil
}

func openStorage(cfg Config) (storage.Storage, error) {
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		return memory.New(), nil
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		store, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return store, nil
	case StorageTypeSQLite:
		if cfg.SQLitePath == "" {
			return nil, errors.New("SQLitePath required when StorageType is sqlite")
		}
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("invalid StorageType %q: must be 'memory', 'redis' or 'sqlite'", storageType)
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.Storage, cat *catalog.Catalog, clk clock.Clock, rnd random.Random, cfg Config, logger *slog.Logger) *App {
	// Lobby services share one lock table so views never see a half-applied mutation
	locks := lobby.NewLockTable()
	sessions := session.New(store, rnd)
	lobbyController := lobby.NewController(store, cat, sessions, locks, clk, rnd, cfg.Lobby, logger)
	projector := view.NewProjector(store, cat, locks)

	// Realtime
	registry := realtime.NewRegistry()
	dispatcher := realtime.NewDispatcher(registry, logger)
	broadcaster := realtime.NewBroadcaster(registry, dispatcher, projector, logger)
	commands := realtime.NewCommandHandler(lobbyController, registry, dispatcher, broadcaster, logger)
	ws := realtime.NewServer(registry, dispatcher, commands, rnd, cfg.AllowedOrigins, logger)

	reaperCfg := cfg.Reaper
	if reaperCfg.OnExpired == nil {
		reaperCfg.OnExpired = broadcaster.LobbyExpired
	}
	lobbyReaper := reaper.New(store, lobbyController, clk, reaperCfg, logger)

	return &App{
		Storage:         store,
		Clock:           clk,
		Random:          rnd,
		Catalog:         cat,
		Sessions:        sessions,
		Locks:           locks,
		LobbyController: lobbyController,
		Projector:       projector,
		Reaper:          lobbyReaper,
		Registry:        registry,
		Dispatcher:      dispatcher,
		Broadcaster:     broadcaster,
		Commands:        commands,
		WebSocket:       ws,
		logger:          logger,
	}
}

// Router builds the HTTP handler serving the REST API and the websocket endpoint
func (a *App) Router() http.Handler {
	return api.NewRouter(api.RouterConfig{
		Logger:          a.logger,
		Sessions:        a.Sessions,
		LobbyController: a.LobbyController,
		Catalog:         a.Catalog,
		Projector:       a.Projector,
		Notifier:        a.Broadcaster,
		WebSocket:       a.WebSocket,
	})
}

// Close closes every live connection and releases the storage backend
func (a *App) Close() error {
	a.Dispatcher.CloseAll()
	if c, ok := a.Storage.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func closeStorage(store storage.Storage) {
	if c, ok := store.(io.Closer); ok {
		_ = c.Close()
	}
}
