package reaper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mcoot/grimoire/internal/dependencies/clock"
	"github.com/mcoot/grimoire/internal/model"
)

// Defaults for lobby expiry
const (
	DefaultTTL      = 6 * time.Hour
	DefaultInterval = time.Hour
)

// LobbyLister finds lobbies created before a cutoff, oldest first
type LobbyLister interface {
	ListLobbiesCreatedBefore(ctx context.Context, cutoff time.Time) ([]*model.Lobby, error)
}

// LobbyExpirer deletes a lobby if it is still older than the cutoff once
// the lobby's lock is held
type LobbyExpirer interface {
	ExpireLobby(ctx context.Context, lobbyID model.LobbyID, cutoff time.Time) (bool, error)
}

// ExpiredFunc is called after a lobby has been deleted
type ExpiredFunc func(ctx context.Context, lobby *model.Lobby)

// Config holds reaper settings
type Config struct {
	TTL      time.Duration
	Interval time.Duration
	// OnExpired, if set, is called for every lobby a sweep deletes
	OnExpired ExpiredFunc
}

// Reaper periodically deletes lobbies older than the TTL
type Reaper struct {
	lister    LobbyLister
	expirer   LobbyExpirer
	clock     clock.Clock
	ttl       time.Duration
	interval  time.Duration
	onExpired ExpiredFunc
	logger    *slog.Logger
}

// New creates a new Reaper
func New(lister LobbyLister, expirer LobbyExpirer, clock clock.Clock, cfg Config, logger *slog.Logger) *Reaper {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Reaper{
		lister:    lister,
		expirer:   expirer,
		clock:     clock,
		ttl:       cfg.TTL,
		interval:  cfg.Interval,
		onExpired: cfg.OnExpired,
		logger:    logger.With(slog.String("component", "reaper")),
	}
}

// Run sweeps once per interval until ctx is cancelled
func (r *Reaper) Run(ctx context.Context) error {
	r.logger.Info("reaper started",
		slog.Duration("ttl", r.ttl),
		slog.Duration("interval", r.interval),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return nil
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep deletes every lobby older than the TTL and returns how many it removed.
// A failure on one lobby does not stop the rest of the sweep.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	cutoff := clock.Cutoff(r.clock, r.ttl)
	lobbies, err := r.lister.ListLobbiesCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	var errs []error
	removed := 0
	for _, l := range lobbies {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		expired, err := r.expirer.ExpireLobby(ctx, l.ID, cutoff)
		if err != nil {
			r.logger.Warn("failed to expire lobby",
				slog.String("lobby_id", string(l.ID)),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		if !expired {
			continue
		}
		removed++
		r.logger.Debug("lobby reaped",
			slog.String("lobby_id", string(l.ID)),
			slog.Duration("age", clock.Age(r.clock, l.CreatedAt)),
		)
		if r.onExpired != nil {
			r.onExpired(ctx, l)
		}
	}

	if removed > 0 {
		r.logger.Info("sweep complete", slog.Int("removed", removed))
	}
	return removed, errors.Join(errs...)
}
