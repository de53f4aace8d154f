package lobby

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mcoot/grimoire/internal/dependencies/clock"
	"github.com/mcoot/grimoire/internal/dependencies/random"
	"github.com/mcoot/grimoire/internal/model"
	"github.com/mcoot/grimoire/internal/services/catalog"
	"github.com/mcoot/grimoire/internal/services/session"
	"github.com/mcoot/grimoire/internal/storage"
)

const (
	// LobbyCodeLength is the length of generated lobby codes
	LobbyCodeLength = 4
	// LobbyCodeAlphabet is the characters used in lobby codes (avoid confusing chars)
	LobbyCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// MaxNameLength caps player display names, in runes
	MaxNameLength = 32
)

// Config holds lobby policy settings
type Config struct {
	CodeLength      int
	CodeAlphabet    string
	MaxCodeAttempts int

	// Token layout on the storyteller's canvas
	CanvasSize   float64
	LayoutRadius float64
}

// DefaultConfig returns the default lobby configuration
func DefaultConfig() Config {
	return Config{
		CodeLength:      LobbyCodeLength,
		CodeAlphabet:    LobbyCodeAlphabet,
		MaxCodeAttempts: 1000,
		CanvasSize:      500,
		LayoutRadius:    200,
	}
}

// Controller owns the lobby state machine. It is the only writer of lobby
// and player records, and every mutation runs under the lobby's lock.
type Controller struct {
	storage  storage.Storage
	catalog  *catalog.Catalog
	sessions *session.Service
	locks    *LockTable
	clock    clock.Clock
	random   random.Random
	cfg      Config
	logger   *slog.Logger
}

// NewController creates a new lobby Controller
func NewController(
	storage storage.Storage,
	catalog *catalog.Catalog,
	sessions *session.Service,
	locks *LockTable,
	clock clock.Clock,
	random random.Random,
	cfg Config,
	logger *slog.Logger,
) *Controller {
	defaults := DefaultConfig()
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = defaults.CodeLength
	}
	if cfg.CodeAlphabet == "" {
		cfg.CodeAlphabet = defaults.CodeAlphabet
	}
	if cfg.MaxCodeAttempts <= 0 {
		cfg.MaxCodeAttempts = defaults.MaxCodeAttempts
	}
	if cfg.CanvasSize <= 0 {
		cfg.CanvasSize = defaults.CanvasSize
	}
	if cfg.LayoutRadius <= 0 {
		cfg.LayoutRadius = defaults.LayoutRadius
	}
	return &Controller{
		storage:  storage,
		catalog:  catalog,
		sessions: sessions,
		locks:    locks,
		clock:    clock,
		random:   random,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "lobby")),
	}
}

// CreateRequest describes a new lobby
type CreateRequest struct {
	PlayerCount int
	ScriptID    model.ScriptID
	// Connected marks the storyteller as attached to a live connection
	Connected bool
}

// Created is the outcome of CreateLobby
type Created struct {
	Lobby       *model.Lobby
	Storyteller *model.Player
	Credential  string
}

// CreateLobby creates a lobby in the character_select phase along with its storyteller
func (c *Controller) CreateLobby(ctx context.Context, req CreateRequest) (*Created, error) {
	if err := c.catalog.ValidateLobby(req.ScriptID, req.PlayerCount); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrInvalidLobbyConfig, err)
	}

	now := c.clock.Now()
	for attempt := 0; attempt < c.cfg.MaxCodeAttempts; attempt++ {
		code := model.LobbyCode(c.random.String(c.cfg.CodeLength, c.cfg.CodeAlphabet))
		exists, err := c.storage.LobbyCodeExists(ctx, code)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		cred, err := c.sessions.Mint()
		if err != nil {
			return nil, err
		}
		lobby := &model.Lobby{
			ID:          model.LobbyID(c.random.ID()),
			Code:        code,
			ScriptID:    req.ScriptID,
			Phase:       model.PhaseCharacterSelect,
			PlayerCount: req.PlayerCount,
			CreatedAt:   now,
		}
		storyteller := &model.Player{
			ID:             model.PlayerID(c.random.ID()),
			LobbyID:        lobby.ID,
			Name:           model.StorytellerName,
			IsStoryteller:  true,
			CredentialHash: cred.Hash,
			Connected:      req.Connected,
			JoinedAt:       now,
		}

		// The store enforces code uniqueness; losing a race just means another draw
		if err := c.storage.CreateLobby(ctx, lobby, storyteller); err != nil {
			if errors.Is(err, model.ErrCodeTaken) {
				continue
			}
			return nil, err
		}

		c.logger.Info("lobby created",
			slog.String("lobby_id", string(lobby.ID)),
			slog.String("code", string(lobby.Code)),
			slog.String("script", string(lobby.ScriptID)),
			slog.Int("player_count", lobby.PlayerCount),
		)
		return &Created{Lobby: lobby, Storyteller: storyteller, Credential: cred.Secret}, nil
	}

	c.logger.Error("lobby code space exhausted", slog.Int("attempts", c.cfg.MaxCodeAttempts))
	return nil, model.ErrCodeGenerationExhausted
}

// GetLobby retrieves a lobby by id
func (c *Controller) GetLobby(ctx context.Context, id model.LobbyID) (*model.Lobby, error) {
	return c.storage.GetLobby(ctx, id)
}

// GetLobbyByCode retrieves a lobby by its code, ignoring case
func (c *Controller) GetLobbyByCode(ctx context.Context, code string) (*model.Lobby, error) {
	return c.storage.GetLobbyByCode(ctx, model.NormalizeLobbyCode(code))
}

// JoinRequest describes a player attaching to a lobby
type JoinRequest struct {
	Code string
	Name string
	// Credential, if it belongs to a player of the same lobby, turns the
	// join into a reattachment of that player
	Credential string
	Connected  bool
	// Attach, if set, runs with the joined player while the lobby is still
	// locked, before any other command can observe the join
	Attach func(*model.Player)
}

// Joined is the outcome of JoinLobby
type Joined struct {
	Lobby       *model.Lobby
	Player      *model.Player
	Credential  string
	Reconnected bool
	// Assigned is the character handed out on this join, if any
	Assigned model.CharacterID
}

// JoinLobby adds a player to a lobby, or reattaches an existing one when
// the request carries their credential
func (c *Controller) JoinLobby(ctx context.Context, req JoinRequest) (*Joined, error) {
	found, err := c.GetLobbyByCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}

	release := c.locks.Acquire(found.ID)
	defer release()

	lobby, err := c.storage.GetLobby(ctx, found.ID)
	if err != nil {
		return nil, err
	}

	if req.Credential != "" {
		existing, err := c.sessions.Resolve(ctx, req.Credential)
		switch {
		case err == nil && existing.LobbyID == lobby.ID:
			if err := c.storage.SetPlayerConnected(ctx, existing.ID, req.Connected); err != nil {
				return nil, err
			}
			existing.Connected = req.Connected
			if req.Attach != nil {
				req.Attach(existing)
			}
			c.logger.Info("player rejoined",
				slog.String("lobby_id", string(lobby.ID)),
				slog.String("player_id", string(existing.ID)),
			)
			return &Joined{Lobby: lobby, Player: existing, Credential: req.Credential, Reconnected: true}, nil
		case err != nil && !errors.Is(err, model.ErrInvalidSession):
			return nil, err
		}
		// Stale or foreign credentials fall through to a fresh join
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", model.ErrInvalidMessage)
	}
	if len([]rune(name)) > MaxNameLength {
		return nil, fmt.Errorf("%w: name is longer than %d characters", model.ErrInvalidMessage, MaxNameLength)
	}

	players, err := c.storage.ListPlayers(ctx, lobby.ID)
	if err != nil {
		return nil, err
	}
	if countNonStorytellers(players) >= lobby.PlayerCount {
		return nil, model.ErrLobbyFull
	}

	cred, err := c.sessions.Mint()
	if err != nil {
		return nil, err
	}
	player := &model.Player{
		ID:             model.PlayerID(c.random.ID()),
		LobbyID:        lobby.ID,
		Name:           name,
		CredentialHash: cred.Hash,
		Connected:      req.Connected,
		JoinedAt:       c.clock.Now(),
	}
	if err := c.storage.CreatePlayer(ctx, player); err != nil {
		return nil, err
	}

	joined := &Joined{Lobby: lobby, Player: player, Credential: cred.Secret}
	if lobby.Phase == model.PhaseWaitingForPlayers {
		assigned, err := c.assignNextLocked(ctx, lobby, player.ID)
		if err != nil {
			return nil, err
		}
		joined.Assigned = assigned
		player.CharacterID = assigned
	}
	if req.Attach != nil {
		req.Attach(player)
	}

	c.logger.Info("player joined",
		slog.String("lobby_id", string(lobby.ID)),
		slog.String("player_id", string(player.ID)),
		slog.String("character", string(joined.Assigned)),
	)
	return joined, nil
}

func countNonStorytellers(players []*model.Player) int {
	n := 0
	for _, p := range players {
		if !p.IsStoryteller {
			n++
		}
	}
	return n
}

// AssignNextCharacter gives the player a random character that nobody in
// the lobby holds yet. It returns an empty id and no error when none is left.
func (c *Controller) AssignNextCharacter(ctx context.Context, lobbyID model.LobbyID, playerID model.PlayerID) (model.CharacterID, error) {
	release := c.locks.Acquire(lobbyID)
	defer release()

	lobby, err := c.storage.GetLobby(ctx, lobbyID)
	if err != nil {
		return "", err
	}
	return c.assignNextLocked(ctx, lobby, playerID)
}

// assignNextLocked must be called with the lobby's lock held
func (c *Controller) assignNextLocked(ctx context.Context, lobby *model.Lobby, playerID model.PlayerID) (model.CharacterID, error) {
	if !lobby.HasSelection() {
		return "", nil
	}
	players, err := c.storage.ListPlayers(ctx, lobby.ID)
	if err != nil {
		return "", err
	}

	taken := make(map[model.CharacterID]bool, len(players))
	found := false
	for _, p := range players {
		if p.ID == playerID {
			found = true
			if p.IsStoryteller {
				return "", nil
			}
			if p.HasCharacter() {
				return p.CharacterID, nil
			}
		}
		if p.HasCharacter() {
			taken[p.CharacterID] = true
		}
	}
	if !found {
		return "", model.ErrPlayerNotFound
	}

	var remaining []model.CharacterID
	for _, id := range lobby.SelectedCharacters {
		if !taken[id] {
			remaining = append(remaining, id)
		}
	}
	if len(remaining) == 0 {
		return "", nil
	}

	pick := remaining[c.random.Intn(len(remaining))]
	if err := c.storage.AssignCharacter(ctx, lobby.ID, playerID, pick); err != nil {
		return "", err
	}
	c.logger.Debug("character assigned",
		slog.String("lobby_id", string(lobby.ID)),
		slog.String("player_id", string(playerID)),
		slog.String("character", string(pick)),
	)
	return pick, nil
}

// requireStoryteller loads the requester and checks they run the lobby
func (c *Controller) requireStoryteller(ctx context.Context, lobbyID model.LobbyID, requester model.PlayerID) error {
	p, err := c.storage.GetPlayer(ctx, requester)
	if errors.Is(err, model.ErrPlayerNotFound) {
		return model.ErrNotInLobby
	}
	if err != nil {
		return err
	}
	if p.LobbyID != lobbyID {
		return model.ErrNotInLobby
	}
	if !p.IsStoryteller {
		return model.ErrNotStoryteller
	}
	return nil
}

// Selection is the outcome of CommitCharacterSelection
type Selection struct {
	Lobby  *model.Lobby
	Tokens []model.Token
	// Assignments lists characters handed to players who joined before the selection
	Assignments map[model.PlayerID]model.CharacterID
}

// CommitCharacterSelection validates and stores the storyteller's choice of
// characters, lays out one token per character and moves the lobby to
// waiting_for_players
func (c *Controller) CommitCharacterSelection(ctx context.Context, lobbyID model.LobbyID, requester model.PlayerID, characterIDs []model.CharacterID) (*Selection, error) {
	release := c.locks.Acquire(lobbyID)
	defer release()

	lobby, err := c.storage.GetLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	if err := c.requireStoryteller(ctx, lobbyID, requester); err != nil {
		return nil, err
	}
	if lobby.Phase != model.PhaseCharacterSelect {
		return nil, model.ErrInvalidPhase
	}
	if err := c.catalog.ValidateSelection(lobby.ScriptID, lobby.PlayerCount, characterIDs); err != nil {
		return nil, err
	}

	next := model.PhaseWaitingForPlayers
	tokens := CircleLayout(lobby.ID, characterIDs, c.cfg.CanvasSize, c.cfg.LayoutRadius)
	if err := c.storage.CommitSelection(ctx, lobby.ID, next, characterIDs, tokens); err != nil {
		return nil, err
	}
	lobby.Phase = next
	lobby.SelectedCharacters = append([]model.CharacterID{}, characterIDs...)

	players, err := c.storage.ListPlayers(ctx, lobby.ID)
	if err != nil {
		return nil, err
	}
	assignments := make(map[model.PlayerID]model.CharacterID)
	for _, p := range players {
		if p.IsStoryteller || p.HasCharacter() {
			continue
		}
		assigned, err := c.assignNextLocked(ctx, lobby, p.ID)
		if err != nil {
			return nil, err
		}
		if assigned == "" {
			break
		}
		assignments[p.ID] = assigned
	}

	c.logger.Info("characters selected",
		slog.String("lobby_id", string(lobby.ID)),
		slog.Int("count", len(characterIDs)),
		slog.Int("assigned", len(assignments)),
	)
	return &Selection{Lobby: lobby, Tokens: tokens, Assignments: assignments}, nil
}

// StartGame moves the lobby to playing. Starting an already started game
// succeeds without changing anything.
func (c *Controller) StartGame(ctx context.Context, lobbyID model.LobbyID, requester model.PlayerID) (*model.Lobby, error) {
	release := c.locks.Acquire(lobbyID)
	defer release()

	lobby, err := c.storage.GetLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	if err := c.requireStoryteller(ctx, lobbyID, requester); err != nil {
		return nil, err
	}
	if lobby.Phase == model.PhasePlaying {
		return lobby, nil
	}
	if !lobby.Phase.CanTransitionTo(model.PhasePlaying) {
		return nil, model.ErrInvalidPhase
	}
	if err := c.storage.UpdateLobbyPhase(ctx, lobbyID, model.PhasePlaying); err != nil {
		return nil, err
	}
	lobby.Phase = model.PhasePlaying

	c.logger.Info("game started", slog.String("lobby_id", string(lobbyID)))
	return lobby, nil
}

// RemovePlayer deletes a non-storyteller player. Their token stays on the
// board without an owner so the character can be handed out again.
func (c *Controller) RemovePlayer(ctx context.Context, lobbyID model.LobbyID, requester, target model.PlayerID) (*model.Player, error) {
	release := c.locks.Acquire(lobbyID)
	defer release()

	if _, err := c.storage.GetLobby(ctx, lobbyID); err != nil {
		return nil, err
	}
	if err := c.requireStoryteller(ctx, lobbyID, requester); err != nil {
		return nil, err
	}

	p, err := c.storage.GetPlayer(ctx, target)
	if errors.Is(err, model.ErrPlayerNotFound) {
		return nil, fmt.Errorf("%w: player not found", model.ErrCannotRemove)
	}
	if err != nil {
		return nil, err
	}
	if p.LobbyID != lobbyID {
		return nil, fmt.Errorf("%w: player not found", model.ErrCannotRemove)
	}
	if p.IsStoryteller {
		return nil, fmt.Errorf("%w: the storyteller cannot be removed", model.ErrCannotRemove)
	}

	if err := c.storage.DeletePlayer(ctx, target); err != nil {
		return nil, err
	}

	c.logger.Info("player removed",
		slog.String("lobby_id", string(lobbyID)),
		slog.String("player_id", string(target)),
	)
	return p, nil
}

// MoveToken repositions a token on the storyteller's canvas. Coordinates
// are clamped to the canvas.
func (c *Controller) MoveToken(ctx context.Context, lobbyID model.LobbyID, requester model.PlayerID, characterID model.CharacterID, pos model.Position) (model.Position, error) {
	release := c.locks.Acquire(lobbyID)
	defer release()

	if _, err := c.storage.GetLobby(ctx, lobbyID); err != nil {
		return model.Position{}, err
	}
	if err := c.requireStoryteller(ctx, lobbyID, requester); err != nil {
		return model.Position{}, err
	}

	pos = model.Position{
		X: clamp(pos.X, 0, c.cfg.CanvasSize),
		Y: clamp(pos.Y, 0, c.cfg.CanvasSize),
	}
	if err := c.storage.SetTokenPosition(ctx, lobbyID, characterID, pos); err != nil {
		return model.Position{}, err
	}
	return pos, nil
}

// Reconnect exchanges a credential for its player and marks them connected.
// attach, if non-nil, runs under the lobby lock once the flag is written.
func (c *Controller) Reconnect(ctx context.Context, credential string, attach func(*model.Player)) (*model.Player, error) {
	p, err := c.sessions.Resolve(ctx, credential)
	if err != nil {
		return nil, err
	}

	release := c.locks.Acquire(p.LobbyID)
	defer release()

	if err := c.storage.SetPlayerConnected(ctx, p.ID, true); err != nil {
		if errors.Is(err, model.ErrPlayerNotFound) {
			// Removed between lookup and lock
			return nil, model.ErrInvalidSession
		}
		return nil, err
	}
	p.Connected = true
	if attach != nil {
		attach(p)
	}

	c.logger.Info("player reconnected",
		slog.String("lobby_id", string(p.LobbyID)),
		slog.String("player_id", string(p.ID)),
	)
	return p, nil
}

// MarkDisconnected clears the player's connectivity flag and reports
// whether it did. stillConnected, if non-nil, is checked under the lobby
// lock and leaves the flag alone when it returns true. Players that no
// longer exist are ignored.
func (c *Controller) MarkDisconnected(ctx context.Context, lobbyID model.LobbyID, playerID model.PlayerID, stillConnected func() bool) (bool, error) {
	release := c.locks.Acquire(lobbyID)
	defer release()

	if stillConnected != nil && stillConnected() {
		return false, nil
	}
	err := c.storage.SetPlayerConnected(ctx, playerID, false)
	if errors.Is(err, model.ErrPlayerNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ExpireLobby deletes the lobby if it was created before cutoff and
// reports whether it did
func (c *Controller) ExpireLobby(ctx context.Context, lobbyID model.LobbyID, cutoff time.Time) (bool, error) {
	release := c.locks.Acquire(lobbyID)
	defer release()

	lobby, err := c.storage.GetLobby(ctx, lobbyID)
	if errors.Is(err, model.ErrLobbyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !lobby.CreatedAt.Before(cutoff) {
		return false, nil
	}
	if err := c.storage.DeleteLobby(ctx, lobbyID); err != nil {
		return false, err
	}

	c.logger.Info("lobby expired",
		slog.String("lobby_id", string(lobbyID)),
		slog.String("code", string(lobby.Code)),
		slog.Time("created_at", lobby.CreatedAt),
	)
	return true, nil
}
