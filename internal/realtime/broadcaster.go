package realtime

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mcoot/grimoire/internal/model"
	"github.com/mcoot/grimoire/internal/services/lobby"
	"github.com/mcoot/grimoire/internal/services/view"
)

// Projector builds the views sent to clients
type Projector interface {
	FullView(ctx context.Context, lobbyID model.LobbyID) (*view.StorytellerState, error)
	RestrictedView(ctx context.Context, playerID model.PlayerID) (*view.PlayerState, error)
	AssignedCharacter(scriptID model.ScriptID, id model.CharacterID) (*view.Character, error)
}

// Broadcaster pushes complete role views and lobby notices after mutations.
// Both the websocket command handler and the REST surface publish through it.
type Broadcaster struct {
	registry   *Registry
	dispatcher *Dispatcher
	projector  Projector
	logger     *slog.Logger
}

// NewBroadcaster creates a new Broadcaster
func NewBroadcaster(registry *Registry, dispatcher *Dispatcher, projector Projector, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		registry:   registry,
		dispatcher: dispatcher,
		projector:  projector,
		logger:     logger.With(slog.String("component", "broadcaster")),
	}
}

// PublishViews sends every connection bound to the lobby its complete
// view: GAME_STATE for the storyteller, PLAYER_GAME_STATE for players
func (b *Broadcaster) PublishViews(ctx context.Context, lobbyID model.LobbyID) {
	b.publish(ctx, lobbyID, false)
}

// PublishFullView refreshes only the storyteller's view
func (b *Broadcaster) PublishFullView(ctx context.Context, lobbyID model.LobbyID) {
	b.publish(ctx, lobbyID, true)
}

func (b *Broadcaster) publish(ctx context.Context, lobbyID model.LobbyID, storytellerOnly bool) {
	bindings := b.registry.LookupByLobby(lobbyID)
	if len(bindings) == 0 {
		return
	}

	full, err := b.projector.FullView(ctx, lobbyID)
	if err != nil {
		if !errors.Is(err, model.ErrLobbyNotFound) {
			b.logger.Error("failed to build full view",
				slog.String("lobby_id", string(lobbyID)),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	storyteller := make(map[model.PlayerID]bool, len(full.Players))
	for _, p := range full.Players {
		storyteller[p.ID] = p.IsStoryteller
	}

	restricted := make(map[model.PlayerID]*view.PlayerState)
	for _, bd := range bindings {
		isStoryteller, known := storyteller[bd.PlayerID]
		if !known {
			// Removed players keep no view
			continue
		}
		if isStoryteller {
			b.dispatcher.SendTo(bd.ConnID, Event{Type: EventGameState, State: full})
			continue
		}
		if storytellerOnly {
			continue
		}

		state, ok := restricted[bd.PlayerID]
		if !ok {
			state, err = b.projector.RestrictedView(ctx, bd.PlayerID)
			if err != nil {
				b.logger.Warn("failed to build player view",
					slog.String("player_id", string(bd.PlayerID)),
					slog.String("error", err.Error()),
				)
				continue
			}
			restricted[bd.PlayerID] = state
		}
		b.dispatcher.SendTo(bd.ConnID, Event{Type: EventPlayerGameState, State: state})
	}
}

// CharactersSelected announces a committed selection, tells each player who
// already joined which character they drew and refreshes every view
func (b *Broadcaster) CharactersSelected(ctx context.Context, sel *lobby.Selection) {
	l := sel.Lobby
	b.dispatcher.Broadcast(l.ID, Event{Type: EventCharactersSelected, CharacterIDs: l.SelectedCharacters}, "")
	for playerID, charID := range sel.Assignments {
		b.CharacterAssigned(l.ScriptID, playerID, charID)
	}
	b.PublishViews(ctx, l.ID)
}

// CharacterAssigned tells a player which character they drew
func (b *Broadcaster) CharacterAssigned(scriptID model.ScriptID, playerID model.PlayerID, charID model.CharacterID) {
	ch, err := b.projector.AssignedCharacter(scriptID, charID)
	if err != nil {
		b.logger.Error("failed to resolve character",
			slog.String("character", string(charID)),
			slog.String("error", err.Error()),
		)
		return
	}
	b.dispatcher.SendToPlayer(playerID, Event{Type: EventCharacterAssigned, Character: ch})
}

// GameStarted announces the start of play and refreshes every view
func (b *Broadcaster) GameStarted(ctx context.Context, lobbyID model.LobbyID) {
	b.dispatcher.Broadcast(lobbyID, Event{Type: EventGameStarted}, "")
	b.PublishViews(ctx, lobbyID)
}

// PlayerRemoved tells the lobby a player is gone, closes the player's
// connections after a terminal notice and refreshes the remaining views
func (b *Broadcaster) PlayerRemoved(ctx context.Context, lobbyID model.LobbyID, playerID model.PlayerID) {
	b.dispatcher.Broadcast(lobbyID, Event{Type: EventPlayerLeft, PlayerID: playerID}, "")
	b.dispatcher.DisconnectPlayer(playerID, RemovedNotice())
	b.PublishViews(ctx, lobbyID)
}

// TokenMoved refreshes the storyteller's view after a drag
func (b *Broadcaster) TokenMoved(ctx context.Context, lobbyID model.LobbyID) {
	b.PublishFullView(ctx, lobbyID)
}

// LobbyExpired closes every connection of a deleted lobby
func (b *Broadcaster) LobbyExpired(_ context.Context, l *model.Lobby) {
	b.dispatcher.DisconnectLobby(l.ID, LobbyExpiredNotice())
}
