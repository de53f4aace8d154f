package realtime

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mcoot/grimoire/internal/api/apierr"
	"github.com/mcoot/grimoire/internal/model"
	"github.com/mcoot/grimoire/internal/services/lobby"
	"github.com/mcoot/grimoire/internal/services/view"
)

// CommandHandler runs inbound commands against the lobby controller and
// emits the resulting events. The caller must hand it one command at a
// time per connection.
type CommandHandler struct {
	controller  *lobby.Controller
	registry    *Registry
	dispatcher  *Dispatcher
	broadcaster *Broadcaster
	logger      *slog.Logger
}

// NewCommandHandler creates a new CommandHandler
func NewCommandHandler(controller *lobby.Controller, registry *Registry, dispatcher *Dispatcher, broadcaster *Broadcaster, logger *slog.Logger) *CommandHandler {
	return &CommandHandler{
		controller:  controller,
		registry:    registry,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		logger:      logger.With(slog.String("component", "commands")),
	}
}

// HandleFrame decodes a raw inbound frame and runs it. Malformed frames are
// answered with an ERROR event.
func (h *CommandHandler) HandleFrame(ctx context.Context, id ConnID, data []byte) {
	msg, err := DecodeClientMessage(data)
	if err != nil {
		h.fail(id, msg.Type, err)
		return
	}
	h.Handle(ctx, id, msg)
}

// Handle runs a decoded command
func (h *CommandHandler) Handle(ctx context.Context, id ConnID, msg ClientMessage) {
	var err error
	switch msg.Type {
	case CommandCreateLobby:
		err = h.createLobby(ctx, id, msg)
	case CommandJoinLobby:
		err = h.joinLobby(ctx, id, msg)
	case CommandReconnect:
		err = h.reconnect(ctx, id, msg)
	case CommandSelectCharacters:
		err = h.selectCharacters(ctx, id, msg)
	case CommandStartGame:
		err = h.startGame(ctx, id)
	case CommandRemovePlayer:
		err = h.removePlayer(ctx, id, msg)
	case CommandMoveToken:
		err = h.moveToken(ctx, id, msg)
	default:
		err = model.ErrUnknownMessage
	}
	if err != nil {
		h.fail(id, msg.Type, err)
	}
}

func (h *CommandHandler) fail(id ConnID, command string, err error) {
	ev := ErrorEvent(err)
	if ev.Code == apierr.CodeInternalError || ev.Code == apierr.CodeCodeGenerationExhausted {
		h.logger.Error("command failed",
			slog.String("conn_id", string(id)),
			slog.String("command", command),
			slog.String("error", err.Error()),
		)
	} else {
		h.logger.Debug("command rejected",
			slog.String("conn_id", string(id)),
			slog.String("command", command),
			slog.String("code", ev.Code),
		)
	}
	h.dispatcher.SendTo(id, ev)
}

// requireBinding returns the player the connection acts for
func (h *CommandHandler) requireBinding(id ConnID) (Binding, error) {
	b, ok := h.registry.Lookup(id)
	if !ok {
		return Binding{}, model.ErrNotInLobby
	}
	return b, nil
}

// attachment binds a connection to a player, possibly from inside a
// controller hook where the lobby lock is held. Detaching the player the
// connection acted for before has to wait until the controller returns.
type attachment struct {
	h      *CommandHandler
	id     ConnID
	player model.PlayerID
	prev   Binding
	had    bool
}

func (h *CommandHandler) attacher(id ConnID) *attachment {
	return &attachment{h: h, id: id}
}

func (a *attachment) attach(p *model.Player) {
	a.player = p.ID
	a.prev, a.had = a.h.registry.Bind(a.id, p.ID, p.LobbyID)
}

func (a *attachment) detachPrevious(ctx context.Context) {
	if a.had && a.prev.PlayerID != a.player {
		a.h.playerLeftConnection(ctx, a.prev)
	}
}

func (h *CommandHandler) createLobby(ctx context.Context, id ConnID, msg ClientMessage) error {
	created, err := h.controller.CreateLobby(ctx, lobby.CreateRequest{
		PlayerCount: msg.PlayerCount,
		ScriptID:    msg.ScriptID,
		Connected:   true,
	})
	if err != nil {
		return err
	}
	l := created.Lobby
	a := h.attacher(id)
	a.attach(created.Storyteller)
	a.detachPrevious(ctx)

	h.dispatcher.SendTo(id, Event{
		Type:       EventLobbyCreated,
		LobbyID:    l.ID,
		Code:       string(l.Code),
		PlayerID:   created.Storyteller.ID,
		Credential: created.Credential,
	})
	h.broadcaster.PublishViews(ctx, l.ID)
	return nil
}

func (h *CommandHandler) joinLobby(ctx context.Context, id ConnID, msg ClientMessage) error {
	a := h.attacher(id)
	joined, err := h.controller.JoinLobby(ctx, lobby.JoinRequest{
		Code:       msg.Code,
		Name:       msg.Name,
		Credential: msg.Credential,
		Connected:  true,
		Attach:     a.attach,
	})
	if err != nil {
		return err
	}
	a.detachPrevious(ctx)
	l, p := joined.Lobby, joined.Player

	h.dispatcher.SendTo(id, Event{
		Type:       EventLobbyJoined,
		LobbyID:    l.ID,
		PlayerID:   p.ID,
		Credential: joined.Credential,
	})

	if joined.Reconnected {
		h.dispatcher.Broadcast(l.ID, Event{Type: EventPlayerReconnected, PlayerID: p.ID}, id)
	} else {
		info := view.PlayerInfoFromModel(p)
		h.dispatcher.Broadcast(l.ID, Event{Type: EventPlayerJoined, Player: &info}, id)
		if joined.Assigned != "" {
			h.broadcaster.CharacterAssigned(l.ScriptID, p.ID, joined.Assigned)
		}
	}
	h.broadcaster.PublishViews(ctx, l.ID)
	return nil
}

func (h *CommandHandler) reconnect(ctx context.Context, id ConnID, msg ClientMessage) error {
	a := h.attacher(id)
	p, err := h.controller.Reconnect(ctx, msg.Credential, a.attach)
	if err != nil {
		return err
	}
	a.detachPrevious(ctx)

	h.dispatcher.Broadcast(p.LobbyID, Event{Type: EventPlayerReconnected, PlayerID: p.ID}, id)
	h.broadcaster.PublishViews(ctx, p.LobbyID)
	return nil
}

func (h *CommandHandler) selectCharacters(ctx context.Context, id ConnID, msg ClientMessage) error {
	b, err := h.requireBinding(id)
	if err != nil {
		return err
	}
	sel, err := h.controller.CommitCharacterSelection(ctx, b.LobbyID, b.PlayerID, msg.CharacterIDs)
	if err != nil {
		return err
	}
	h.broadcaster.CharactersSelected(ctx, sel)
	return nil
}

func (h *CommandHandler) startGame(ctx context.Context, id ConnID) error {
	b, err := h.requireBinding(id)
	if err != nil {
		return err
	}
	if _, err := h.controller.StartGame(ctx, b.LobbyID, b.PlayerID); err != nil {
		return err
	}
	h.broadcaster.GameStarted(ctx, b.LobbyID)
	return nil
}

func (h *CommandHandler) removePlayer(ctx context.Context, id ConnID, msg ClientMessage) error {
	b, err := h.requireBinding(id)
	if err != nil {
		return err
	}
	removed, err := h.controller.RemovePlayer(ctx, b.LobbyID, b.PlayerID, msg.PlayerID)
	if err != nil {
		return err
	}
	h.broadcaster.PlayerRemoved(ctx, b.LobbyID, removed.ID)
	return nil
}

func (h *CommandHandler) moveToken(ctx context.Context, id ConnID, msg ClientMessage) error {
	b, err := h.requireBinding(id)
	if err != nil {
		return err
	}
	pos := model.Position{X: *msg.X, Y: *msg.Y}
	if _, err := h.controller.MoveToken(ctx, b.LobbyID, b.PlayerID, msg.CharacterID, pos); err != nil {
		return err
	}
	h.broadcaster.TokenMoved(ctx, b.LobbyID)
	return nil
}

// Closed handles a transport close. A player whose last connection went
// away is marked disconnected and the rest of the lobby is told.
func (h *CommandHandler) Closed(ctx context.Context, id ConnID) {
	b, wasBound := h.registry.Unregister(id)
	if !wasBound {
		return
	}
	h.playerLeftConnection(ctx, b)
}

func (h *CommandHandler) playerLeftConnection(ctx context.Context, b Binding) {
	stillConnected := func() bool {
		return len(h.registry.LookupByPlayer(b.PlayerID)) > 0
	}
	if stillConnected() {
		return
	}
	// A reconnect may bind a new connection while we wait for the lock
	marked, err := h.controller.MarkDisconnected(ctx, b.LobbyID, b.PlayerID, stillConnected)
	if err != nil {
		if !errors.Is(err, model.ErrLobbyNotFound) {
			h.logger.Error("failed to mark player disconnected",
				slog.String("player_id", string(b.PlayerID)),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if !marked {
		return
	}
	h.dispatcher.Broadcast(b.LobbyID, Event{Type: EventPlayerDisconnected, PlayerID: b.PlayerID}, b.ConnID)
	h.broadcaster.PublishViews(ctx, b.LobbyID)
}
