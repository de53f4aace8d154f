package realtime

import (
	"log/slog"

	"github.com/mcoot/grimoire/internal/model"
)

// Dispatcher delivers events to connections in the registry. Delivery is
// best effort: a failed send is logged and never blocks other recipients.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   logger.With(slog.String("component", "dispatcher")),
	}
}

// SendTo delivers an event to a single connection
func (d *Dispatcher) SendTo(id ConnID, ev Event) bool {
	sender, ok := d.registry.Sender(id)
	if !ok {
		return false
	}
	if err := sender.Send(ev); err != nil {
		d.logger.Warn("event dropped",
			slog.String("conn_id", string(id)),
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// SendToPlayer delivers an event to every connection bound to a player
func (d *Dispatcher) SendToPlayer(playerID model.PlayerID, ev Event) int {
	sent := 0
	for _, id := range d.registry.LookupByPlayer(playerID) {
		if d.SendTo(id, ev) {
			sent++
		}
	}
	return sent
}

// Broadcast delivers an event to every connection bound to a lobby except
// the excluded one, which may be empty
func (d *Dispatcher) Broadcast(lobbyID model.LobbyID, ev Event, exclude ConnID) int {
	sent, dropped := 0, 0
	for _, b := range d.registry.LookupByLobby(lobbyID) {
		if b.ConnID == exclude {
			continue
		}
		if d.SendTo(b.ConnID, ev) {
			sent++
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		d.logger.Warn("broadcast partial failure",
			slog.String("lobby_id", string(lobbyID)),
			slog.String("type", ev.Type),
			slog.Int("sent", sent),
			slog.Int("dropped", dropped),
		)
	}
	return sent
}

// DisconnectPlayer sends a final event to each of the player's connections,
// closes them and drops them from the registry
func (d *Dispatcher) DisconnectPlayer(playerID model.PlayerID, final Event) int {
	ids := d.registry.LookupByPlayer(playerID)
	for _, id := range ids {
		d.disconnect(id, final)
	}
	return len(ids)
}

// DisconnectLobby does the same for every connection bound to a lobby
func (d *Dispatcher) DisconnectLobby(lobbyID model.LobbyID, final Event) int {
	bindings := d.registry.LookupByLobby(lobbyID)
	for _, b := range bindings {
		d.disconnect(b.ConnID, final)
	}
	if len(bindings) > 0 {
		d.logger.Info("lobby connections closed",
			slog.String("lobby_id", string(lobbyID)),
			slog.Int("count", len(bindings)),
		)
	}
	return len(bindings)
}

func (d *Dispatcher) disconnect(id ConnID, final Event) {
	sender, ok := d.registry.Sender(id)
	if !ok {
		return
	}
	// Drop the entry first so the transport's close path sees an unknown connection
	d.registry.Unregister(id)
	if err := sender.Send(final); err != nil {
		d.logger.Warn("final event dropped",
			slog.String("conn_id", string(id)),
			slog.String("error", err.Error()),
		)
	}
	sender.Close()
}

// CloseAll closes every live connection. Entries stay registered so each
// transport's close path still marks its player disconnected.
func (d *Dispatcher) CloseAll() int {
	senders := d.registry.Senders()
	for _, sender := range senders {
		sender.Close()
	}
	return len(senders)
}
