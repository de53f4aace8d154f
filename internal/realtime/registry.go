package realtime

import (
	"sync"

	"github.com/mcoot/grimoire/internal/model"
)

// Sender is the push side of one transport connection
type Sender interface {
	// Send queues an event and must not block on a slow peer
	Send(ev Event) error
	// Close flushes queued events and closes the transport
	Close()
}

// Binding links a connection to the player and lobby it acts for
type Binding struct {
	ConnID   ConnID
	PlayerID model.PlayerID
	LobbyID  model.LobbyID
}

type entry struct {
	sender  Sender
	binding Binding
}

// Registry tracks live connections and the player each is bound to.
// It is process-local and starts empty.
type Registry struct {
	mu       sync.RWMutex
	conns    map[ConnID]*entry
	byPlayer map[model.PlayerID]map[ConnID]struct{}
	byLobby  map[model.LobbyID]map[ConnID]struct{}
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{
		conns:    make(map[ConnID]*entry),
		byPlayer: make(map[model.PlayerID]map[ConnID]struct{}),
		byLobby:  make(map[model.LobbyID]map[ConnID]struct{}),
	}
}

// Register adds an anonymous connection
func (r *Registry) Register(id ConnID, sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &entry{sender: sender, binding: Binding{ConnID: id}}
}

// Bind attaches a connection to a player, replacing any earlier binding.
// It returns the previous binding if the connection was already bound.
func (r *Registry) Bind(id ConnID, playerID model.PlayerID, lobbyID model.LobbyID) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return Binding{}, false
	}
	prev := e.binding
	wasBound := prev.PlayerID != ""
	if wasBound {
		r.unindex(prev)
	}

	e.binding = Binding{ConnID: id, PlayerID: playerID, LobbyID: lobbyID}
	addIndex(r.byPlayer, playerID, id)
	addIndex(r.byLobby, lobbyID, id)
	return prev, wasBound
}

// Lookup returns a connection's binding. The bool is false for unknown or
// anonymous connections.
func (r *Registry) Lookup(id ConnID) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || e.binding.PlayerID == "" {
		return Binding{}, false
	}
	return e.binding, true
}

// Sender returns the push handle for a connection
func (r *Registry) Sender(id ConnID) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.sender, true
}

// LookupByPlayer returns every connection bound to a player
func (r *Registry) LookupByPlayer(playerID model.PlayerID) []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return keys(r.byPlayer[playerID])
}

// LookupByLobby returns every connection bound to a lobby
func (r *Registry) LookupByLobby(lobbyID model.LobbyID) []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byLobby[lobbyID]
	out := make([]Binding, 0, len(ids))
	for id := range ids {
		out = append(out, r.conns[id].binding)
	}
	return out
}

// Unregister removes a connection and returns its binding, if it had one
func (r *Registry) Unregister(id ConnID) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return Binding{}, false
	}
	delete(r.conns, id)
	if e.binding.PlayerID == "" {
		return Binding{}, false
	}
	r.unindex(e.binding)
	return e.binding, true
}

// Senders returns the send handle of every live connection
func (r *Registry) Senders() []Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Sender, 0, len(r.conns))
	for _, e := range r.conns {
		out = append(out, e.sender)
	}
	return out
}

// Len returns the number of live connections
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) unindex(b Binding) {
	removeIndex(r.byPlayer, b.PlayerID, b.ConnID)
	removeIndex(r.byLobby, b.LobbyID, b.ConnID)
}

func addIndex[K comparable](idx map[K]map[ConnID]struct{}, key K, id ConnID) {
	set, ok := idx[key]
	if !ok {
		set = make(map[ConnID]struct{})
		idx[key] = set
	}
	set[id] = struct{}{}
}

func removeIndex[K comparable](idx map[K]map[ConnID]struct{}, key K, id ConnID) {
	set, ok := idx[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(idx, key)
	}
}

func keys(set map[ConnID]struct{}) []ConnID {
	out := make([]ConnID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
