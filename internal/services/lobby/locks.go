package lobby

import (
	"sync"

	"github.com/mcoot/grimoire/internal/model"
)

// LockTable hands out one mutex per lobby id. Entries are reference
// counted and dropped when the last holder or waiter releases, so the
// table only holds lobbies with work in flight.
type LockTable struct {
	mu    sync.Mutex
	locks map[model.LobbyID]*lobbyLock
}

type lobbyLock struct {
	mu   sync.Mutex
	refs int
}

// NewLockTable creates an empty LockTable
func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[model.LobbyID]*lobbyLock)}
}

// Acquire blocks until the caller holds the lobby's lock and returns the
// function that releases it. Release must be called exactly once.
func (t *LockTable) Acquire(id model.LobbyID) (release func()) {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &lobbyLock{}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			t.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(t.locks, id)
			}
			t.mu.Unlock()
		})
	}
}

// Len returns the number of lobbies with a live lock entry
func (t *LockTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
