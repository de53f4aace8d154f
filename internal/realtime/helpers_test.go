package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/mcoot/grimoire/internal/model"
	"github.com/mcoot/grimoire/internal/storage/memory"
)

// hookedStorage calls back after player writes. The controller makes
// those writes with the lobby lock held, so a callback can start work that
// has to queue behind the running command.
type hookedStorage struct {
	*memory.Storage
	afterCreatePlayer func(*model.Player)
	afterSetConnected func(model.PlayerID, bool)
}

func (h *hookedStorage) CreatePlayer(ctx context.Context, player *model.Player) error {
	if err := h.Storage.CreatePlayer(ctx, player); err != nil {
		return err
	}
	if h.afterCreatePlayer != nil {
		h.afterCreatePlayer(player)
	}
	return nil
}

func (h *hookedStorage) SetPlayerConnected(ctx context.Context, id model.PlayerID, connected bool) error {
	if err := h.Storage.SetPlayerConnected(ctx, id, connected); err != nil {
		return err
	}
	if h.afterSetConnected != nil {
		h.afterSetConnected(id, connected)
	}
	return nil
}

// fakeSender records events instead of writing to a transport
type fakeSender struct {
	mu     sync.Mutex
	events []Event
	closed bool
	err    error
}

func (f *fakeSender) Send(ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.closed {
		return ErrConnectionClosed
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSender) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSender) Events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event{}, f.events...)
}

func (f *fakeSender) Types() []string {
	var out []string
	for _, ev := range f.Events() {
		out = append(out, ev.Type)
	}
	return out
}

func (f *fakeSender) OfType(t string) []Event {
	var out []Event
	for _, ev := range f.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeSender) Last() Event {
	events := f.Events()
	if len(events) == 0 {
		return Event{}
	}
	return events[len(events)-1]
}

func (f *fakeSender) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
}

func (f *fakeSender) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

var errBroken = errors.New("broken pipe")
