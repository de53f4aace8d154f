package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcoot/grimoire/internal/testutil"
)

func newTestDispatcher() (*Registry, *Dispatcher) {
	r := NewRegistry()
	return r, NewDispatcher(r, testutil.NopLogger())
}

func TestSendTo(t *testing.T) {
	r, d := newTestDispatcher()
	f := &fakeSender{}
	r.Register("c1", f)

	assert.True(t, d.SendTo("c1", Event{Type: EventGameStarted}))
	assert.False(t, d.SendTo("missing", Event{Type: EventGameStarted}))
	assert.Equal(t, []string{EventGameStarted}, f.Types())
}

func TestBroadcastExcludesOrigin(t *testing.T) {
	r, d := newTestDispatcher()
	a, b, c, other := &fakeSender{}, &fakeSender{}, &fakeSender{}, &fakeSender{}
	r.Register("a", a)
	r.Register("b", b)
	r.Register("c", c)
	r.Register("other", other)
	r.Bind("a", "pa", "lobby")
	r.Bind("b", "pb", "lobby")
	r.Bind("c", "pc", "lobby")
	r.Bind("other", "po", "elsewhere")

	sent := d.Broadcast("lobby", Event{Type: EventPlayerLeft, PlayerID: "pz"}, "a")
	assert.Equal(t, 2, sent)
	assert.Empty(t, a.Events())
	assert.Len(t, b.Events(), 1)
	assert.Len(t, c.Events(), 1)
	assert.Empty(t, other.Events())
}

func TestBroadcastSkipsFailingConnection(t *testing.T) {
	r, d := newTestDispatcher()
	broken := &fakeSender{err: errBroken}
	ok := &fakeSender{}
	r.Register("broken", broken)
	r.Register("ok", ok)
	r.Bind("broken", "p1", "lobby")
	r.Bind("ok", "p2", "lobby")

	sent := d.Broadcast("lobby", Event{Type: EventGameStarted}, "")
	assert.Equal(t, 1, sent)
	assert.Len(t, ok.Events(), 1)
}

func TestBroadcastIgnoresAnonymousConnections(t *testing.T) {
	r, d := newTestDispatcher()
	anon := &fakeSender{}
	r.Register("anon", anon)

	d.Broadcast("lobby", Event{Type: EventGameStarted}, "")
	assert.Empty(t, anon.Events())
}

func TestDisconnectPlayer(t *testing.T) {
	r, d := newTestDispatcher()
	first, second, bystander := &fakeSender{}, &fakeSender{}, &fakeSender{}
	r.Register("first", first)
	r.Register("second", second)
	r.Register("bystander", bystander)
	r.Bind("first", "alice", "lobby")
	r.Bind("second", "alice", "lobby")
	r.Bind("bystander", "bob", "lobby")

	n := d.DisconnectPlayer("alice", RemovedNotice())
	assert.Equal(t, 2, n)

	for _, f := range []*fakeSender{first, second} {
		assert.True(t, f.IsClosed())
		assert.Equal(t, EventError, f.Last().Type)
		assert.Equal(t, "REMOVED", f.Last().Code)
	}
	assert.False(t, bystander.IsClosed())
	assert.Empty(t, r.LookupByPlayer("alice"))
	assert.Equal(t, 1, r.Len())
}

func TestDisconnectLobby(t *testing.T) {
	r, d := newTestDispatcher()
	a, b := &fakeSender{}, &fakeSender{}
	r.Register("a", a)
	r.Register("b", b)
	r.Bind("a", "pa", "lobby")
	r.Bind("b", "pb", "lobby")

	n := d.DisconnectLobby("lobby", LobbyExpiredNotice())
	assert.Equal(t, 2, n)
	assert.Equal(t, "LOBBY_EXPIRED", a.Last().Code)
	assert.True(t, b.IsClosed())
	assert.Zero(t, r.Len())
}

func TestCloseAllKeepsEntries(t *testing.T) {
	r, d := newTestDispatcher()
	a, b := &fakeSender{}, &fakeSender{}
	r.Register("a", a)
	r.Register("b", b)
	r.Bind("a", "pa", "lobby")

	assert.Equal(t, 2, d.CloseAll())
	assert.True(t, a.IsClosed())
	assert.True(t, b.IsClosed())
	assert.Equal(t, 2, r.Len())
}
