package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/grimoire/internal/dependencies/mocks"
	"github.com/mcoot/grimoire/internal/model"
	"github.com/mcoot/grimoire/internal/services/catalog"
	"github.com/mcoot/grimoire/internal/services/lobby"
	"github.com/mcoot/grimoire/internal/services/session"
	"github.com/mcoot/grimoire/internal/services/view"
	"github.com/mcoot/grimoire/internal/storage/memory"
	"github.com/mcoot/grimoire/internal/testutil"
)

// wireEvent mirrors Event with the state left undecoded
type wireEvent struct {
	Type         string              `json:"type"`
	ConnectionID string              `json:"connectionId"`
	LobbyID      string              `json:"lobbyId"`
	PlayerID     string              `json:"playerId"`
	Credential   string              `json:"credential"`
	Code         string              `json:"code"`
	Message      string              `json:"message"`
	CharacterIDs []model.CharacterID `json:"characterIds"`
	State        json.RawMessage     `json:"state"`
}

type testServer struct {
	*httptest.Server
	registry *Registry
}

func newTestServer(t *testing.T, allowedOrigins []string) *testServer {
	t.Helper()
	storage := memory.New()
	cat, err := catalog.Default()
	require.NoError(t, err)
	random := mocks.NewMockRandom()
	locks := lobby.NewLockTable()
	logger := testutil.NopLogger()

	controller := lobby.NewController(storage, cat, session.New(storage, random), locks,
		mocks.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), random, lobby.DefaultConfig(), logger)
	registry := NewRegistry()
	dispatcher := NewDispatcher(registry, logger)
	broadcaster := NewBroadcaster(registry, dispatcher, view.NewProjector(storage, cat, locks), logger)
	commands := NewCommandHandler(controller, registry, dispatcher, broadcaster, logger)

	srv := httptest.NewServer(NewServer(registry, dispatcher, commands, random, allowedOrigins, logger))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, registry: registry}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ev := readEvent(t, conn)
	require.Equal(t, EventConnected, ev.Type)
	require.NotEmpty(t, ev.ConnectionID)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev wireEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

// readUntil reads events until one of the wanted type arrives
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) wireEvent {
	t.Helper()
	for range 20 {
		ev := readEvent(t, conn)
		if ev.Type == eventType {
			return ev
		}
	}
	t.Fatalf("no %s event", eventType)
	return wireEvent{}
}

func writeCommand(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func TestWebsocketLobbyFlow(t *testing.T) {
	srv := newTestServer(t, nil)

	st := srv.dial(t)
	writeCommand(t, st, ClientMessage{Type: CommandCreateLobby, PlayerCount: 7, ScriptID: "trouble_brewing"})
	created := readEvent(t, st)
	require.Equal(t, EventLobbyCreated, created.Type)
	require.Len(t, created.Code, 4)

	var full view.StorytellerState
	stateEv := readEvent(t, st)
	require.Equal(t, EventGameState, stateEv.Type)
	require.NoError(t, json.Unmarshal(stateEv.State, &full))
	assert.Equal(t, model.PhaseCharacterSelect, full.Phase)

	writeCommand(t, st, ClientMessage{Type: CommandSelectCharacters, CharacterIDs: sevenCharacters})
	selected := readEvent(t, st)
	assert.Equal(t, EventCharactersSelected, selected.Type)
	assert.Equal(t, sevenCharacters, selected.CharacterIDs)
	readUntil(t, st, EventGameState)

	player := srv.dial(t)
	writeCommand(t, player, ClientMessage{Type: CommandJoinLobby, Code: strings.ToLower(created.Code), Name: "Alice"})
	joined := readEvent(t, player)
	require.Equal(t, EventLobbyJoined, joined.Type)
	assert.Equal(t, created.LobbyID, joined.LobbyID)
	assert.Equal(t, EventCharacterAssigned, readEvent(t, player).Type)

	var ps view.PlayerState
	psEv := readEvent(t, player)
	require.Equal(t, EventPlayerGameState, psEv.Type)
	require.NoError(t, json.Unmarshal(psEv.State, &ps))
	require.NotNil(t, ps.AssignedCharacter)
	assert.Contains(t, sevenCharacters, ps.AssignedCharacter.ID)

	assert.Equal(t, EventPlayerJoined, readEvent(t, st).Type)
	readUntil(t, st, EventGameState)

	// Dropping the player's socket is announced to the storyteller
	require.NoError(t, player.Close())
	disconnected := readUntil(t, st, EventPlayerDisconnected)
	assert.Equal(t, joined.PlayerID, disconnected.PlayerID)

	// A fresh socket reattaches with the credential
	again := srv.dial(t)
	writeCommand(t, again, ClientMessage{Type: CommandReconnect, Credential: joined.Credential})
	reconnected := readUntil(t, st, EventPlayerReconnected)
	assert.Equal(t, joined.PlayerID, reconnected.PlayerID)

	psEv = readUntil(t, again, EventPlayerGameState)
	require.NoError(t, json.Unmarshal(psEv.State, &ps))
	assert.Equal(t, model.PlayerID(joined.PlayerID), ps.PlayerID)
}

func TestWebsocketRemovalClosesConnection(t *testing.T) {
	srv := newTestServer(t, nil)

	st := srv.dial(t)
	writeCommand(t, st, ClientMessage{Type: CommandCreateLobby, PlayerCount: 5, ScriptID: "trouble_brewing"})
	created := readEvent(t, st)
	readUntil(t, st, EventGameState)

	player := srv.dial(t)
	writeCommand(t, player, ClientMessage{Type: CommandJoinLobby, Code: created.Code, Name: "Alice"})
	joined := readEvent(t, player)
	readUntil(t, player, EventPlayerGameState)
	readUntil(t, st, EventPlayerJoined)

	writeCommand(t, st, ClientMessage{Type: CommandRemovePlayer, PlayerID: model.PlayerID(joined.PlayerID)})

	assert.Equal(t, EventPlayerLeft, readEvent(t, player).Type)
	notice := readEvent(t, player)
	assert.Equal(t, EventError, notice.Type)
	assert.Equal(t, "REMOVED", notice.Code)

	require.NoError(t, player.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := player.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "expected normal close, got %v", err)

	left := readUntil(t, st, EventPlayerLeft)
	assert.Equal(t, joined.PlayerID, left.PlayerID)
}

func TestWebsocketMalformedInput(t *testing.T) {
	srv := newTestServer(t, nil)
	conn := srv.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("garbage")))
	ev := readEvent(t, conn)
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, "INVALID_MESSAGE", ev.Code)

	writeCommand(t, conn, ClientMessage{Type: "HELLO"})
	assert.Equal(t, "UNKNOWN_MESSAGE", readEvent(t, conn).Code)
}

func TestWebsocketUnregistersOnClose(t *testing.T) {
	srv := newTestServer(t, nil)
	conn := srv.dial(t)
	require.Equal(t, 1, srv.registry.Len())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return srv.registry.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebsocketRejectsForeignOrigin(t *testing.T) {
	srv := newTestServer(t, []string{"https://grimoire.example"})
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"https://grimoire.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestOriginChecker(t *testing.T) {
	req := func(origin, host string) *http.Request {
		r := httptest.NewRequestWithContext(context.Background(), http.MethodGet, "http://"+host+"/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	anyOrigin := originChecker(nil)
	assert.True(t, anyOrigin(req("https://anything.example", "localhost:8080")))

	wildcard := originChecker([]string{"*"})
	assert.True(t, wildcard(req("https://anything.example", "localhost:8080")))

	strict := originChecker([]string{"https://grimoire.example/"})
	assert.True(t, strict(req("", "localhost:8080")))
	assert.True(t, strict(req("https://GRIMOIRE.example", "localhost:8080")))
	assert.True(t, strict(req("http://localhost:8080", "localhost:8080")))
	assert.False(t, strict(req("https://evil.example", "localhost:8080")))
}
