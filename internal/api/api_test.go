package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/grimoire/internal/api/apierr"
	"github.com/mcoot/grimoire/internal/api/response"
	"github.com/mcoot/grimoire/internal/factory"
	"github.com/mcoot/grimoire/internal/model"
	"github.com/mcoot/grimoire/internal/realtime"
	"github.com/mcoot/grimoire/internal/services/lobby"
	"github.com/mcoot/grimoire/internal/services/view"
)

var sevenCharacters = []model.CharacterID{
	"washerwoman", "librarian", "investigator", "chef", "empath", "poisoner", "imp",
}

// testServer bundles a test app with its router
type testServer struct {
	handler http.Handler
	app     *factory.TestApp
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	app := factory.NewTestApp()
	return &testServer{handler: app.Router(), app: app}
}

func (ts *testServer) request(method, path string, body any, credential string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

// createLobby creates a lobby over REST and returns the response
func (ts *testServer) createLobby(t *testing.T, playerCount int) response.LobbyCreated {
	t.Helper()
	rr := ts.request(http.MethodPost, "/api/v1/lobbies", map[string]any{
		"playerCount": playerCount,
		"scriptId":    "trouble_brewing",
	}, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp response.LobbyCreated
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

// join adds a player through the controller; there is no REST join
func (ts *testServer) join(t *testing.T, code model.LobbyCode, name string) *lobby.Joined {
	t.Helper()
	joined, err := ts.app.LobbyController.JoinLobby(context.Background(), lobby.JoinRequest{Code: string(code), Name: name})
	require.NoError(t, err)
	return joined
}

func (ts *testServer) selectCharacters(t *testing.T, created response.LobbyCreated) {
	t.Helper()
	rr := ts.request(http.MethodPost, "/api/v1/lobbies/"+string(created.Code)+"/characters",
		map[string]any{"characterIds": sevenCharacters}, created.Credential)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

type storytellerResponse struct {
	Role  string                `json:"role"`
	State view.StorytellerState `json:"state"`
}

type playerResponse struct {
	Role  string           `json:"role"`
	State view.PlayerState `json:"state"`
}

func decodeStoryteller(t *testing.T, rr *httptest.ResponseRecorder) storytellerResponse {
	t.Helper()
	var resp storytellerResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, response.RoleStoryteller, resp.Role)
	return resp
}

func assertError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) apierr.APIError {
	t.Helper()
	assert.Equal(t, status, rr.Code, rr.Body.String())
	var resp apierr.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, code, resp.Error.Code)
	return resp.Error
}

// recorder is a realtime.Sender standing in for a websocket client
type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) Send(ev realtime.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Close() {}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ok")
}

func TestCreateLobby(t *testing.T) {
	ts := newTestServer(t)

	created := ts.createLobby(t, 7)

	assert.NotEmpty(t, created.LobbyID)
	assert.Len(t, string(created.Code), 4)
	assert.NotEmpty(t, created.PlayerID)
	assert.NotEmpty(t, created.Credential)

	p, err := ts.app.Sessions.Resolve(context.Background(), created.Credential)
	require.NoError(t, err)
	assert.True(t, p.IsStoryteller)
	assert.False(t, p.Connected)
}

func TestCreateLobbyValidation(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/lobbies", map[string]any{"playerCount": 3, "scriptId": "trouble_brewing"}, "")
	assertError(t, rr, http.StatusBadRequest, apierr.CodeInvalidRequest)

	rr = ts.request(http.MethodPost, "/api/v1/lobbies", map[string]any{"playerCount": 7, "scriptId": "nope"}, "")
	assertError(t, rr, http.StatusBadRequest, apierr.CodeInvalidRequest)

	rr = ts.request(http.MethodPost, "/api/v1/lobbies", nil, "")
	assertError(t, rr, http.StatusBadRequest, apierr.CodeInvalidRequest)

	rr = ts.request(http.MethodPost, "/api/v1/lobbies", map[string]any{"playerCount": 7, "scriptId": "trouble_brewing", "extra": 1}, "")
	assertError(t, rr, http.StatusBadRequest, apierr.CodeInvalidRequest)
}

func TestGetLobbyRequiresCredential(t *testing.T) {
	ts := newTestServer(t)
	created := ts.createLobby(t, 7)
	path := "/api/v1/lobbies/" + string(created.Code)

	rr := ts.request(http.MethodGet, path, nil, "")
	assertError(t, rr, http.StatusUnauthorized, apierr.CodeUnauthorized)

	rr = ts.request(http.MethodGet, path, nil, "not-a-credential")
	assertError(t, rr, http.StatusUnauthorized, apierr.CodeInvalidSession)
}

func TestGetLobbyAsStoryteller(t *testing.T) {
	ts := newTestServer(t)
	created := ts.createLobby(t, 7)
	ts.join(t, created.Code, "Alice")

	rr := ts.request(http.MethodGet, "/api/v1/lobbies/"+strings.ToLower(string(created.Code)), nil, created.Credential)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	resp := decodeStoryteller(t, rr)
	assert.Equal(t, created.LobbyID, resp.State.LobbyID)
	assert.Equal(t, model.PhaseCharacterSelect, resp.State.Phase)
	assert.Len(t, resp.State.Players, 2)
}

func TestGetLobbyAsPlayer(t *testing.T) {
	ts := newTestServer(t)
	created := ts.createLobby(t, 7)
	alice := ts.join(t, created.Code, "Alice")
	ts.join(t, created.Code, "Bob")

	rr := ts.request(http.MethodGet, "/api/v1/lobbies/"+string(created.Code), nil, alice.Credential)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp playerResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, response.RolePlayer, resp.Role)
	assert.Equal(t, alice.Player.ID, resp.State.PlayerID)
	assert.Equal(t, "Alice", resp.State.PlayerName)
	assert.Nil(t, resp.State.AssignedCharacter)
	assert.NotContains(t, rr.Body.String(), "Bob")
}

func TestGetOtherLobby(t *testing.T) {
	ts := newTestServer(t)
	first := ts.createLobby(t, 7)
	second := ts.createLobby(t, 7)

	rr := ts.request(http.MethodGet, "/api/v1/lobbies/"+string(second.Code), nil, first.Credential)
	assertError(t, rr, http.StatusForbidden, apierr.CodeNotInLobby)

	rr = ts.request(http.MethodGet, "/api/v1/lobbies/ZZZZ", nil, first.Credential)
	assertError(t, rr, http.StatusNotFound, apierr.CodeLobbyNotFound)
}

func TestSelectCharacters(t *testing.T) {
	ts := newTestServer(t)
	created := ts.createLobby(t, 7)
	alice := ts.join(t, created.Code, "Alice")

	rr := ts.request(http.MethodPost, "/api/v1/lobbies/"+string(created.Code)+"/characters",
		map[string]any{"characterIds": sevenCharacters}, created.Credential)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decodeStoryteller(t, rr)
	assert.Equal(t, model.PhaseWaitingForPlayers, resp.State.Phase)
	assert.Len(t, resp.State.Tokens, 7)
	assert.Contains(t, resp.State.Assignments, alice.Player.ID)
	assert.Equal(t, sevenCharacters, resp.State.SelectedCharacters)
}

func TestSelectCharactersRejected(t *testing.T) {
	ts := newTestServer(t)
	created := ts.createLobby(t, 7)
	alice := ts.join(t, created.Code, "Alice")
	path := "/api/v1/lobbies/" + string(created.Code) + "/characters"

	missingTownsfolk := []model.CharacterID{"washerwoman", "librarian", "investigator", "chef", "butler", "poisoner", "imp"}
	rr := ts.request(http.MethodPost, path, map[string]any{"characterIds": missingTownsfolk}, created.Credential)
	apiErr := assertError(t, rr, http.StatusUnprocessableEntity, apierr.CodeInvalidSelection)
	assert.Contains(t, apiErr.Message, "townsfolk")

	rr = ts.request(http.MethodPost, path, map[string]any{"characterIds": sevenCharacters}, alice.Credential)
	assertError(t, rr, http.StatusForbidden, apierr.CodeNotStoryteller)

	l, err := ts.app.LobbyController.GetLobby(context.Background(), created.LobbyID)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseCharacterSelect, l.Phase)
}

func TestStartGame(t *testing.T) {
	ts := newTestServer(t)
	created := ts.createLobby(t, 7)
	path := "/api/v1/lobbies/" + string(created.Code) + "/start"

	rr := ts.request(http.MethodPost, path, nil, created.Credential)
	assertError(t, rr, http.StatusConflict, apierr.CodeInvalidPhase)

	ts.selectCharacters(t, created)

	rr = ts.request(http.MethodPost, path, nil, created.Credential)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, model.PhasePlaying, decodeStoryteller(t, rr).State.Phase)
}

func TestMoveToken(t *testing.T) {
	ts := newTestServer(t)
	created := ts.createLobby(t, 7)
	path := "/api/v1/lobbies/" + string(created.Code) + "/tokens/imp"

	rr := ts.request(http.MethodPatch, path, map[string]any{"x": 10, "y": 20}, created.Credential)
	assertError(t, rr, http.StatusNotFound, apierr.CodeTokenNotFound)

	ts.selectCharacters(t, created)

	rr = ts.request(http.MethodPatch, path, map[string]any{"x": 120, "y": 900}, created.Credential)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var imp *view.Token
	for _, tok := range decodeStoryteller(t, rr).State.Tokens {
		if tok.CharacterID == "imp" {
			imp = &tok
		}
	}
	require.NotNil(t, imp)
	assert.Equal(t, view.Position{X: 120, Y: 500}, imp.Position)

	rr = ts.request(http.MethodPatch, path, map[string]any{"x": 120}, created.Credential)
	assertError(t, rr, http.StatusBadRequest, apierr.CodeInvalidRequest)
}

func TestRemovePlayer(t *testing.T) {
	ts := newTestServer(t)
	created := ts.createLobby(t, 7)
	alice := ts.join(t, created.Code, "Alice")
	base := "/api/v1/lobbies/" + string(created.Code) + "/players/"

	rr := ts.request(http.MethodDelete, base+string(created.PlayerID), nil, created.Credential)
	assertError(t, rr, http.StatusConflict, apierr.CodeCannotRemove)

	rr = ts.request(http.MethodDelete, base+string(alice.Player.ID), nil, created.Credential)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Len(t, decodeStoryteller(t, rr).State.Players, 1)

	rr = ts.request(http.MethodGet, "/api/v1/lobbies/"+string(created.Code), nil, alice.Credential)
	assertError(t, rr, http.StatusUnauthorized, apierr.CodeInvalidSession)
}

func TestMutationsReachLiveConnections(t *testing.T) {
	ts := newTestServer(t)
	created := ts.createLobby(t, 7)
	alice := ts.join(t, created.Code, "Alice")

	storyteller, player := &recorder{}, &recorder{}
	ts.app.Registry.Register("st", storyteller)
	ts.app.Registry.Bind("st", created.PlayerID, created.LobbyID)
	ts.app.Registry.Register("alice", player)
	ts.app.Registry.Bind("alice", alice.Player.ID, created.LobbyID)

	ts.selectCharacters(t, created)

	assert.Equal(t, []string{realtime.EventCharactersSelected, realtime.EventGameState}, storyteller.types())
	assert.Equal(t, []string{
		realtime.EventCharactersSelected,
		realtime.EventCharacterAssigned,
		realtime.EventPlayerGameState,
	}, player.types())
}

func TestScripts(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/scripts", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []response.ScriptSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.NotEmpty(t, list)
	assert.Equal(t, model.ScriptID("trouble_brewing"), list[0].ID)

	rr = ts.request(http.MethodGet, "/api/v1/scripts/trouble_brewing", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var script response.Script
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &script))
	assert.Equal(t, 5, script.Compositions["7"].Townsfolk)
	assert.Equal(t, 1, script.Compositions["7"].Demons)
	assert.NotEmpty(t, script.Characters)

	rr = ts.request(http.MethodGet, "/api/v1/scripts/nope", nil, "")
	assertError(t, rr, http.StatusNotFound, apierr.CodeUnknownScript)
}

func TestWebSocketRoute(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var ev struct {
		Type         string `json:"type"`
		ConnectionID string `json:"connectionId"`
	}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, realtime.EventConnected, ev.Type)
	assert.NotEmpty(t, ev.ConnectionID)
}
