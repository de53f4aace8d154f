package factory

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/grimoire/internal/api/apierr"
	"github.com/mcoot/grimoire/internal/config"
	"github.com/mcoot/grimoire/internal/model"
	"github.com/mcoot/grimoire/internal/realtime"
	"github.com/mcoot/grimoire/internal/services/lobby"
	"github.com/mcoot/grimoire/internal/services/reaper"
	redisstorage "github.com/mcoot/grimoire/internal/storage/redis"
	"github.com/mcoot/grimoire/internal/testutil"
)

var troubleBrewingSeven = []model.CharacterID{
	"washerwoman", "librarian", "investigator", "chef", "empath", "poisoner", "imp",
}

// recorder is a realtime.Sender that keeps everything it is sent
type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
	closed bool
}

func (r *recorder) Send(ev realtime.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *recorder) snapshot() ([]realtime.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]realtime.Event{}, r.events...), r.closed
}

type IntegrationSuite struct {
	suite.Suite
	app *TestApp
	ctx context.Context
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupTest() {
	s.app = NewTestApp()
	s.ctx = context.Background()
}

// Test: lobby lifecycle from creation to play, then expiry
func (s *IntegrationSuite) TestCompleteLobbyFlow() {
	s.app.MockRandom.QueueString("GAME")

	// Step 1: Create a lobby
	created, err := s.app.LobbyController.CreateLobby(s.ctx, lobby.CreateRequest{
		PlayerCount: 7,
		ScriptID:    "trouble_brewing",
	})
	s.Require().NoError(err)
	s.Equal(model.LobbyCode("GAME"), created.Lobby.Code)
	l := created.Lobby

	// Step 2: Two players join before the selection
	alice, err := s.app.LobbyController.JoinLobby(s.ctx, lobby.JoinRequest{Code: "game", Name: "Alice"})
	s.Require().NoError(err)
	bob, err := s.app.LobbyController.JoinLobby(s.ctx, lobby.JoinRequest{Code: "GAME", Name: "Bob"})
	s.Require().NoError(err)
	s.Empty(alice.Assigned)

	// Step 3: Commit the selection; earlier joiners get characters
	sel, err := s.app.LobbyController.CommitCharacterSelection(s.ctx, l.ID, created.Storyteller.ID, troubleBrewingSeven)
	s.Require().NoError(err)
	s.Len(sel.Tokens, 7)
	s.Len(sel.Assignments, 2)
	s.NotEqual(sel.Assignments[alice.Player.ID], sel.Assignments[bob.Player.ID])

	// Step 4: The storyteller view reflects everything
	full, err := s.app.Projector.FullView(s.ctx, l.ID)
	s.Require().NoError(err)
	s.Equal(model.PhaseWaitingForPlayers, full.Phase)
	s.Len(full.Players, 3)
	s.Len(full.Assignments, 2)

	// Step 5: A player's view only has their own character
	restricted, err := s.app.Projector.RestrictedView(s.ctx, alice.Player.ID)
	s.Require().NoError(err)
	s.Require().NotNil(restricted.AssignedCharacter)
	s.Equal(sel.Assignments[alice.Player.ID], restricted.AssignedCharacter.ID)

	// Step 6: Start
	started, err := s.app.LobbyController.StartGame(s.ctx, l.ID, created.Storyteller.ID)
	s.Require().NoError(err)
	s.Equal(model.PhasePlaying, started.Phase)

	// Step 7: The lobby expires after the TTL
	s.app.MockClock.Advance(7 * time.Hour)
	removed, err := s.app.Reaper.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, removed)

	_, err = s.app.LobbyController.GetLobby(s.ctx, l.ID)
	s.ErrorIs(err, model.ErrLobbyNotFound)
	_, err = s.app.Sessions.Resolve(s.ctx, alice.Credential)
	s.ErrorIs(err, model.ErrInvalidSession)
}

func (s *IntegrationSuite) TestReaperDisconnectsLiveConnections() {
	created, err := s.app.LobbyController.CreateLobby(s.ctx, lobby.CreateRequest{
		PlayerCount: 5,
		ScriptID:    "trouble_brewing",
	})
	s.Require().NoError(err)

	conn := &recorder{}
	s.app.Registry.Register("conn-1", conn)
	s.app.Registry.Bind("conn-1", created.Storyteller.ID, created.Lobby.ID)

	s.app.MockClock.Advance(6*time.Hour + time.Minute)
	removed, err := s.app.Reaper.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, removed)

	events, closed := conn.snapshot()
	s.True(closed)
	s.Require().Len(events, 1)
	s.Equal(realtime.EventError, events[0].Type)
	s.Equal(apierr.CodeLobbyExpired, events[0].Code)
	s.Zero(s.app.Registry.Len())
}

func (s *IntegrationSuite) TestConfiguredTTL() {
	app := NewTestAppWithConfig(Config{Reaper: reaper.Config{TTL: time.Hour}})
	_, err := app.LobbyController.CreateLobby(s.ctx, lobby.CreateRequest{PlayerCount: 5, ScriptID: "trouble_brewing"})
	s.Require().NoError(err)

	app.MockClock.Advance(30 * time.Minute)
	removed, err := app.Reaper.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Zero(removed)

	app.MockClock.Advance(31 * time.Minute)
	removed, err = app.Reaper.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, removed)
}

func (s *IntegrationSuite) TestCloseClosesConnections() {
	conn := &recorder{}
	s.app.Registry.Register("conn-1", conn)

	s.Require().NoError(s.app.Close())

	_, closed := conn.snapshot()
	s.True(closed)
}

func TestNewMemory(t *testing.T) {
	app, err := New(Config{Logger: testutil.NopLogger()})
	require.NoError(t, err)
	defer app.Close()

	assertCreatesLobby(t, app)
}

func TestNewSQLite(t *testing.T) {
	app, err := New(Config{
		StorageType: StorageTypeSQLite,
		SQLitePath:  filepath.Join(t.TempDir(), "grimoire.db"),
	})
	require.NoError(t, err)
	defer app.Close()

	assertCreatesLobby(t, app)
}

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	redisCfg := redisstorage.DefaultConfig()
	redisCfg.URL = "redis://" + mr.Addr()
	app, err := New(Config{StorageType: StorageTypeRedis, RedisConfig: &redisCfg})
	require.NoError(t, err)
	defer app.Close()

	assertCreatesLobby(t, app)
}

func TestNewRejectsBadStorage(t *testing.T) {
	_, err := New(Config{StorageType: "postgres"})
	assert.Error(t, err)

	_, err = New(Config{StorageType: StorageTypeRedis})
	assert.Error(t, err)

	_, err = New(Config{StorageType: StorageTypeSQLite})
	assert.Error(t, err)
}

func TestConfigFromEnv(t *testing.T) {
	env := config.Config{
		Storage:         config.StorageRedis,
		RedisURL:        "redis://cache:6379/1",
		SQLitePath:      "unused.db",
		LobbyTTL:        2 * time.Hour,
		ReapInterval:    10 * time.Minute,
		MaxCodeAttempts: 50,
		AllowedOrigins:  []string{"https://grimoire.example"},
	}

	cfg := ConfigFromEnv(env, testutil.NopLogger())

	assert.Equal(t, StorageTypeRedis, cfg.StorageType)
	require.NotNil(t, cfg.RedisConfig)
	assert.Equal(t, "redis://cache:6379/1", cfg.RedisConfig.URL)
	assert.Equal(t, 2*time.Hour, cfg.Reaper.TTL)
	assert.Equal(t, 10*time.Minute, cfg.Reaper.Interval)
	assert.Equal(t, 50, cfg.Lobby.MaxCodeAttempts)
	assert.Equal(t, lobby.LobbyCodeAlphabet, cfg.Lobby.CodeAlphabet)
	assert.Equal(t, []string{"https://grimoire.example"}, cfg.AllowedOrigins)
}

func assertCreatesLobby(t *testing.T, app *App) {
	t.Helper()
	ctx := context.Background()

	created, err := app.LobbyController.CreateLobby(ctx, lobby.CreateRequest{PlayerCount: 5, ScriptID: "trouble_brewing"})
	require.NoError(t, err)
	assert.Len(t, string(created.Lobby.Code), lobby.LobbyCodeLength)

	joined, err := app.LobbyController.JoinLobby(ctx, lobby.JoinRequest{Code: string(created.Lobby.Code), Name: "Alice"})
	require.NoError(t, err)

	p, err := app.Sessions.Resolve(ctx, joined.Credential)
	require.NoError(t, err)
	assert.Equal(t, joined.Player.ID, p.ID)
}
