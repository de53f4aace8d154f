package reaper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/grimoire/internal/dependencies/mocks"
	"github.com/mcoot/grimoire/internal/model"
	"github.com/mcoot/grimoire/internal/services/catalog"
	"github.com/mcoot/grimoire/internal/services/lobby"
	"github.com/mcoot/grimoire/internal/services/session"
	"github.com/mcoot/grimoire/internal/storage/memory"
	"github.com/mcoot/grimoire/internal/testutil"
)

type ReaperSuite struct {
	suite.Suite
	storage    *memory.Storage
	clock      *mocks.MockClock
	controller *lobby.Controller
	ctx        context.Context

	mu      sync.Mutex
	expired []model.LobbyID
}

func TestReaperSuite(t *testing.T) {
	suite.Run(t, new(ReaperSuite))
}

func (s *ReaperSuite) SetupTest() {
	s.storage = memory.New()
	cat, err := catalog.Default()
	s.Require().NoError(err)
	random := mocks.NewMockRandom()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	s.controller = lobby.NewController(
		s.storage,
		cat,
		session.New(s.storage, random),
		lobby.NewLockTable(),
		s.clock,
		random,
		lobby.DefaultConfig(),
		testutil.NopLogger(),
	)
	s.ctx = context.Background()
	s.expired = nil
}

func (s *ReaperSuite) newReaper(interval time.Duration) *Reaper {
	return New(s.storage, s.controller, s.clock, Config{
		TTL:      6 * time.Hour,
		Interval: interval,
		OnExpired: func(_ context.Context, l *model.Lobby) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.expired = append(s.expired, l.ID)
		},
	}, testutil.NopLogger())
}

func (s *ReaperSuite) create() *lobby.Created {
	created, err := s.controller.CreateLobby(s.ctx, lobby.CreateRequest{PlayerCount: 5, ScriptID: "trouble_brewing"})
	s.Require().NoError(err)
	return created
}

func (s *ReaperSuite) expiredIDs() []model.LobbyID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.LobbyID{}, s.expired...)
}

func (s *ReaperSuite) TestSweepRemovesOldLobbies() {
	old := s.create()
	_, err := s.controller.JoinLobby(s.ctx, lobby.JoinRequest{Code: string(old.Lobby.Code), Name: "Alice"})
	s.Require().NoError(err)

	s.clock.Advance(5 * time.Hour)
	fresh := s.create()
	s.clock.Advance(2 * time.Hour)

	removed, err := s.newReaper(time.Hour).Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, removed)
	s.Equal([]model.LobbyID{old.Lobby.ID}, s.expiredIDs())

	_, err = s.storage.GetLobby(s.ctx, old.Lobby.ID)
	s.ErrorIs(err, model.ErrLobbyNotFound)
	players, err := s.storage.ListPlayers(s.ctx, old.Lobby.ID)
	s.Require().NoError(err)
	s.Empty(players)

	_, err = s.sessionsResolve(old.Credential)
	s.ErrorIs(err, model.ErrInvalidSession)

	_, err = s.storage.GetLobby(s.ctx, fresh.Lobby.ID)
	s.NoError(err)
}

func (s *ReaperSuite) sessionsResolve(credential string) (*model.Player, error) {
	return session.New(s.storage, mocks.NewMockRandom()).Resolve(s.ctx, credential)
}

func (s *ReaperSuite) TestSweepNothingToDo() {
	s.create()
	removed, err := s.newReaper(time.Hour).Sweep(s.ctx)
	s.Require().NoError(err)
	s.Zero(removed)
	s.Empty(s.expiredIDs())
}

func (s *ReaperSuite) TestSweepFreesCode() {
	s.create()
	s.clock.Advance(7 * time.Hour)

	removed, err := s.newReaper(time.Hour).Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, removed)

	exists, err := s.storage.LobbyCodeExists(s.ctx, "AAAA")
	s.Require().NoError(err)
	s.False(exists)
}

type failingExpirer struct{}

func (failingExpirer) ExpireLobby(context.Context, model.LobbyID, time.Time) (bool, error) {
	return false, errors.New("boom")
}

func (s *ReaperSuite) TestSweepReportsFailures() {
	s.create()
	s.create()
	s.clock.Advance(7 * time.Hour)

	r := New(s.storage, failingExpirer{}, s.clock, Config{TTL: time.Hour}, testutil.NopLogger())
	removed, err := r.Sweep(s.ctx)
	s.Error(err)
	s.Zero(removed)
}

func (s *ReaperSuite) TestRunSweepsUntilCancelled() {
	s.create()
	s.clock.Advance(7 * time.Hour)

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() {
		done <- s.newReaper(5 * time.Millisecond).Run(ctx)
	}()

	s.Eventually(func() bool { return len(s.expiredIDs()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(time.Second):
		s.Fail("reaper did not stop")
	}
}

func (s *ReaperSuite) TestDefaults() {
	r := New(s.storage, s.controller, s.clock, Config{}, testutil.NopLogger())
	s.Equal(DefaultTTL, r.ttl)
	s.Equal(DefaultInterval, r.interval)
}
