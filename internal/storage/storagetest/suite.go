// Package storagetest holds the behavioural test suite every storage
// backend must pass.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/grimoire/internal/model"
	"github.com/mcoot/grimoire/internal/storage"
)

// Suite runs the shared storage behaviour against a backend built by NewStorage
type Suite struct {
	suite.Suite
	NewStorage func(t *testing.T) storage.Storage

	store storage.Storage
	ctx   context.Context
	now   time.Time
}

func (s *Suite) SetupTest() {
	s.store = s.NewStorage(s.T())
	s.ctx = context.Background()
	s.now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

func (s *Suite) newLobby(id, code string, createdAt time.Time) (*model.Lobby, *model.Player) {
	lobby := &model.Lobby{
		ID:          model.LobbyID(id),
		Code:        model.LobbyCode(code),
		ScriptID:    "trouble_brewing",
		Phase:       model.PhaseCharacterSelect,
		PlayerCount: 7,
		CreatedAt:   createdAt,
	}
	storyteller := &model.Player{
		ID:             model.PlayerID(id + "-st"),
		LobbyID:        lobby.ID,
		Name:           model.StorytellerName,
		IsStoryteller:  true,
		CredentialHash: "hash-" + id + "-st",
		Connected:      true,
		JoinedAt:       createdAt,
	}
	return lobby, storyteller
}

func (s *Suite) createLobby(id, code string) *model.Lobby {
	lobby, st := s.newLobby(id, code, s.now)
	s.Require().NoError(s.store.CreateLobby(s.ctx, lobby, st))
	return lobby
}

func (s *Suite) addPlayer(lobbyID model.LobbyID, id string, offset time.Duration) *model.Player {
	p := &model.Player{
		ID:             model.PlayerID(id),
		LobbyID:        lobbyID,
		Name:           "Player " + id,
		CredentialHash: "hash-" + id,
		Connected:      true,
		JoinedAt:       s.now.Add(offset),
	}
	s.Require().NoError(s.store.CreatePlayer(s.ctx, p))
	return p
}

func (s *Suite) commitTokens(lobbyID model.LobbyID, chars ...model.CharacterID) {
	tokens := make([]model.Token, len(chars))
	for i, c := range chars {
		tokens[i] = model.Token{
			LobbyID:     lobbyID,
			CharacterID: c,
			Position:    model.Position{X: float64(i * 10), Y: float64(i * 20)},
		}
	}
	s.Require().NoError(s.store.CommitSelection(s.ctx, lobbyID, model.PhaseWaitingForPlayers, chars, tokens))
}

func (s *Suite) tokenFor(lobbyID model.LobbyID, char model.CharacterID) *model.Token {
	tokens, err := s.store.ListTokens(s.ctx, lobbyID)
	s.Require().NoError(err)
	for _, t := range tokens {
		if t.CharacterID == char {
			return t
		}
	}
	s.FailNow(fmt.Sprintf("token %s not found", char))
	return nil
}

// Lobby tests

func (s *Suite) TestCreateAndGetLobby() {
	lobby := s.createLobby("lobby-1", "ABCD")

	byID, err := s.store.GetLobby(s.ctx, lobby.ID)
	s.Require().NoError(err)
	s.Equal(lobby.Code, byID.Code)
	s.Equal(lobby.ScriptID, byID.ScriptID)
	s.Equal(model.PhaseCharacterSelect, byID.Phase)
	s.Equal(7, byID.PlayerCount)
	s.Nil(byID.SelectedCharacters)
	s.True(lobby.CreatedAt.Equal(byID.CreatedAt))

	byCode, err := s.store.GetLobbyByCode(s.ctx, "ABCD")
	s.Require().NoError(err)
	s.Equal(lobby.ID, byCode.ID)
}

func (s *Suite) TestCreateLobbyStoresStoryteller() {
	lobby := s.createLobby("lobby-1", "ABCD")

	players, err := s.store.ListPlayers(s.ctx, lobby.ID)
	s.Require().NoError(err)
	s.Require().Len(players, 1)
	s.True(players[0].IsStoryteller)
	s.Equal(model.StorytellerName, players[0].Name)
	s.True(players[0].Connected)
}

func (s *Suite) TestCreateLobbyRejectsTakenCode() {
	s.createLobby("lobby-1", "ABCD")
	lobby, st := s.newLobby("lobby-2", "ABCD", s.now)

	err := s.store.CreateLobby(s.ctx, lobby, st)
	s.ErrorIs(err, model.ErrCodeTaken)

	_, err = s.store.GetLobby(s.ctx, "lobby-2")
	s.ErrorIs(err, model.ErrLobbyNotFound)
}

func (s *Suite) TestGetLobbyNotFound() {
	_, err := s.store.GetLobby(s.ctx, "missing")
	s.ErrorIs(err, model.ErrLobbyNotFound)

	_, err = s.store.GetLobbyByCode(s.ctx, "ZZZZ")
	s.ErrorIs(err, model.ErrLobbyNotFound)
}

func (s *Suite) TestLobbyCodeExists() {
	s.createLobby("lobby-1", "ABCD")

	exists, err := s.store.LobbyCodeExists(s.ctx, "ABCD")
	s.Require().NoError(err)
	s.True(exists)

	exists, err = s.store.LobbyCodeExists(s.ctx, "WXYZ")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *Suite) TestUpdateLobbyPhase() {
	lobby := s.createLobby("lobby-1", "ABCD")

	s.Require().NoError(s.store.UpdateLobbyPhase(s.ctx, lobby.ID, model.PhasePlaying))

	got, err := s.store.GetLobby(s.ctx, lobby.ID)
	s.Require().NoError(err)
	s.Equal(model.PhasePlaying, got.Phase)

	s.ErrorIs(s.store.UpdateLobbyPhase(s.ctx, "missing", model.PhasePlaying), model.ErrLobbyNotFound)
}

func (s *Suite) TestCommitSelection() {
	lobby := s.createLobby("lobby-1", "ABCD")

	s.commitTokens(lobby.ID, "imp", "chef", "empath")

	got, err := s.store.GetLobby(s.ctx, lobby.ID)
	s.Require().NoError(err)
	s.Equal(model.PhaseWaitingForPlayers, got.Phase)
	s.Equal([]model.CharacterID{"imp", "chef", "empath"}, got.SelectedCharacters)

	tokens, err := s.store.ListTokens(s.ctx, lobby.ID)
	s.Require().NoError(err)
	s.Require().Len(tokens, 3)
	s.Equal(model.CharacterID("imp"), tokens[0].CharacterID)
	s.Equal(model.CharacterID("chef"), tokens[1].CharacterID)
	s.Equal(model.CharacterID("empath"), tokens[2].CharacterID)
	s.Equal(model.Position{X: 10, Y: 20}, tokens[1].Position)
	s.False(tokens[0].HasOwner())
}

func (s *Suite) TestCommitSelectionMissingLobby() {
	err := s.store.CommitSelection(s.ctx, "missing", model.PhaseWaitingForPlayers, nil, nil)
	s.ErrorIs(err, model.ErrLobbyNotFound)
}

func (s *Suite) TestListLobbiesCreatedBefore() {
	old1, st1 := s.newLobby("old-1", "AAAA", s.now.Add(-3*time.Hour))
	old2, st2 := s.newLobby("old-2", "BBBB", s.now.Add(-7*time.Hour))
	fresh, st3 := s.newLobby("fresh", "CCCC", s.now)
	s.Require().NoError(s.store.CreateLobby(s.ctx, old1, st1))
	s.Require().NoError(s.store.CreateLobby(s.ctx, old2, st2))
	s.Require().NoError(s.store.CreateLobby(s.ctx, fresh, st3))

	got, err := s.store.ListLobbiesCreatedBefore(s.ctx, s.now.Add(-time.Hour))
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(model.LobbyID("old-2"), got[0].ID)
	s.Equal(model.LobbyID("old-1"), got[1].ID)

	got, err = s.store.ListLobbiesCreatedBefore(s.ctx, s.now.Add(-10*time.Hour))
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *Suite) TestDeleteLobbyCascades() {
	lobby := s.createLobby("lobby-1", "ABCD")
	p := s.addPlayer(lobby.ID, "p1", time.Second)
	s.commitTokens(lobby.ID, "imp", "chef")
	s.Require().NoError(s.store.AssignCharacter(s.ctx, lobby.ID, p.ID, "chef"))

	s.Require().NoError(s.store.DeleteLobby(s.ctx, lobby.ID))

	_, err := s.store.GetLobby(s.ctx, lobby.ID)
	s.ErrorIs(err, model.ErrLobbyNotFound)
	_, err = s.store.GetPlayer(s.ctx, p.ID)
	s.ErrorIs(err, model.ErrPlayerNotFound)
	_, err = s.store.GetPlayerByCredential(s.ctx, p.CredentialHash)
	s.ErrorIs(err, model.ErrPlayerNotFound)

	players, err := s.store.ListPlayers(s.ctx, lobby.ID)
	s.Require().NoError(err)
	s.Empty(players)
	tokens, err := s.store.ListTokens(s.ctx, lobby.ID)
	s.Require().NoError(err)
	s.Empty(tokens)

	exists, err := s.store.LobbyCodeExists(s.ctx, "ABCD")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *Suite) TestDeleteMissingLobbyIsNoop() {
	s.NoError(s.store.DeleteLobby(s.ctx, "missing"))
}

func (s *Suite) TestCodeReusableAfterDelete() {
	lobby := s.createLobby("lobby-1", "ABCD")
	s.Require().NoError(s.store.DeleteLobby(s.ctx, lobby.ID))

	next, st := s.newLobby("lobby-2", "ABCD", s.now)
	s.NoError(s.store.CreateLobby(s.ctx, next, st))
}

func (s *Suite) TestReturnedLobbyIsACopy() {
	lobby := s.createLobby("lobby-1", "ABCD")
	s.commitTokens(lobby.ID, "imp")

	got, err := s.store.GetLobby(s.ctx, lobby.ID)
	s.Require().NoError(err)
	got.Phase = model.PhasePlaying
	got.SelectedCharacters[0] = "chef"

	again, err := s.store.GetLobby(s.ctx, lobby.ID)
	s.Require().NoError(err)
	s.Equal(model.PhaseWaitingForPlayers, again.Phase)
	s.Equal([]model.CharacterID{"imp"}, again.SelectedCharacters)
}

// Player tests

func (s *Suite) TestCreateAndGetPlayer() {
	lobby := s.createLobby("lobby-1", "ABCD")
	p := s.addPlayer(lobby.ID, "p1", time.Second)

	got, err := s.store.GetPlayer(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(p.Name, got.Name)
	s.Equal(lobby.ID, got.LobbyID)
	s.False(got.IsStoryteller)
	s.False(got.HasCharacter())
	s.True(got.Connected)
	s.True(p.JoinedAt.Equal(got.JoinedAt))
}

func (s *Suite) TestCreatePlayerRequiresLobby() {
	err := s.store.CreatePlayer(s.ctx, &model.Player{
		ID:             "p1",
		LobbyID:        "missing",
		Name:           "Alice",
		CredentialHash: "hash-p1",
	})
	s.ErrorIs(err, model.ErrLobbyNotFound)
}

func (s *Suite) TestGetPlayerNotFound() {
	_, err := s.store.GetPlayer(s.ctx, "missing")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *Suite) TestGetPlayerByCredential() {
	lobby := s.createLobby("lobby-1", "ABCD")
	p := s.addPlayer(lobby.ID, "p1", time.Second)

	got, err := s.store.GetPlayerByCredential(s.ctx, "hash-p1")
	s.Require().NoError(err)
	s.Equal(p.ID, got.ID)

	_, err = s.store.GetPlayerByCredential(s.ctx, "hash-unknown")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *Suite) TestListPlayersInJoinOrder() {
	lobby := s.createLobby("lobby-1", "ABCD")
	s.addPlayer(lobby.ID, "p-b", 1*time.Second)
	s.addPlayer(lobby.ID, "p-a", 2*time.Second)
	s.addPlayer(lobby.ID, "p-c", 3*time.Second)

	players, err := s.store.ListPlayers(s.ctx, lobby.ID)
	s.Require().NoError(err)
	s.Require().Len(players, 4)
	s.True(players[0].IsStoryteller)
	s.Equal(model.PlayerID("p-b"), players[1].ID)
	s.Equal(model.PlayerID("p-a"), players[2].ID)
	s.Equal(model.PlayerID("p-c"), players[3].ID)
}

func (s *Suite) TestListPlayersIsScopedToLobby() {
	a := s.createLobby("lobby-a", "AAAA")
	b := s.createLobby("lobby-b", "BBBB")
	s.addPlayer(a.ID, "p1", time.Second)
	s.addPlayer(b.ID, "p2", time.Second)

	players, err := s.store.ListPlayers(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Len(players, 2)
}

func (s *Suite) TestAssignCharacter() {
	lobby := s.createLobby("lobby-1", "ABCD")
	p := s.addPlayer(lobby.ID, "p1", time.Second)
	s.commitTokens(lobby.ID, "imp", "chef")

	s.Require().NoError(s.store.AssignCharacter(s.ctx, lobby.ID, p.ID, "chef"))

	got, err := s.store.GetPlayer(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(model.CharacterID("chef"), got.CharacterID)
	s.Equal(p.ID, s.tokenFor(lobby.ID, "chef").PlayerID)
	s.False(s.tokenFor(lobby.ID, "imp").HasOwner())
}

func (s *Suite) TestAssignCharacterErrors() {
	lobby := s.createLobby("lobby-1", "ABCD")
	other := s.createLobby("lobby-2", "WXYZ")
	p := s.addPlayer(lobby.ID, "p1", time.Second)
	s.commitTokens(lobby.ID, "imp")

	s.ErrorIs(s.store.AssignCharacter(s.ctx, lobby.ID, "missing", "imp"), model.ErrPlayerNotFound)
	s.ErrorIs(s.store.AssignCharacter(s.ctx, other.ID, p.ID, "imp"), model.ErrPlayerNotFound)
	s.ErrorIs(s.store.AssignCharacter(s.ctx, lobby.ID, p.ID, "chef"), model.ErrTokenNotFound)
}

func (s *Suite) TestSetPlayerConnected() {
	lobby := s.createLobby("lobby-1", "ABCD")
	p := s.addPlayer(lobby.ID, "p1", time.Second)

	s.Require().NoError(s.store.SetPlayerConnected(s.ctx, p.ID, false))
	got, err := s.store.GetPlayer(s.ctx, p.ID)
	s.Require().NoError(err)
	s.False(got.Connected)

	s.Require().NoError(s.store.SetPlayerConnected(s.ctx, p.ID, true))
	got, err = s.store.GetPlayer(s.ctx, p.ID)
	s.Require().NoError(err)
	s.True(got.Connected)

	s.ErrorIs(s.store.SetPlayerConnected(s.ctx, "missing", true), model.ErrPlayerNotFound)
}

func (s *Suite) TestDeletePlayerClearsTokenOwnership() {
	lobby := s.createLobby("lobby-1", "ABCD")
	p := s.addPlayer(lobby.ID, "p1", time.Second)
	s.commitTokens(lobby.ID, "imp", "chef")
	s.Require().NoError(s.store.AssignCharacter(s.ctx, lobby.ID, p.ID, "chef"))

	s.Require().NoError(s.store.DeletePlayer(s.ctx, p.ID))

	_, err := s.store.GetPlayer(s.ctx, p.ID)
	s.ErrorIs(err, model.ErrPlayerNotFound)
	_, err = s.store.GetPlayerByCredential(s.ctx, p.CredentialHash)
	s.ErrorIs(err, model.ErrPlayerNotFound)

	tokens, err := s.store.ListTokens(s.ctx, lobby.ID)
	s.Require().NoError(err)
	s.Len(tokens, 2)
	s.False(s.tokenFor(lobby.ID, "chef").HasOwner())

	players, err := s.store.ListPlayers(s.ctx, lobby.ID)
	s.Require().NoError(err)
	s.Len(players, 1)
}

// Token tests

func (s *Suite) TestSetTokenPosition() {
	lobby := s.createLobby("lobby-1", "ABCD")
	s.commitTokens(lobby.ID, "imp", "chef")

	s.Require().NoError(s.store.SetTokenPosition(s.ctx, lobby.ID, "chef", model.Position{X: 123.5, Y: 42}))
	s.Equal(model.Position{X: 123.5, Y: 42}, s.tokenFor(lobby.ID, "chef").Position)

	err := s.store.SetTokenPosition(s.ctx, lobby.ID, "baron", model.Position{})
	s.ErrorIs(err, model.ErrTokenNotFound)
}

func (s *Suite) TestListTokensEmptyBeforeSelection() {
	lobby := s.createLobby("lobby-1", "ABCD")

	tokens, err := s.store.ListTokens(s.ctx, lobby.ID)
	s.Require().NoError(err)
	s.Empty(tokens)
}
