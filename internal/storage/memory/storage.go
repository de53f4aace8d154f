package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mcoot/grimoire/internal/model"
	"github.com/mcoot/grimoire/internal/storage"
)

// Storage is an in-memory implementation of the storage interface.
// All reads return copies so callers cannot mutate stored records.
type Storage struct {
	mu sync.RWMutex

	lobbies         map[model.LobbyID]*model.Lobby
	codeIndex       map[model.LobbyCode]model.LobbyID
	players         map[model.PlayerID]*model.Player
	credentialIndex map[string]model.PlayerID
	lobbyPlayers    map[model.LobbyID][]model.PlayerID
	tokens          map[model.LobbyID][]*model.Token
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		lobbies:         make(map[model.LobbyID]*model.Lobby),
		codeIndex:       make(map[model.LobbyCode]model.LobbyID),
		players:         make(map[model.PlayerID]*model.Player),
		credentialIndex: make(map[string]model.PlayerID),
		lobbyPlayers:    make(map[model.LobbyID][]model.PlayerID),
		tokens:          make(map[model.LobbyID][]*model.Token),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func copyPlayer(p *model.Player) *model.Player {
	c := *p
	return &c
}

func copyToken(t *model.Token) *model.Token {
	c := *t
	return &c
}

// Lobby operations

func (s *Storage) CreateLobby(ctx context.Context, lobby *model.Lobby, storyteller *model.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.codeIndex[lobby.Code]; taken {
		return model.ErrCodeTaken
	}
	s.lobbies[lobby.ID] = lobby.Clone()
	s.codeIndex[lobby.Code] = lobby.ID
	s.insertPlayer(storyteller)
	return nil
}

func (s *Storage) GetLobby(ctx context.Context, id model.LobbyID) (*model.Lobby, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lobby, ok := s.lobbies[id]
	if !ok {
		return nil, model.ErrLobbyNotFound
	}
	return lobby.Clone(), nil
}

func (s *Storage) GetLobbyByCode(ctx context.Context, code model.LobbyCode) (*model.Lobby, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codeIndex[code]
	if !ok {
		return nil, model.ErrLobbyNotFound
	}
	return s.lobbies[id].Clone(), nil
}

func (s *Storage) LobbyCodeExists(ctx context.Context, code model.LobbyCode) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.codeIndex[code]
	return ok, nil
}

func (s *Storage) UpdateLobbyPhase(ctx context.Context, id model.LobbyID, phase model.Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lobby, ok := s.lobbies[id]
	if !ok {
		return model.ErrLobbyNotFound
	}
	lobby.Phase = phase
	return nil
}

func (s *Storage) CommitSelection(ctx context.Context, id model.LobbyID, phase model.Phase, characterIDs []model.CharacterID, tokens []model.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lobby, ok := s.lobbies[id]
	if !ok {
		return model.ErrLobbyNotFound
	}
	lobby.Phase = phase
	lobby.SelectedCharacters = append([]model.CharacterID{}, characterIDs...)
	stored := make([]*model.Token, len(tokens))
	for i := range tokens {
		stored[i] = copyToken(&tokens[i])
		stored[i].LobbyID = id
	}
	s.tokens[id] = stored
	return nil
}

func (s *Storage) ListLobbiesCreatedBefore(ctx context.Context, cutoff time.Time) ([]*model.Lobby, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Lobby
	for _, lobby := range s.lobbies {
		if lobby.CreatedAt.Before(cutoff) {
			out = append(out, lobby.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Storage) DeleteLobby(ctx context.Context, id model.LobbyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lobby, ok := s.lobbies[id]
	if !ok {
		return nil
	}
	for _, pid := range s.lobbyPlayers[id] {
		if p, ok := s.players[pid]; ok {
			delete(s.credentialIndex, p.CredentialHash)
		}
		delete(s.players, pid)
	}
	delete(s.lobbyPlayers, id)
	delete(s.tokens, id)
	delete(s.codeIndex, lobby.Code)
	delete(s.lobbies, id)
	return nil
}

// Player operations

func (s *Storage) insertPlayer(p *model.Player) {
	s.players[p.ID] = copyPlayer(p)
	s.credentialIndex[p.CredentialHash] = p.ID
	s.lobbyPlayers[p.LobbyID] = append(s.lobbyPlayers[p.LobbyID], p.ID)
}

func (s *Storage) CreatePlayer(ctx context.Context, player *model.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lobbies[player.LobbyID]; !ok {
		return model.ErrLobbyNotFound
	}
	s.insertPlayer(player)
	return nil
}

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	return copyPlayer(p), nil
}

func (s *Storage) GetPlayerByCredential(ctx context.Context, credentialHash string) (*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.credentialIndex[credentialHash]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	return copyPlayer(s.players[id]), nil
}

func (s *Storage) ListPlayers(ctx context.Context, lobbyID model.LobbyID) ([]*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.lobbyPlayers[lobbyID]
	out := make([]*model.Player, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyPlayer(s.players[id]))
	}
	return out, nil
}

func (s *Storage) AssignCharacter(ctx context.Context, lobbyID model.LobbyID, playerID model.PlayerID, characterID model.CharacterID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok || p.LobbyID != lobbyID {
		return model.ErrPlayerNotFound
	}
	var target *model.Token
	for _, t := range s.tokens[lobbyID] {
		if t.CharacterID == characterID {
			target = t
		}
	}
	if target == nil {
		return model.ErrTokenNotFound
	}
	s.clearTokenOwner(lobbyID, playerID)
	p.CharacterID = characterID
	target.PlayerID = playerID
	return nil
}

func (s *Storage) SetPlayerConnected(ctx context.Context, id model.PlayerID, connected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return model.ErrPlayerNotFound
	}
	p.Connected = connected
	return nil
}

func (s *Storage) DeletePlayer(ctx context.Context, id model.PlayerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return nil
	}
	s.clearTokenOwner(p.LobbyID, id)
	ids := s.lobbyPlayers[p.LobbyID]
	for i, pid := range ids {
		if pid == id {
			s.lobbyPlayers[p.LobbyID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	delete(s.credentialIndex, p.CredentialHash)
	delete(s.players, id)
	return nil
}

func (s *Storage) clearTokenOwner(lobbyID model.LobbyID, playerID model.PlayerID) {
	for _, t := range s.tokens[lobbyID] {
		if t.PlayerID == playerID {
			t.PlayerID = ""
		}
	}
}

// Token operations

func (s *Storage) ListTokens(ctx context.Context, lobbyID model.LobbyID) ([]*model.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens := s.tokens[lobbyID]
	out := make([]*model.Token, len(tokens))
	for i, t := range tokens {
		out[i] = copyToken(t)
	}
	return out, nil
}

func (s *Storage) SetTokenPosition(ctx context.Context, lobbyID model.LobbyID, characterID model.CharacterID, pos model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens[lobbyID] {
		if t.CharacterID == characterID {
			t.Position = pos
			return nil
		}
	}
	return model.ErrTokenNotFound
}
