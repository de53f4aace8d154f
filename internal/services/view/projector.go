package view

import (
	"context"

	"github.com/mcoot/grimoire/internal/model"
	"github.com/mcoot/grimoire/internal/services/catalog"
	"github.com/mcoot/grimoire/internal/services/lobby"
	"github.com/mcoot/grimoire/internal/storage"
)

// Projector builds the two views of a lobby that are sent to clients
type Projector struct {
	storage storage.Storage
	catalog *catalog.Catalog
	locks   *lobby.LockTable
}

// NewProjector creates a new Projector. The lock table must be the one the
// lobby controller uses so views never observe a half-applied mutation.
func NewProjector(storage storage.Storage, catalog *catalog.Catalog, locks *lobby.LockTable) *Projector {
	return &Projector{
		storage: storage,
		catalog: catalog,
		locks:   locks,
	}
}

// FullView returns the storyteller's view of a lobby
func (p *Projector) FullView(ctx context.Context, lobbyID model.LobbyID) (*StorytellerState, error) {
	release := p.locks.Acquire(lobbyID)
	defer release()

	l, err := p.storage.GetLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	players, err := p.storage.ListPlayers(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	tokens, err := p.storage.ListTokens(ctx, lobbyID)
	if err != nil {
		return nil, err
	}

	state := &StorytellerState{
		LobbyID:            l.ID,
		Code:               l.Code,
		Phase:              l.Phase,
		Script:             l.ScriptID,
		PlayerCount:        l.PlayerCount,
		SelectedCharacters: make([]model.CharacterID, 0, len(l.SelectedCharacters)),
		Players:            make([]PlayerInfo, 0, len(players)),
		Tokens:             make([]Token, 0, len(tokens)),
		Assignments:        make(map[model.PlayerID]model.CharacterID),
		NightOrder: catalog.NightOrder{
			FirstNight:  []model.CharacterID{},
			OtherNights: []model.CharacterID{},
		},
	}
	state.SelectedCharacters = append(state.SelectedCharacters, l.SelectedCharacters...)

	for _, pl := range players {
		state.Players = append(state.Players, PlayerInfoFromModel(pl))
		if pl.HasCharacter() {
			state.Assignments[pl.ID] = pl.CharacterID
		}
	}
	for _, t := range tokens {
		state.Tokens = append(state.Tokens, TokenFromModel(t))
	}

	if l.HasSelection() {
		order, err := p.catalog.NightOrder(l.ScriptID, l.SelectedCharacters)
		if err != nil {
			return nil, err
		}
		state.NightOrder = order
	}
	return state, nil
}

// RestrictedView returns what a single player may see of their lobby
func (p *Projector) RestrictedView(ctx context.Context, playerID model.PlayerID) (*PlayerState, error) {
	pl, err := p.storage.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	release := p.locks.Acquire(pl.LobbyID)
	defer release()

	// Re-read under the lock; the player may have been assigned or removed meanwhile
	pl, err = p.storage.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	l, err := p.storage.GetLobby(ctx, pl.LobbyID)
	if err != nil {
		return nil, err
	}

	state := &PlayerState{
		LobbyID:    l.ID,
		Code:       l.Code,
		Phase:      l.Phase,
		PlayerID:   pl.ID,
		PlayerName: pl.Name,
	}
	if pl.HasCharacter() {
		ch, err := p.catalog.Character(l.ScriptID, pl.CharacterID)
		if err != nil {
			return nil, err
		}
		c := CharacterFromCatalog(ch)
		state.AssignedCharacter = &c
	}
	return state, nil
}

// AssignedCharacter resolves a character id against the lobby's script
func (p *Projector) AssignedCharacter(scriptID model.ScriptID, id model.CharacterID) (*Character, error) {
	ch, err := p.catalog.Character(scriptID, id)
	if err != nil {
		return nil, err
	}
	c := CharacterFromCatalog(ch)
	return &c, nil
}
