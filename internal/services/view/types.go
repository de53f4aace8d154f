package view

import (
	"github.com/mcoot/grimoire/internal/model"
	"github.com/mcoot/grimoire/internal/services/catalog"
)

// PlayerInfo is the client-safe summary of a player
type PlayerInfo struct {
	ID            model.PlayerID `json:"id"`
	Name          string         `json:"name"`
	IsStoryteller bool           `json:"isStoryteller"`
	Connected     bool           `json:"connected"`
}

// PlayerInfoFromModel converts a model.Player to PlayerInfo
func PlayerInfoFromModel(p *model.Player) PlayerInfo {
	return PlayerInfo{
		ID:            p.ID,
		Name:          p.Name,
		IsStoryteller: p.IsStoryteller,
		Connected:     p.Connected,
	}
}

// Position is a point on the storyteller's canvas
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Token is a grimoire token as the storyteller sees it
type Token struct {
	CharacterID model.CharacterID `json:"characterId"`
	PlayerID    model.PlayerID    `json:"playerId,omitempty"`
	Position    Position          `json:"position"`
}

// TokenFromModel converts a model.Token
func TokenFromModel(t *model.Token) Token {
	return Token{
		CharacterID: t.CharacterID,
		PlayerID:    t.PlayerID,
		Position:    Position{X: t.Position.X, Y: t.Position.Y},
	}
}

// Character is the public record of a character
type Character struct {
	ID              model.CharacterID     `json:"id"`
	Name            string                `json:"name"`
	Type            catalog.CharacterType `json:"type"`
	Ability         string                `json:"ability"`
	FirstNightOrder int                   `json:"firstNightOrder,omitempty"`
	OtherNightOrder int                   `json:"otherNightOrder,omitempty"`
}

// CharacterFromCatalog converts a catalog.Character
func CharacterFromCatalog(c *catalog.Character) Character {
	return Character{
		ID:              c.ID,
		Name:            c.Name,
		Type:            c.Type,
		Ability:         c.Ability,
		FirstNightOrder: c.FirstNightOrder,
		OtherNightOrder: c.OtherNightOrder,
	}
}

// StorytellerState is the full view of a lobby
type StorytellerState struct {
	LobbyID            model.LobbyID                        `json:"lobbyId"`
	Code               model.LobbyCode                      `json:"code"`
	Phase              model.Phase                          `json:"phase"`
	Script             model.ScriptID                       `json:"script"`
	PlayerCount        int                                  `json:"playerCount"`
	SelectedCharacters []model.CharacterID                  `json:"selectedCharacters"`
	Players            []PlayerInfo                         `json:"players"`
	Tokens             []Token                              `json:"tokens"`
	Assignments        map[model.PlayerID]model.CharacterID `json:"characterAssignments"`
	NightOrder         catalog.NightOrder                   `json:"nightOrder"`
}

// PlayerState is the restricted view of a lobby for one player. It never
// carries other players' identities or assignments.
type PlayerState struct {
	LobbyID           model.LobbyID   `json:"lobbyId"`
	Code              model.LobbyCode `json:"code"`
	Phase             model.Phase     `json:"phase"`
	PlayerID          model.PlayerID  `json:"playerId"`
	PlayerName        string          `json:"playerName"`
	AssignedCharacter *Character      `json:"assignedCharacter,omitempty"`
}
