package response

import (
	"strconv"

	"github.com/mcoot/grimoire/internal/model"
	"github.com/mcoot/grimoire/internal/services/catalog"
	"github.com/mcoot/grimoire/internal/services/lobby"
	"github.com/mcoot/grimoire/internal/services/view"
)

// Roles reported alongside a lobby view
const (
	RoleStoryteller = "storyteller"
	RolePlayer      = "player"
)

// LobbyCreated is the response for lobby creation. The credential is only
// ever returned here.
type LobbyCreated struct {
	LobbyID    model.LobbyID   `json:"lobbyId"`
	Code       model.LobbyCode `json:"code"`
	PlayerID   model.PlayerID  `json:"playerId"`
	Credential string          `json:"credential"`
}

// LobbyCreatedFromResult converts a lobby.Created
func LobbyCreatedFromResult(c *lobby.Created) LobbyCreated {
	return LobbyCreated{
		LobbyID:    c.Lobby.ID,
		Code:       c.Lobby.Code,
		PlayerID:   c.Storyteller.ID,
		Credential: c.Credential,
	}
}

// LobbyView wraps the projection the caller is allowed to see
type LobbyView struct {
	Role  string `json:"role"`
	State any    `json:"state"`
}

// StorytellerView wraps a full view
func StorytellerView(s *view.StorytellerState) LobbyView {
	return LobbyView{Role: RoleStoryteller, State: s}
}

// PlayerView wraps a restricted view
func PlayerView(s *view.PlayerState) LobbyView {
	return LobbyView{Role: RolePlayer, State: s}
}

// Script describes a script and its setup table
type Script struct {
	ID         model.ScriptID   `json:"id"`
	Name       string           `json:"name"`
	Characters []view.Character `json:"characters"`
	// Compositions is keyed by player count
	Compositions map[string]catalog.Composition `json:"compositions"`
}

// ScriptFromCatalog converts a catalog.Script
func ScriptFromCatalog(s *catalog.Script) Script {
	chars := make([]view.Character, len(s.Characters))
	for i := range s.Characters {
		chars[i] = view.CharacterFromCatalog(&s.Characters[i])
	}
	comps := make(map[string]catalog.Composition, len(s.Compositions))
	for n, c := range s.Compositions {
		comps[strconv.Itoa(n)] = c
	}
	return Script{
		ID:           s.ID,
		Name:         s.Name,
		Characters:   chars,
		Compositions: comps,
	}
}

// ScriptSummary is a script entry in a listing
type ScriptSummary struct {
	ID   model.ScriptID `json:"id"`
	Name string         `json:"name"`
}

// Health is the response for the health check
type Health struct {
	Status string `json:"status"`
}
