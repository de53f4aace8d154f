package model

import (
	"strings"
	"time"
)

// LobbyID uniquely identifies a lobby
type LobbyID string

// LobbyCode is a short human-shareable identifier for joining lobbies
type LobbyCode string

// NormalizeLobbyCode upper-cases and trims a user-supplied code
func NormalizeLobbyCode(code string) LobbyCode {
	return LobbyCode(strings.ToUpper(strings.TrimSpace(code)))
}

// ScriptID identifies a character script (e.g. trouble_brewing)
type ScriptID string

// CharacterID identifies a character within a script
type CharacterID string

// Lobby is a single game session run by one storyteller
type Lobby struct {
	ID          LobbyID
	Code        LobbyCode
	ScriptID    ScriptID
	Phase       Phase
	PlayerCount int // target number of non-storyteller players

	// SelectedCharacters is nil until the storyteller commits a selection
	SelectedCharacters []CharacterID
	CreatedAt          time.Time
}

// HasSelection reports whether a character selection has been committed
func (l *Lobby) HasSelection() bool {
	return l.SelectedCharacters != nil
}

// Clone returns a deep copy of the lobby
func (l *Lobby) Clone() *Lobby {
	c := *l
	if l.SelectedCharacters != nil {
		c.SelectedCharacters = append([]CharacterID{}, l.SelectedCharacters...)
	}
	return &c
}
