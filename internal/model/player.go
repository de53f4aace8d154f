package model

import "time"

// PlayerID uniquely identifies a player across the system
type PlayerID string

// Player is a lobby participant, either the storyteller or a regular player
type Player struct {
	ID            PlayerID
	LobbyID       LobbyID
	Name          string
	IsStoryteller bool

	// CharacterID is empty until a character is assigned
	CharacterID CharacterID

	// CredentialHash is the digest of the player's session credential.
	// The credential itself is never stored.
	CredentialHash string
	Connected      bool
	JoinedAt       time.Time
}

// HasCharacter reports whether the player has been assigned a character
func (p *Player) HasCharacter() bool {
	return p.CharacterID != ""
}

// StorytellerName is the display name given to the lobby creator
const StorytellerName = "Storyteller"
