package model

// Position is a 2D point on the grimoire canvas
type Position struct {
	X float64
	Y float64
}

// Token is the storyteller's marker for one in-play character.
// It is unique per (LobbyID, CharacterID).
type Token struct {
	LobbyID     LobbyID
	CharacterID CharacterID
	PlayerID    PlayerID // empty when unowned
	Position    Position
}

// HasOwner reports whether the token is linked to a player
func (t *Token) HasOwner() bool {
	return t.PlayerID != ""
}
