package catalog

import (
	"github.com/mcoot/grimoire/internal/model"
)

// CharacterType is the team category a character belongs to
type CharacterType string

const (
	Townsfolk CharacterType = "townsfolk"
	Outsider  CharacterType = "outsider"
	Minion    CharacterType = "minion"
	Demon     CharacterType = "demon"
)

// CharacterTypes lists every category in display order
var CharacterTypes = []CharacterType{Townsfolk, Outsider, Minion, Demon}

// Composition is a count of characters per type. It doubles as a signed
// delta when attached to a character that changes the setup.
type Composition struct {
	Townsfolk int `json:"townsfolk"`
	Outsiders int `json:"outsiders"`
	Minions   int `json:"minions"`
	Demons    int `json:"demons"`
}

// Count returns the number of characters of the given type
func (c Composition) Count(t CharacterType) int {
	switch t {
	case Townsfolk:
		return c.Townsfolk
	case Outsider:
		return c.Outsiders
	case Minion:
		return c.Minions
	case Demon:
		return c.Demons
	}
	return 0
}

// Add returns c shifted by delta, clamping each category at zero
func (c Composition) Add(delta Composition) Composition {
	return Composition{
		Townsfolk: max(c.Townsfolk+delta.Townsfolk, 0),
		Outsiders: max(c.Outsiders+delta.Outsiders, 0),
		Minions:   max(c.Minions+delta.Minions, 0),
		Demons:    max(c.Demons+delta.Demons, 0),
	}
}

// Total returns the number of characters across all types
func (c Composition) Total() int {
	return c.Townsfolk + c.Outsiders + c.Minions + c.Demons
}

func (c *Composition) increment(t CharacterType) {
	switch t {
	case Townsfolk:
		c.Townsfolk++
	case Outsider:
		c.Outsiders++
	case Minion:
		c.Minions++
	case Demon:
		c.Demons++
	}
}

// Reminder is a helper marker the storyteller can place next to a token
type Reminder struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	AlwaysAvailable bool   `json:"alwaysAvailable,omitempty"`
}

// Character is a single character definition within a script
type Character struct {
	ID      model.CharacterID `json:"id"`
	Name    string            `json:"name"`
	Type    CharacterType     `json:"type"`
	Ability string            `json:"ability"`

	// Night order positions; zero means the character does not wake
	FirstNightOrder int `json:"firstNightOrder,omitempty"`
	OtherNightOrder int `json:"otherNightOrder,omitempty"`

	// CompositionDelta shifts the required setup when this character is in play
	CompositionDelta *Composition `json:"compositionDelta,omitempty"`
	Reminders        []Reminder   `json:"reminders,omitempty"`
}

// Script is an ordered set of characters plus the setup table per player count
type Script struct {
	ID           model.ScriptID      `json:"id"`
	Name         string              `json:"name"`
	Characters   []Character         `json:"characters"`
	Compositions map[int]Composition `json:"compositions"`

	byID map[model.CharacterID]int
}

// Character looks up a character by id
func (s *Script) Character(id model.CharacterID) (*Character, bool) {
	i, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return &s.Characters[i], true
}

// Composition returns the base setup for a player count
func (s *Script) Composition(playerCount int) (Composition, bool) {
	c, ok := s.Compositions[playerCount]
	return c, ok
}

// CharactersOfType returns the script's characters of one type, in script order
func (s *Script) CharactersOfType(t CharacterType) []Character {
	var out []Character
	for _, c := range s.Characters {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

func (s *Script) index() {
	s.byID = make(map[model.CharacterID]int, len(s.Characters))
	for i, c := range s.Characters {
		s.byID[c.ID] = i
	}
}
