package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mcoot/grimoire/internal/model"
)

// Selection failure kinds
var (
	ErrUnknownScript       = errors.New("unknown script")
	ErrInvalidPlayerCount  = errors.New("invalid player count")
	ErrUnknownCharacter    = errors.New("unknown character")
	ErrDuplicateCharacter  = errors.New("duplicate character")
	ErrCompositionMismatch = errors.New("composition mismatch")
)

// Mismatch describes one character type whose count is off target
type Mismatch struct {
	Type     CharacterType
	Expected int
	Actual   int
}

// SelectionError is returned when a character selection is rejected.
// It matches both model.ErrInvalidSelection and its Kind with errors.Is.
type SelectionError struct {
	Kind       error
	Message    string
	Mismatches []Mismatch
}

func (e *SelectionError) Error() string {
	return e.Message
}

func (e *SelectionError) Unwrap() []error {
	return []error{model.ErrInvalidSelection, e.Kind}
}

func selectionError(kind error, format string, args ...any) *SelectionError {
	return &SelectionError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ValidateLobby checks that a script exists and supports the player count.
// Failures wrap ErrUnknownScript or ErrInvalidPlayerCount.
func (c *Catalog) ValidateLobby(scriptID model.ScriptID, playerCount int) error {
	s, ok := c.scripts[scriptID]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownScript, scriptID)
	}
	if _, ok := s.Composition(playerCount); !ok {
		return fmt.Errorf("%w: %s has no setup for %d players", ErrInvalidPlayerCount, s.Name, playerCount)
	}
	return nil
}

// RequiredComposition returns the setup a selection must match, after
// applying the composition deltas of any selected characters
func (s *Script) RequiredComposition(playerCount int, ids []model.CharacterID) (Composition, bool) {
	target, ok := s.Composition(playerCount)
	if !ok {
		return Composition{}, false
	}
	for _, id := range ids {
		if ch, ok := s.Character(id); ok && ch.CompositionDelta != nil {
			target = target.Add(*ch.CompositionDelta)
		}
	}
	return target, true
}

// ValidateSelection checks a candidate list of character ids against the
// script's setup table for the player count
func (c *Catalog) ValidateSelection(scriptID model.ScriptID, playerCount int, ids []model.CharacterID) error {
	if err := c.ValidateLobby(scriptID, playerCount); err != nil {
		kind := ErrUnknownScript
		if errors.Is(err, ErrInvalidPlayerCount) {
			kind = ErrInvalidPlayerCount
		}
		return &SelectionError{Kind: kind, Message: err.Error()}
	}
	s := c.scripts[scriptID]

	var actual Composition
	seen := make(map[model.CharacterID]bool, len(ids))
	for _, id := range ids {
		ch, ok := s.Character(id)
		if !ok {
			return selectionError(ErrUnknownCharacter, "unknown character %q", id)
		}
		if seen[id] {
			return selectionError(ErrDuplicateCharacter, "%s selected more than once", ch.Name)
		}
		seen[id] = true
		actual.increment(ch.Type)
	}

	target, _ := s.RequiredComposition(playerCount, ids)

	var mismatches []Mismatch
	var parts []string
	for _, t := range CharacterTypes {
		want, got := target.Count(t), actual.Count(t)
		if want != got {
			mismatches = append(mismatches, Mismatch{Type: t, Expected: want, Actual: got})
			parts = append(parts, fmt.Sprintf("need %d %s, got %d", want, t, got))
		}
	}
	if len(mismatches) > 0 {
		return &SelectionError{
			Kind:       ErrCompositionMismatch,
			Message:    strings.Join(parts, "; "),
			Mismatches: mismatches,
		}
	}
	return nil
}
