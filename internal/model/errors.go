package model

import "errors"

// Common errors used across the application
var (
	// Session errors
	ErrInvalidSession = errors.New("session not found")
	ErrNotInLobby     = errors.New("connection is not bound to a lobby")

	// Lobby errors
	ErrLobbyNotFound           = errors.New("lobby not found")
	ErrLobbyFull               = errors.New("lobby is full")
	ErrNotStoryteller          = errors.New("only the storyteller can do that")
	ErrInvalidPhase            = errors.New("action not allowed in the current phase")
	ErrInvalidLobbyConfig      = errors.New("invalid lobby configuration")
	ErrCodeTaken               = errors.New("lobby code already in use")
	ErrCodeGenerationExhausted = errors.New("could not generate a free lobby code")

	// Selection errors
	ErrInvalidSelection = errors.New("invalid character selection")

	// Player errors
	ErrPlayerNotFound = errors.New("player not found")
	ErrCannotRemove   = errors.New("player cannot be removed")

	// Token errors
	ErrTokenNotFound = errors.New("token not found")

	// Protocol errors
	ErrUnknownMessage = errors.New("unknown message type")
	ErrInvalidMessage = errors.New("invalid message")
)
