package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/grimoire/internal/model"
	"github.com/mcoot/grimoire/internal/services/catalog"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Error codes shared by the REST and websocket surfaces
const (
	CodeInvalidRequest          = "INVALID_REQUEST"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeNotInLobby              = "NOT_IN_LOBBY"
	CodeNotStoryteller          = "NOT_STORYTELLER"
	CodeInvalidPhase            = "INVALID_PHASE"
	CodeLobbyNotFound           = "LOBBY_NOT_FOUND"
	CodeLobbyFull               = "LOBBY_FULL"
	CodeInvalidSelection        = "INVALID_SELECTION"
	CodeInvalidSession          = "INVALID_SESSION"
	CodeCannotRemove            = "CANNOT_REMOVE"
	CodeUnknownMessage          = "UNKNOWN_MESSAGE"
	CodeInvalidMessage          = "INVALID_MESSAGE"
	CodeCodeGenerationExhausted = "CODE_GENERATION_EXHAUSTED"
	CodePlayerNotFound          = "PLAYER_NOT_FOUND"
	CodeTokenNotFound           = "TOKEN_NOT_FOUND"
	CodeUnknownScript           = "UNKNOWN_SCRIPT"
	CodeInternalError           = "INTERNAL_ERROR"

	// Terminal notices sent before the server closes a connection
	CodeRemoved      = "REMOVED"
	CodeLobbyExpired = "LOBBY_EXPIRED"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	status, apiErr := FromError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: apiErr})
}

// FromError maps an error to its HTTP status and client-facing code.
// Unrecognised errors become an opaque internal error.
func FromError(err error) (int, APIError) {
	he := toHTTPError(err)
	return he.status, he.apiError
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	// Selection and config failures carry a human-readable discrepancy
	switch {
	case errors.Is(err, model.ErrInvalidSelection):
		return &httpError{http.StatusUnprocessableEntity, APIError{CodeInvalidSelection, err.Error()}}
	case errors.Is(err, model.ErrInvalidLobbyConfig):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, err.Error()}}
	case errors.Is(err, model.ErrInvalidMessage):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidMessage, err.Error()}}
	case errors.Is(err, model.ErrCannotRemove):
		return &httpError{http.StatusConflict, APIError{CodeCannotRemove, err.Error()}}
	}

	switch {
	case errors.Is(err, model.ErrLobbyNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeLobbyNotFound, "Lobby not found"}}
	case errors.Is(err, model.ErrPlayerNotFound):
		return &httpError{http.StatusNotFound, APIError{CodePlayerNotFound, "Player not found"}}
	case errors.Is(err, model.ErrTokenNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeTokenNotFound, "Token not found"}}
	case errors.Is(err, catalog.ErrUnknownScript):
		return &httpError{http.StatusNotFound, APIError{CodeUnknownScript, "Unknown script"}}
	case errors.Is(err, model.ErrNotInLobby):
		return &httpError{http.StatusForbidden, APIError{CodeNotInLobby, "Not in this lobby"}}
	case errors.Is(err, model.ErrNotStoryteller):
		return &httpError{http.StatusForbidden, APIError{CodeNotStoryteller, "Only the storyteller can perform this action"}}
	case errors.Is(err, model.ErrInvalidPhase):
		return &httpError{http.StatusConflict, APIError{CodeInvalidPhase, "Not allowed in the current phase"}}
	case errors.Is(err, model.ErrLobbyFull):
		return &httpError{http.StatusConflict, APIError{CodeLobbyFull, "Lobby is full"}}
	case errors.Is(err, model.ErrInvalidSession):
		return &httpError{http.StatusUnauthorized, APIError{CodeInvalidSession, "Invalid or expired session"}}
	case errors.Is(err, model.ErrUnknownMessage):
		return &httpError{http.StatusBadRequest, APIError{CodeUnknownMessage, "Unknown message type"}}
	case errors.Is(err, model.ErrCodeGenerationExhausted):
		return &httpError{http.StatusServiceUnavailable, APIError{CodeCodeGenerationExhausted, "No lobby codes available"}}

	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}
