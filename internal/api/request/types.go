package request

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mcoot/grimoire/internal/api/apierr"
	"github.com/mcoot/grimoire/internal/model"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 64 << 10

// CreateLobbyRequest is the request body for creating a lobby
type CreateLobbyRequest struct {
	PlayerCount int            `json:"playerCount"`
	ScriptID    model.ScriptID `json:"scriptId"`
}

// SelectCharactersRequest is the request body for committing a selection
type SelectCharactersRequest struct {
	CharacterIDs []model.CharacterID `json:"characterIds"`
}

// MoveTokenRequest is the request body for repositioning a token
type MoveTokenRequest struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// Decode reads a JSON body into dst. Invalid or empty bodies become an
// INVALID_REQUEST error.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apierr.NewInvalidRequestError("request body is required")
		}
		return apierr.NewInvalidRequestError("invalid request body: " + err.Error())
	}
	return nil
}
