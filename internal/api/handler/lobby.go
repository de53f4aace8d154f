package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/grimoire/internal/api/apierr"
	"github.com/mcoot/grimoire/internal/api/middleware"
	"github.com/mcoot/grimoire/internal/api/request"
	"github.com/mcoot/grimoire/internal/api/response"
	"github.com/mcoot/grimoire/internal/model"
	"github.com/mcoot/grimoire/internal/services/lobby"
	"github.com/mcoot/grimoire/internal/services/view"
)

// Projector builds the views returned to REST callers
type Projector interface {
	FullView(ctx context.Context, lobbyID model.LobbyID) (*view.StorytellerState, error)
	RestrictedView(ctx context.Context, playerID model.PlayerID) (*view.PlayerState, error)
}

// Notifier pushes the outcome of a REST mutation to live connections
type Notifier interface {
	CharactersSelected(ctx context.Context, sel *lobby.Selection)
	GameStarted(ctx context.Context, lobbyID model.LobbyID)
	PlayerRemoved(ctx context.Context, lobbyID model.LobbyID, playerID model.PlayerID)
	TokenMoved(ctx context.Context, lobbyID model.LobbyID)
}

// LobbyHandler handles lobby-related endpoints. Every mutation goes through
// the lobby controller, exactly as the websocket commands do.
type LobbyHandler struct {
	controller *lobby.Controller
	projector  Projector
	notifier   Notifier
}

// NewLobbyHandler creates a new lobby handler
func NewLobbyHandler(controller *lobby.Controller, projector Projector, notifier Notifier) *LobbyHandler {
	return &LobbyHandler{
		controller: controller,
		projector:  projector,
		notifier:   notifier,
	}
}

// Create handles POST /api/v1/lobbies
func (h *LobbyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateLobbyRequest
	if err := request.Decode(r, &req); err != nil {
		apierr.WriteError(w, err)
		return
	}

	created, err := h.controller.CreateLobby(r.Context(), lobby.CreateRequest{
		PlayerCount: req.PlayerCount,
		ScriptID:    req.ScriptID,
	})
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.LobbyCreatedFromResult(created))
}

// Get handles GET /api/v1/lobbies/{code}. The storyteller sees the full
// view, anyone else in the lobby their restricted view.
func (h *LobbyHandler) Get(w http.ResponseWriter, r *http.Request) {
	l, player, err := h.memberLobby(r)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	if player.IsStoryteller {
		h.writeFullView(w, r, l.ID)
		return
	}

	state, err := h.projector.RestrictedView(r.Context(), player.ID)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.PlayerView(state))
}

// SelectCharacters handles POST /api/v1/lobbies/{code}/characters
func (h *LobbyHandler) SelectCharacters(w http.ResponseWriter, r *http.Request) {
	l, player, err := h.memberLobby(r)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	var req request.SelectCharactersRequest
	if err := request.Decode(r, &req); err != nil {
		apierr.WriteError(w, err)
		return
	}

	sel, err := h.controller.CommitCharacterSelection(r.Context(), l.ID, player.ID, req.CharacterIDs)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	h.notifier.CharactersSelected(r.Context(), sel)

	h.writeFullView(w, r, l.ID)
}

// Start handles POST /api/v1/lobbies/{code}/start
func (h *LobbyHandler) Start(w http.ResponseWriter, r *http.Request) {
	l, player, err := h.memberLobby(r)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	if _, err := h.controller.StartGame(r.Context(), l.ID, player.ID); err != nil {
		apierr.WriteError(w, err)
		return
	}
	h.notifier.GameStarted(r.Context(), l.ID)

	h.writeFullView(w, r, l.ID)
}

// RemovePlayer handles DELETE /api/v1/lobbies/{code}/players/{playerId}
func (h *LobbyHandler) RemovePlayer(w http.ResponseWriter, r *http.Request) {
	l, player, err := h.memberLobby(r)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	target := model.PlayerID(mux.Vars(r)["playerId"])

	removed, err := h.controller.RemovePlayer(r.Context(), l.ID, player.ID, target)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	h.notifier.PlayerRemoved(r.Context(), l.ID, removed.ID)

	h.writeFullView(w, r, l.ID)
}

// MoveToken handles PATCH /api/v1/lobbies/{code}/tokens/{characterId}
func (h *LobbyHandler) MoveToken(w http.ResponseWriter, r *http.Request) {
	l, player, err := h.memberLobby(r)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	characterID := model.CharacterID(mux.Vars(r)["characterId"])

	var req request.MoveTokenRequest
	if err := request.Decode(r, &req); err != nil {
		apierr.WriteError(w, err)
		return
	}
	if req.X == nil || req.Y == nil {
		apierr.WriteError(w, apierr.NewInvalidRequestError("x and y are required"))
		return
	}

	pos := model.Position{X: *req.X, Y: *req.Y}
	if _, err := h.controller.MoveToken(r.Context(), l.ID, player.ID, characterID, pos); err != nil {
		apierr.WriteError(w, err)
		return
	}
	h.notifier.TokenMoved(r.Context(), l.ID)

	h.writeFullView(w, r, l.ID)
}

// memberLobby resolves the lobby named in the path and checks the caller
// belongs to it
func (h *LobbyHandler) memberLobby(r *http.Request) (*model.Lobby, *model.Player, error) {
	player := middleware.MustGetPlayer(r.Context())

	l, err := h.controller.GetLobbyByCode(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		return nil, nil, err
	}
	if player.LobbyID != l.ID {
		return nil, nil, model.ErrNotInLobby
	}
	return l, player, nil
}

func (h *LobbyHandler) writeFullView(w http.ResponseWriter, r *http.Request, lobbyID model.LobbyID) {
	state, err := h.projector.FullView(r.Context(), lobbyID)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.StorytellerView(state))
}
