package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/grimoire/internal/api/handler"
	"github.com/mcoot/grimoire/internal/api/middleware"
	"github.com/mcoot/grimoire/internal/api/response"
	"github.com/mcoot/grimoire/internal/services/catalog"
	"github.com/mcoot/grimoire/internal/services/lobby"
	"github.com/mcoot/grimoire/internal/services/session"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger          *slog.Logger
	Sessions        *session.Service
	LobbyController *lobby.Controller
	Catalog         *catalog.Catalog
	Projector       handler.Projector
	Notifier        handler.Notifier
	// WebSocket serves GET /ws when set
	WebSocket http.Handler
}

// NewRouter creates a new router with the REST API and the websocket endpoint
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	lobbyHandler := handler.NewLobbyHandler(cfg.LobbyController, cfg.Projector, cfg.Notifier)
	scriptHandler := handler.NewScriptHandler(cfg.Catalog)

	// Create middleware
	authMiddleware := middleware.Auth(cfg.Sessions)
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	// Creating a lobby mints the credential, so it needs none
	api.HandleFunc("/lobbies", lobbyHandler.Create).Methods(http.MethodPost)

	// Lobby routes with a bearer credential
	lobbies := api.PathPrefix("/lobbies").Subrouter()
	lobbies.Use(authMiddleware)
	lobbies.HandleFunc("/{code}", lobbyHandler.Get).Methods(http.MethodGet)
	lobbies.HandleFunc("/{code}/characters", lobbyHandler.SelectCharacters).Methods(http.MethodPost)
	lobbies.HandleFunc("/{code}/start", lobbyHandler.Start).Methods(http.MethodPost)
	lobbies.HandleFunc("/{code}/players/{playerId}", lobbyHandler.RemovePlayer).Methods(http.MethodDelete)
	lobbies.HandleFunc("/{code}/tokens/{characterId}", lobbyHandler.MoveToken).Methods(http.MethodPatch)

	// Catalog routes (no auth)
	api.HandleFunc("/scripts", scriptHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/scripts/{scriptId}", scriptHandler.Get).Methods(http.MethodGet)

	// Health check endpoint (no auth)
	api.HandleFunc("/health", healthHandler).Methods(http.MethodGet)

	if cfg.WebSocket != nil {
		// Logging wraps recovery here so a panic after the upgrade sees the
		// hijacked writer
		ws := r.PathPrefix("/ws").Subrouter()
		ws.Use(loggingMiddleware)
		ws.Use(recoveryMiddleware)
		ws.Handle("", cfg.WebSocket).Methods(http.MethodGet)
	}

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, response.Health{Status: "ok"})
}
