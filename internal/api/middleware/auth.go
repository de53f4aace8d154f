package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mcoot/grimoire/internal/api/apierr"
	"github.com/mcoot/grimoire/internal/model"
	"github.com/mcoot/grimoire/internal/services/session"
)

type contextKey string

const playerContextKey contextKey = "player"

// Auth creates middleware that resolves the bearer credential to a player
func Auth(sessions *session.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := extractCredential(r)
			if credential == "" {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			player, err := sessions.Resolve(r.Context(), credential)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), playerContextKey, player)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractCredential reads the credential from the Authorization header
func extractCredential(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// GetPlayer returns the authenticated player from the request context
func GetPlayer(ctx context.Context) *model.Player {
	player, _ := ctx.Value(playerContextKey).(*model.Player)
	return player
}

// MustGetPlayer returns the authenticated player or panics
func MustGetPlayer(ctx context.Context) *model.Player {
	player := GetPlayer(ctx)
	if player == nil {
		panic("no player in context - auth middleware not applied?")
	}
	return player
}
