package middleware

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/grimoire/internal/middleware"
)

// Logging creates request logging middleware for the API. Records are
// tagged with component=http.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.Logging(logger.With(slog.String("component", "http")))
}
