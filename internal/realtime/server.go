package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/mcoot/grimoire/internal/dependencies/random"
)

// Server upgrades HTTP requests to websocket connections and runs them
type Server struct {
	registry   *Registry
	dispatcher *Dispatcher
	commands   *CommandHandler
	random     random.Random
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

// NewServer creates a new websocket Server. An empty allowedOrigins list or
// one containing "*" accepts any origin.
func NewServer(registry *Registry, dispatcher *Dispatcher, commands *CommandHandler, random random.Random, allowedOrigins []string, logger *slog.Logger) *Server {
	s := &Server{
		registry:   registry,
		dispatcher: dispatcher,
		commands:   commands,
		random:     random,
		logger:     logger.With(slog.String("component", "websocket")),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return s
}

// ServeHTTP handles a websocket upgrade and blocks until the connection ends
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	id := ConnID(s.random.ID())
	client := NewClient(id, conn, s.logger)
	s.registry.Register(id, client)
	go client.WritePump()

	s.logger.Info("websocket connected",
		slog.String("conn_id", string(id)),
		slog.String("remote_addr", r.RemoteAddr),
	)

	ctx := context.WithoutCancel(r.Context())
	s.dispatcher.SendTo(id, ConnectedEvent(id))
	client.ReadPump(func(data []byte) {
		s.commands.HandleFrame(ctx, id, data)
	})
	s.commands.Closed(ctx, id)

	s.logger.Info("websocket disconnected", slog.String("conn_id", string(id)))
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[strings.ToLower(o)] = true
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(set) == 0 {
			return true
		}
		if set[strings.ToLower(origin)] {
			return true
		}
		// Same-host requests are always fine
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
