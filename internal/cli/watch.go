package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// Event types the watch loop reacts to
const (
	eventLobbyJoined     = "LOBBY_JOINED"
	eventGameState       = "GAME_STATE"
	eventPlayerGameState = "PLAYER_GAME_STATE"
	eventError           = "ERROR"

	noticeRemoved      = "REMOVED"
	noticeLobbyExpired = "LOBBY_EXPIRED"
)

func newWatchCmd() *cobra.Command {
	var (
		joinCode  string
		name      string
		reconnect bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Join or rejoin a lobby and stream its events",
		Long: `Open a websocket connection to the server and stream lobby events in real-time.

Use --join to join a lobby as a new player. The credential the server hands
back is saved to the credential file. Use --reconnect to rejoin with the saved
credential after a disconnect.

Events include:
  - PLAYER_JOINED, PLAYER_LEFT: Lobby membership changed
  - PLAYER_DISCONNECTED, PLAYER_RECONNECTED: Connection state changed
  - CHARACTERS_SELECTED: The storyteller committed the character list
  - CHARACTER_ASSIGNED: You were given a character
  - GAME_STATE, PLAYER_GAME_STATE: A fresh view of the lobby
  - GAME_STARTED: The game has started
  - ERROR: A command failed, or you were removed

Press Ctrl+C to disconnect.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var hello map[string]any
			switch {
			case joinCode != "" && reconnect:
				return errors.New("--join and --reconnect are mutually exclusive")
			case joinCode != "":
				hello = map[string]any{"type": "JOIN_LOBBY", "code": joinCode, "name": name}
			case reconnect:
				if cfg.Credential == "" {
					return errors.New("no saved credential to reconnect with")
				}
				hello = map[string]any{"type": "RECONNECT", "credential": cfg.Credential}
			default:
				return errors.New("one of --join or --reconnect is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return streamEvents(ctx, client, cfg, hello, NewOutput(cfg.Output, cmd.OutOrStdout()))
		},
	}

	cmd.Flags().StringVar(&joinCode, "join", "", "Lobby code to join")
	cmd.Flags().StringVar(&name, "name", "", "Display name when joining")
	cmd.Flags().BoolVar(&reconnect, "reconnect", false, "Rejoin with the saved credential")

	return cmd
}

// StreamEvent is a received event as printed in JSON output
type StreamEvent struct {
	Time  time.Time       `json:"time"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// streamHeader is the subset of an event the watch loop inspects
type streamHeader struct {
	Type       string `json:"type"`
	Credential string `json:"credential"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func streamEvents(ctx context.Context, cl *Client, conf *Config, hello map[string]any, out *Output) error {
	wsURL, err := cl.WebSocketURL()
	if err != nil {
		return err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	if err := conn.WriteJSON(hello); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = conn.Close()
		case <-done:
		}
	}()

	if out.format != "json" {
		fmt.Fprintf(out.w, "Connected to %s\n", wsURL)
	}

	established := false
	terminal := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || terminal ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				if out.format != "json" {
					fmt.Fprintln(out.w, "Disconnected")
				}
				return nil
			}
			return fmt.Errorf("stream error: %w", err)
		}

		var h streamHeader
		if err := json.Unmarshal(data, &h); err != nil {
			return fmt.Errorf("malformed event: %w", err)
		}
		printEvent(out, h.Type, data)

		switch h.Type {
		case eventLobbyJoined:
			established = true
			if h.Credential != "" {
				if err := conf.SaveCredential(h.Credential); err != nil {
					return fmt.Errorf("failed to save credential: %w", err)
				}
			}
		case eventGameState, eventPlayerGameState:
			established = true
		case eventError:
			if h.Code == noticeRemoved || h.Code == noticeLobbyExpired {
				terminal = true
			} else if !established {
				return &APIError{Code: h.Code, Message: h.Message}
			}
		}
	}
}

func printEvent(out *Output, event string, data []byte) {
	now := time.Now()

	if out.format == "json" {
		evt := StreamEvent{
			Time:  now,
			Event: event,
			Data:  data,
		}
		jsonData, _ := json.Marshal(evt)
		fmt.Fprintln(out.w, string(jsonData))
		return
	}

	timestamp := now.Format("2006-01-02 15:04:05")
	displayData := strings.ReplaceAll(string(data), "\n", " ")
	if len(displayData) > 120 {
		displayData = displayData[:120] + "..."
	}
	fmt.Fprintf(out.w, "[%s] %s: %s\n", timestamp, event, displayData)
}
