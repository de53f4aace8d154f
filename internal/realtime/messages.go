package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/mcoot/grimoire/internal/api/apierr"
	"github.com/mcoot/grimoire/internal/model"
	"github.com/mcoot/grimoire/internal/services/view"
)

// ConnID identifies one live transport connection
type ConnID string

// Inbound command types
const (
	CommandCreateLobby      = "CREATE_LOBBY"
	CommandJoinLobby        = "JOIN_LOBBY"
	CommandSelectCharacters = "SELECT_CHARACTERS"
	CommandStartGame        = "START_GAME"
	CommandRemovePlayer     = "REMOVE_PLAYER"
	CommandReconnect        = "RECONNECT"
	CommandMoveToken        = "MOVE_TOKEN"
)

// Outbound event types
const (
	EventConnected          = "CONNECTED"
	EventLobbyCreated       = "LOBBY_CREATED"
	EventLobbyJoined        = "LOBBY_JOINED"
	EventPlayerJoined       = "PLAYER_JOINED"
	EventPlayerLeft         = "PLAYER_LEFT"
	EventPlayerDisconnected = "PLAYER_DISCONNECTED"
	EventPlayerReconnected  = "PLAYER_RECONNECTED"
	EventCharactersSelected = "CHARACTERS_SELECTED"
	EventCharacterAssigned  = "CHARACTER_ASSIGNED"
	EventGameState          = "GAME_STATE"
	EventPlayerGameState    = "PLAYER_GAME_STATE"
	EventGameStarted        = "GAME_STARTED"
	EventError              = "ERROR"
)

// ClientMessage is an inbound command. Only the fields relevant to Type are set.
type ClientMessage struct {
	Type string `json:"type"`

	PlayerCount  int                 `json:"playerCount,omitempty"`
	ScriptID     model.ScriptID      `json:"scriptId,omitempty"`
	Code         string              `json:"code,omitempty"`
	Name         string              `json:"name,omitempty"`
	Credential   string              `json:"credential,omitempty"`
	CharacterIDs []model.CharacterID `json:"characterIds,omitempty"`
	PlayerID     model.PlayerID      `json:"playerId,omitempty"`
	CharacterID  model.CharacterID   `json:"characterId,omitempty"`
	X            *float64            `json:"x,omitempty"`
	Y            *float64            `json:"y,omitempty"`
}

// DecodeClientMessage parses and checks an inbound frame
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %s", model.ErrInvalidMessage, err.Error())
	}
	return msg, msg.validate()
}

func (m ClientMessage) validate() error {
	missing := func(field string) error {
		return fmt.Errorf("%w: %s requires %s", model.ErrInvalidMessage, m.Type, field)
	}

	switch m.Type {
	case "":
		return fmt.Errorf("%w: missing type", model.ErrInvalidMessage)
	case CommandCreateLobby:
		if m.PlayerCount <= 0 {
			return missing("playerCount")
		}
		if m.ScriptID == "" {
			return missing("scriptId")
		}
	case CommandJoinLobby:
		if m.Code == "" {
			return missing("code")
		}
	case CommandSelectCharacters:
		if m.CharacterIDs == nil {
			return missing("characterIds")
		}
	case CommandStartGame:
	case CommandRemovePlayer:
		if m.PlayerID == "" {
			return missing("playerId")
		}
	case CommandReconnect:
		if m.Credential == "" {
			return missing("credential")
		}
	case CommandMoveToken:
		if m.CharacterID == "" {
			return missing("characterId")
		}
		if m.X == nil || m.Y == nil {
			return missing("x and y")
		}
	default:
		return fmt.Errorf("%w: %q", model.ErrUnknownMessage, m.Type)
	}
	return nil
}

// Event is an outbound message. Only the fields relevant to Type are set.
type Event struct {
	Type string `json:"type"`

	ConnectionID ConnID              `json:"connectionId,omitempty"`
	LobbyID      model.LobbyID       `json:"lobbyId,omitempty"`
	PlayerID     model.PlayerID      `json:"playerId,omitempty"`
	Credential   string              `json:"credential,omitempty"`
	Player       *view.PlayerInfo    `json:"player,omitempty"`
	CharacterIDs []model.CharacterID `json:"characterIds,omitempty"`
	Character    *view.Character     `json:"character,omitempty"`
	State        any                 `json:"state,omitempty"`

	// Code is the lobby code, or the error code on ERROR events
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ConnectedEvent greets a newly opened connection
func ConnectedEvent(id ConnID) Event {
	return Event{Type: EventConnected, ConnectionID: id}
}

// ErrorEvent reports a failed command to its sender
func ErrorEvent(err error) Event {
	_, apiErr := apierr.FromError(err)
	return Event{Type: EventError, Code: apiErr.Code, Message: apiErr.Message}
}

// NoticeEvent is an ERROR event with an explicit code, used for terminal notices
func NoticeEvent(code, message string) Event {
	return Event{Type: EventError, Code: code, Message: message}
}

// RemovedNotice is sent to a player's connections before they are closed on removal
func RemovedNotice() Event {
	return NoticeEvent(apierr.CodeRemoved, "You have been removed from the game")
}

// LobbyExpiredNotice is sent to every connection of a lobby the reaper deletes
func LobbyExpiredNotice() Event {
	return NoticeEvent(apierr.CodeLobbyExpired, "This lobby has expired")
}
