package redis

import (
	"fmt"

	"github.com/mcoot/grimoire/internal/model"
)

type keys struct {
	prefix string
}

// lobby returns the key holding a Lobby record
func (k keys) lobby(id model.LobbyID) string {
	return fmt.Sprintf("%s:lobby:%s", k.prefix, id)
}

// lobbyPlayers returns the key of the LIST of player ids in join order
func (k keys) lobbyPlayers(id model.LobbyID) string {
	return fmt.Sprintf("%s:lobby:%s:players", k.prefix, id)
}

// lobbyTokens returns the key of the HASH of character id -> Token
func (k keys) lobbyTokens(id model.LobbyID) string {
	return fmt.Sprintf("%s:lobby:%s:tokens", k.prefix, id)
}

// player returns the key holding a Player record
func (k keys) player(id model.PlayerID) string {
	return fmt.Sprintf("%s:player:%s", k.prefix, id)
}

// codeIndex returns the key of the code -> lobby id index
func (k keys) codeIndex(code model.LobbyCode) string {
	return fmt.Sprintf("%s:idx:code:%s", k.prefix, code)
}

// credentialIndex returns the key of the credential hash -> player id index
func (k keys) credentialIndex(hash string) string {
	return fmt.Sprintf("%s:idx:credential:%s", k.prefix, hash)
}

// lobbiesByCreated returns the key of the ZSET of lobby ids scored by creation time
func (k keys) lobbiesByCreated() string {
	return fmt.Sprintf("%s:idx:lobbies_by_created", k.prefix)
}
