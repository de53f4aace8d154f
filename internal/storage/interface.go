package storage

import (
	"context"
	"time"

	"github.com/mcoot/grimoire/internal/model"
)

// Storage defines the interface for durable lobby, player and token records.
//
// Implementations guarantee that each method is atomic on its own. Callers
// that need read-modify-write sequences across several methods must
// serialize them per lobby.
type Storage interface {
	// Lobby operations

	// CreateLobby inserts a lobby together with its storyteller. It fails
	// with model.ErrCodeTaken if another lobby already holds the code.
	CreateLobby(ctx context.Context, lobby *model.Lobby, storyteller *model.Player) error
	GetLobby(ctx context.Context, id model.LobbyID) (*model.Lobby, error)
	GetLobbyByCode(ctx context.Context, code model.LobbyCode) (*model.Lobby, error)
	LobbyCodeExists(ctx context.Context, code model.LobbyCode) (bool, error)
	UpdateLobbyPhase(ctx context.Context, id model.LobbyID, phase model.Phase) error
	// CommitSelection sets the phase and selected characters and replaces
	// the lobby's tokens in a single step.
	CommitSelection(ctx context.Context, id model.LobbyID, phase model.Phase, characterIDs []model.CharacterID, tokens []model.Token) error
	// ListLobbiesCreatedBefore returns lobbies with CreatedAt strictly before cutoff, oldest first
	ListLobbiesCreatedBefore(ctx context.Context, cutoff time.Time) ([]*model.Lobby, error)
	// DeleteLobby removes a lobby and cascades to its players and tokens.
	// Deleting a missing lobby is not an error.
	DeleteLobby(ctx context.Context, id model.LobbyID) error

	// Player operations

	CreatePlayer(ctx context.Context, player *model.Player) error
	GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error)
	GetPlayerByCredential(ctx context.Context, credentialHash string) (*model.Player, error)
	// ListPlayers returns every player in the lobby in join order
	ListPlayers(ctx context.Context, lobbyID model.LobbyID) ([]*model.Player, error)
	// AssignCharacter records the character on the player and links the
	// character's token to the player.
	AssignCharacter(ctx context.Context, lobbyID model.LobbyID, playerID model.PlayerID, characterID model.CharacterID) error
	SetPlayerConnected(ctx context.Context, id model.PlayerID, connected bool) error
	// DeletePlayer removes the player and clears ownership of any token
	// linked to them. The tokens themselves are kept.
	DeletePlayer(ctx context.Context, id model.PlayerID) error

	// Token operations

	// ListTokens returns the lobby's tokens in selection order
	ListTokens(ctx context.Context, lobbyID model.LobbyID) ([]*model.Token, error)
	SetTokenPosition(ctx context.Context, lobbyID model.LobbyID, characterID model.CharacterID, pos model.Position) error
}
