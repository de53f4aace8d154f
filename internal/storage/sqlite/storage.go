// Package sqlite provides a SQLite-backed lobby storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/mcoot/grimoire/internal/model"
	"github.com/mcoot/grimoire/internal/storage"
	"github.com/mcoot/grimoire/internal/storage/sqlite/migrations"
)

// Storage persists lobbies, players and tokens in SQLite
type Storage struct {
	db *sql.DB
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

// Open opens a SQLite database at path and applies embedded migrations
func Open(path string) (*Storage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; callers already serialize per lobby
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close closes the SQLite handle
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY
}

func (s *Storage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// Lobby operations

const lobbyColumns = `id, code, script_id, phase, player_count, selected_characters, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLobby(row rowScanner) (*model.Lobby, error) {
	var (
		lobby     model.Lobby
		selected  sql.NullString
		createdAt int64
	)
	if err := row.Scan(&lobby.ID, &lobby.Code, &lobby.ScriptID, &lobby.Phase, &lobby.PlayerCount, &selected, &createdAt); err != nil {
		return nil, err
	}
	lobby.CreatedAt = fromMicros(createdAt)
	if selected.Valid {
		if err := json.Unmarshal([]byte(selected.String), &lobby.SelectedCharacters); err != nil {
			return nil, fmt.Errorf("decode selected characters: %w", err)
		}
		if lobby.SelectedCharacters == nil {
			lobby.SelectedCharacters = []model.CharacterID{}
		}
	}
	return &lobby, nil
}

func (s *Storage) CreateLobby(ctx context.Context, lobby *model.Lobby, storyteller *model.Player) error {
	var selected sql.NullString
	if lobby.SelectedCharacters != nil {
		data, err := json.Marshal(lobby.SelectedCharacters)
		if err != nil {
			return err
		}
		selected = sql.NullString{String: string(data), Valid: true}
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO lobbies (`+lobbyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			lobby.ID, lobby.Code, lobby.ScriptID, lobby.Phase, lobby.PlayerCount, selected, toMicros(lobby.CreatedAt),
		); err != nil {
			if isUniqueViolation(err) {
				return model.ErrCodeTaken
			}
			return err
		}
		return insertPlayer(ctx, tx, storyteller)
	})
	return err
}

func (s *Storage) GetLobby(ctx context.Context, id model.LobbyID) (*model.Lobby, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+lobbyColumns+` FROM lobbies WHERE id = ?`, id)
	lobby, err := scanLobby(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrLobbyNotFound
	}
	return lobby, err
}

func (s *Storage) GetLobbyByCode(ctx context.Context, code model.LobbyCode) (*model.Lobby, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+lobbyColumns+` FROM lobbies WHERE code = ?`, code)
	lobby, err := scanLobby(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrLobbyNotFound
	}
	return lobby, err
}

func (s *Storage) LobbyCodeExists(ctx context.Context, code model.LobbyCode) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM lobbies WHERE code = ?`, code).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Storage) UpdateLobbyPhase(ctx context.Context, id model.LobbyID, phase model.Phase) error {
	res, err := s.db.ExecContext(ctx, `UPDATE lobbies SET phase = ? WHERE id = ?`, phase, id)
	if err != nil {
		return err
	}
	return requireAffected(res, model.ErrLobbyNotFound)
}

func (s *Storage) CommitSelection(ctx context.Context, id model.LobbyID, phase model.Phase, characterIDs []model.CharacterID, tokens []model.Token) error {
	if characterIDs == nil {
		characterIDs = []model.CharacterID{}
	}
	selected, err := json.Marshal(characterIDs)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE lobbies SET phase = ?, selected_characters = ? WHERE id = ?`,
			phase, string(selected), id,
		)
		if err != nil {
			return err
		}
		if err := requireAffected(res, model.ErrLobbyNotFound); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM grimoire_tokens WHERE lobby_id = ?`, id); err != nil {
			return err
		}
		for i, t := range tokens {
			var owner sql.NullString
			if t.PlayerID != "" {
				owner = sql.NullString{String: string(t.PlayerID), Valid: true}
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO grimoire_tokens (lobby_id, character_id, player_id, position_x, position_y, seq)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				id, t.CharacterID, owner, t.Position.X, t.Position.Y, i,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Storage) ListLobbiesCreatedBefore(ctx context.Context, cutoff time.Time) ([]*model.Lobby, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+lobbyColumns+` FROM lobbies WHERE created_at < ? ORDER BY created_at, id`,
		toMicros(cutoff),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Lobby
	for rows.Next() {
		lobby, err := scanLobby(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lobby)
	}
	return out, rows.Err()
}

func (s *Storage) DeleteLobby(ctx context.Context, id model.LobbyID) error {
	// players and grimoire_tokens cascade
	_, err := s.db.ExecContext(ctx, `DELETE FROM lobbies WHERE id = ?`, id)
	return err
}

// Player operations

const playerColumns = `id, lobby_id, name, is_storyteller, character_id, credential_hash, connected, joined_at`

func scanPlayer(row rowScanner) (*model.Player, error) {
	var (
		p         model.Player
		character sql.NullString
		joinedAt  int64
	)
	if err := row.Scan(&p.ID, &p.LobbyID, &p.Name, &p.IsStoryteller, &character, &p.CredentialHash, &p.Connected, &joinedAt); err != nil {
		return nil, err
	}
	p.CharacterID = model.CharacterID(character.String)
	p.JoinedAt = fromMicros(joinedAt)
	return &p, nil
}

func insertPlayer(ctx context.Context, tx *sql.Tx, p *model.Player) error {
	var character sql.NullString
	if p.CharacterID != "" {
		character = sql.NullString{String: string(p.CharacterID), Valid: true}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO players (`+playerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.LobbyID, p.Name, p.IsStoryteller, character, p.CredentialHash, p.Connected, toMicros(p.JoinedAt),
	)
	if isForeignKeyViolation(err) {
		return model.ErrLobbyNotFound
	}
	return err
}

func (s *Storage) CreatePlayer(ctx context.Context, player *model.Player) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertPlayer(ctx, tx, player)
	})
}

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE id = ?`, id)
	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrPlayerNotFound
	}
	return p, err
}

func (s *Storage) GetPlayerByCredential(ctx context.Context, credentialHash string) (*model.Player, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE credential_hash = ?`, credentialHash)
	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrPlayerNotFound
	}
	return p, err
}

func (s *Storage) ListPlayers(ctx context.Context, lobbyID model.LobbyID) ([]*model.Player, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE lobby_id = ? ORDER BY joined_at, rowid`,
		lobbyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*model.Player{}
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Storage) AssignCharacter(ctx context.Context, lobbyID model.LobbyID, playerID model.PlayerID, characterID model.CharacterID) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var found int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM players WHERE id = ? AND lobby_id = ?`, playerID, lobbyID,
		).Scan(&found)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrPlayerNotFound
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE grimoire_tokens SET player_id = NULL WHERE lobby_id = ? AND player_id = ?`,
			lobbyID, playerID,
		); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE grimoire_tokens SET player_id = ? WHERE lobby_id = ? AND character_id = ?`,
			playerID, lobbyID, characterID,
		)
		if err != nil {
			return err
		}
		if err := requireAffected(res, model.ErrTokenNotFound); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE players SET character_id = ? WHERE id = ?`, characterID, playerID)
		return err
	})
}

func (s *Storage) SetPlayerConnected(ctx context.Context, id model.PlayerID, connected bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE players SET connected = ? WHERE id = ?`, connected, id)
	if err != nil {
		return err
	}
	return requireAffected(res, model.ErrPlayerNotFound)
}

func (s *Storage) DeletePlayer(ctx context.Context, id model.PlayerID) error {
	// grimoire_tokens.player_id is cleared by ON DELETE SET NULL
	_, err := s.db.ExecContext(ctx, `DELETE FROM players WHERE id = ?`, id)
	return err
}

// Token operations

func (s *Storage) ListTokens(ctx context.Context, lobbyID model.LobbyID) ([]*model.Token, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lobby_id, character_id, player_id, position_x, position_y
		 FROM grimoire_tokens WHERE lobby_id = ? ORDER BY seq`,
		lobbyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*model.Token{}
	for rows.Next() {
		var (
			t     model.Token
			owner sql.NullString
		)
		if err := rows.Scan(&t.LobbyID, &t.CharacterID, &owner, &t.Position.X, &t.Position.Y); err != nil {
			return nil, err
		}
		t.PlayerID = model.PlayerID(owner.String)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *Storage) SetTokenPosition(ctx context.Context, lobbyID model.LobbyID, characterID model.CharacterID, pos model.Position) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE grimoire_tokens SET position_x = ?, position_y = ? WHERE lobby_id = ? AND character_id = ?`,
		pos.X, pos.Y, lobbyID, characterID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, model.ErrTokenNotFound)
}
