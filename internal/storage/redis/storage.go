package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/grimoire/internal/model"
	"github.com/mcoot/grimoire/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface.
// Records are JSON values; indexes are plain keys, a LIST per lobby for
// join order, a HASH per lobby for tokens and a ZSET for creation time.
type Storage struct {
	client *redis.Client
	keys   keys
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultConfig().KeyPrefix
	}
	return &Storage{
		client: client,
		keys:   keys{prefix: prefix},
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) getJSON(ctx context.Context, key string, dst any, notFound error) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return notFound
		}
		return err
	}
	return json.Unmarshal(data, dst)
}

func scoreOf(t time.Time) float64 {
	return float64(t.UnixMicro())
}

// Lobby operations

func (s *Storage) CreateLobby(ctx context.Context, lobby *model.Lobby, storyteller *model.Player) error {
	lobbyData, err := json.Marshal(lobby)
	if err != nil {
		return err
	}
	playerData, err := json.Marshal(storyteller)
	if err != nil {
		return err
	}

	codeKey := s.keys.codeIndex(lobby.Code)
	claimed, err := s.client.SetNX(ctx, codeKey, string(lobby.ID), 0).Result()
	if err != nil {
		return err
	}
	if !claimed {
		return model.ErrCodeTaken
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.keys.lobby(lobby.ID), lobbyData, 0)
		pipe.ZAdd(ctx, s.keys.lobbiesByCreated(), redis.Z{Score: scoreOf(lobby.CreatedAt), Member: string(lobby.ID)})
		s.queuePlayerInsert(ctx, pipe, storyteller, playerData)
		return nil
	})
	if err != nil {
		// Release the code so a retry can claim it
		_ = s.client.Del(ctx, codeKey).Err()
		return err
	}
	return nil
}

func (s *Storage) GetLobby(ctx context.Context, id model.LobbyID) (*model.Lobby, error) {
	var lobby model.Lobby
	if err := s.getJSON(ctx, s.keys.lobby(id), &lobby, model.ErrLobbyNotFound); err != nil {
		return nil, err
	}
	return &lobby, nil
}

func (s *Storage) GetLobbyByCode(ctx context.Context, code model.LobbyCode) (*model.Lobby, error) {
	id, err := s.client.Get(ctx, s.keys.codeIndex(code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrLobbyNotFound
		}
		return nil, err
	}
	return s.GetLobby(ctx, model.LobbyID(id))
}

func (s *Storage) LobbyCodeExists(ctx context.Context, code model.LobbyCode) (bool, error) {
	exists, err := s.client.Exists(ctx, s.keys.codeIndex(code)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

func (s *Storage) saveLobby(ctx context.Context, pipe redis.Pipeliner, lobby *model.Lobby) error {
	data, err := json.Marshal(lobby)
	if err != nil {
		return err
	}
	pipe.Set(ctx, s.keys.lobby(lobby.ID), data, 0)
	return nil
}

func (s *Storage) UpdateLobbyPhase(ctx context.Context, id model.LobbyID, phase model.Phase) error {
	lobby, err := s.GetLobby(ctx, id)
	if err != nil {
		return err
	}
	lobby.Phase = phase
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return s.saveLobby(ctx, pipe, lobby)
	})
	return err
}

func (s *Storage) CommitSelection(ctx context.Context, id model.LobbyID, phase model.Phase, characterIDs []model.CharacterID, tokens []model.Token) error {
	lobby, err := s.GetLobby(ctx, id)
	if err != nil {
		return err
	}
	lobby.Phase = phase
	lobby.SelectedCharacters = append([]model.CharacterID{}, characterIDs...)

	fields := make([]any, 0, len(tokens)*2)
	for _, t := range tokens {
		t.LobbyID = id
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		fields = append(fields, string(t.CharacterID), data)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := s.saveLobby(ctx, pipe, lobby); err != nil {
			return err
		}
		pipe.Del(ctx, s.keys.lobbyTokens(id))
		if len(fields) > 0 {
			pipe.HSet(ctx, s.keys.lobbyTokens(id), fields...)
		}
		return nil
	})
	return err
}

func (s *Storage) ListLobbiesCreatedBefore(ctx context.Context, cutoff time.Time) ([]*model.Lobby, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.keys.lobbiesByCreated(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMicro(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	var out []*model.Lobby
	for _, id := range ids {
		lobby, err := s.GetLobby(ctx, model.LobbyID(id))
		if errors.Is(err, model.ErrLobbyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, lobby)
	}
	return out, nil
}

func (s *Storage) DeleteLobby(ctx context.Context, id model.LobbyID) error {
	lobby, err := s.GetLobby(ctx, id)
	if errors.Is(err, model.ErrLobbyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	players, err := s.ListPlayers(ctx, id)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range players {
			pipe.Del(ctx, s.keys.player(p.ID), s.keys.credentialIndex(p.CredentialHash))
		}
		pipe.Del(ctx,
			s.keys.lobby(id),
			s.keys.lobbyPlayers(id),
			s.keys.lobbyTokens(id),
			s.keys.codeIndex(lobby.Code),
		)
		pipe.ZRem(ctx, s.keys.lobbiesByCreated(), string(id))
		return nil
	})
	return err
}

// Player operations

func (s *Storage) queuePlayerInsert(ctx context.Context, pipe redis.Pipeliner, p *model.Player, data []byte) {
	pipe.Set(ctx, s.keys.player(p.ID), data, 0)
	pipe.Set(ctx, s.keys.credentialIndex(p.CredentialHash), string(p.ID), 0)
	pipe.RPush(ctx, s.keys.lobbyPlayers(p.LobbyID), string(p.ID))
}

func (s *Storage) CreatePlayer(ctx context.Context, player *model.Player) error {
	exists, err := s.client.Exists(ctx, s.keys.lobby(player.LobbyID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return model.ErrLobbyNotFound
	}

	data, err := json.Marshal(player)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.queuePlayerInsert(ctx, pipe, player, data)
		return nil
	})
	return err
}

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	var p model.Player
	if err := s.getJSON(ctx, s.keys.player(id), &p, model.ErrPlayerNotFound); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Storage) GetPlayerByCredential(ctx context.Context, credentialHash string) (*model.Player, error) {
	id, err := s.client.Get(ctx, s.keys.credentialIndex(credentialHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrPlayerNotFound
		}
		return nil, err
	}
	return s.GetPlayer(ctx, model.PlayerID(id))
}

func (s *Storage) ListPlayers(ctx context.Context, lobbyID model.LobbyID) ([]*model.Player, error) {
	ids, err := s.client.LRange(ctx, s.keys.lobbyPlayers(lobbyID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*model.Player{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.keys.player(model.PlayerID(id)))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make([]*model.Player, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var p model.Player
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, nil
}

func (s *Storage) savePlayer(ctx context.Context, pipe redis.Pipeliner, p *model.Player) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	pipe.Set(ctx, s.keys.player(p.ID), data, 0)
	return nil
}

func (s *Storage) AssignCharacter(ctx context.Context, lobbyID model.LobbyID, playerID model.PlayerID, characterID model.CharacterID) error {
	p, err := s.GetPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	if p.LobbyID != lobbyID {
		return model.ErrPlayerNotFound
	}

	tokens, err := s.tokenMap(ctx, lobbyID)
	if err != nil {
		return err
	}
	target, ok := tokens[characterID]
	if !ok {
		return model.ErrTokenNotFound
	}

	changed := clearOwner(tokens, playerID)
	target.PlayerID = playerID
	changed = append(changed, target)
	p.CharacterID = characterID

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := s.savePlayer(ctx, pipe, p); err != nil {
			return err
		}
		return s.saveTokens(ctx, pipe, lobbyID, changed)
	})
	return err
}

func (s *Storage) SetPlayerConnected(ctx context.Context, id model.PlayerID, connected bool) error {
	p, err := s.GetPlayer(ctx, id)
	if err != nil {
		return err
	}
	p.Connected = connected
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return s.savePlayer(ctx, pipe, p)
	})
	return err
}

func (s *Storage) DeletePlayer(ctx context.Context, id model.PlayerID) error {
	p, err := s.GetPlayer(ctx, id)
	if errors.Is(err, model.ErrPlayerNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	tokens, err := s.tokenMap(ctx, p.LobbyID)
	if err != nil {
		return err
	}
	changed := clearOwner(tokens, id)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.keys.player(id), s.keys.credentialIndex(p.CredentialHash))
		pipe.LRem(ctx, s.keys.lobbyPlayers(p.LobbyID), 0, string(id))
		return s.saveTokens(ctx, pipe, p.LobbyID, changed)
	})
	return err
}

// Token operations

func (s *Storage) tokenMap(ctx context.Context, lobbyID model.LobbyID) (map[model.CharacterID]*model.Token, error) {
	raw, err := s.client.HGetAll(ctx, s.keys.lobbyTokens(lobbyID)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[model.CharacterID]*model.Token, len(raw))
	for field, value := range raw {
		var t model.Token
		if err := json.Unmarshal([]byte(value), &t); err != nil {
			return nil, err
		}
		out[model.CharacterID(field)] = &t
	}
	return out, nil
}

func clearOwner(tokens map[model.CharacterID]*model.Token, playerID model.PlayerID) []*model.Token {
	var changed []*model.Token
	for _, t := range tokens {
		if t.PlayerID == playerID {
			t.PlayerID = ""
			changed = append(changed, t)
		}
	}
	return changed
}

func (s *Storage) saveTokens(ctx context.Context, pipe redis.Pipeliner, lobbyID model.LobbyID, tokens []*model.Token) error {
	if len(tokens) == 0 {
		return nil
	}
	fields := make([]any, 0, len(tokens)*2)
	for _, t := range tokens {
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		fields = append(fields, string(t.CharacterID), data)
	}
	pipe.HSet(ctx, s.keys.lobbyTokens(lobbyID), fields...)
	return nil
}

func (s *Storage) ListTokens(ctx context.Context, lobbyID model.LobbyID) ([]*model.Token, error) {
	tokens, err := s.tokenMap(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return []*model.Token{}, nil
	}
	lobby, err := s.GetLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}

	out := make([]*model.Token, 0, len(tokens))
	for _, id := range lobby.SelectedCharacters {
		if t, ok := tokens[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Storage) SetTokenPosition(ctx context.Context, lobbyID model.LobbyID, characterID model.CharacterID, pos model.Position) error {
	value, err := s.client.HGet(ctx, s.keys.lobbyTokens(lobbyID), string(characterID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.ErrTokenNotFound
		}
		return err
	}
	var t model.Token
	if err := json.Unmarshal([]byte(value), &t); err != nil {
		return err
	}
	t.Position = pos
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.keys.lobbyTokens(lobbyID), string(characterID), data).Err()
}
