package session

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/mcoot/grimoire/internal/dependencies/random"
	"github.com/mcoot/grimoire/internal/model"
	"github.com/mcoot/grimoire/internal/storage"
)

// Credential is a freshly minted session secret. Secret is handed to the
// client once; only Hash is persisted.
type Credential struct {
	Secret string
	Hash   string
}

// Service mints credentials and exchanges them for players
type Service struct {
	storage storage.Storage
	random  random.Random
}

// New creates a new session Service
func New(storage storage.Storage, random random.Random) *Service {
	return &Service{
		storage: storage,
		random:  random,
	}
}

// Hash returns the hex blake2b-256 digest of a credential secret
func Hash(secret string) string {
	sum := blake2b.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Mint creates a new unguessable credential
func (s *Service) Mint() (Credential, error) {
	secret, err := s.random.Token()
	if err != nil {
		return Credential{}, err
	}
	return Credential{Secret: secret, Hash: Hash(secret)}, nil
}

// Resolve looks up the player a credential belongs to
func (s *Service) Resolve(ctx context.Context, secret string) (*model.Player, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, model.ErrInvalidSession
	}
	p, err := s.storage.GetPlayerByCredential(ctx, Hash(secret))
	if errors.Is(err, model.ErrPlayerNotFound) {
		return nil, model.ErrInvalidSession
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
