package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/grimoire/internal/dependencies/mocks"
	"github.com/mcoot/grimoire/internal/model"
	"github.com/mcoot/grimoire/internal/storage/memory"
)

type ServiceSuite struct {
	suite.Suite
	storage *memory.Storage
	random  *mocks.MockRandom
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.storage = memory.New()
	s.random = mocks.NewMockRandom()
	s.service = New(s.storage, s.random)
	s.ctx = context.Background()
}

func (s *ServiceSuite) TestMintHashesSecret() {
	s.random.QueueToken("secret-1")

	cred, err := s.service.Mint()
	s.Require().NoError(err)
	s.Equal("secret-1", cred.Secret)
	s.Equal(Hash("secret-1"), cred.Hash)
	s.NotEqual(cred.Secret, cred.Hash)
	s.Len(cred.Hash, 64)
}

func (s *ServiceSuite) TestHashIsDeterministic() {
	s.Equal(Hash("abc"), Hash("abc"))
	s.NotEqual(Hash("abc"), Hash("abd"))
}

func (s *ServiceSuite) TestResolveFindsPlayer() {
	s.random.QueueToken("secret-1")
	cred, _ := s.service.Mint()

	lobby := &model.Lobby{ID: "l1", Code: "ABCD", Phase: model.PhaseCharacterSelect, CreatedAt: time.Now()}
	st := &model.Player{ID: "st", LobbyID: "l1", IsStoryteller: true, CredentialHash: cred.Hash}
	s.Require().NoError(s.storage.CreateLobby(s.ctx, lobby, st))

	p, err := s.service.Resolve(s.ctx, "secret-1")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("st"), p.ID)
}

func (s *ServiceSuite) TestResolveUnknownCredential() {
	_, err := s.service.Resolve(s.ctx, "nope")
	s.ErrorIs(err, model.ErrInvalidSession)
}

func (s *ServiceSuite) TestResolveEmptyCredential() {
	_, err := s.service.Resolve(s.ctx, "   ")
	s.ErrorIs(err, model.ErrInvalidSession)
}
