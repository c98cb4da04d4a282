package domain_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/gosuda/deskchat/internal/domain"
)

func TestSender_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sender domain.Sender
		want   bool
	}{
		{domain.SenderUser, true},
		{domain.SenderAgent, true},
		{domain.Sender("ai"), false},
		{domain.Sender("model"), false},
		{domain.Sender("USER"), false},
		{domain.Sender(""), false},
	}

	for _, tt := range tests {
		t.Run("sender_"+string(tt.sender), func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.sender.Valid())
		})
	}
}

func TestPlatform_Valid(t *testing.T) {
	t.Parallel()

	for _, p := range []domain.Platform{
		domain.PlatformWeb,
		domain.PlatformWhatsApp,
		domain.PlatformInstagram,
		domain.PlatformFacebook,
	} {
		assert.True(t, p.Valid(), p)
	}

	assert.False(t, domain.Platform("sms").Valid())
	assert.False(t, domain.Platform("").Valid())
}

func TestSentinelErrors_Wrapping(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("repo.GetByID: %w", domain.ErrNotFound)
	assert.ErrorIs(t, wrapped, domain.ErrNotFound)
	assert.NotErrorIs(t, wrapped, domain.ErrValidation)
	assert.False(t, errors.Is(domain.ErrValidation, domain.ErrNotFound))
}

// Compile-time interface satisfaction checks.
var (
	_ domain.ConversationRepository = (*conversationRepoStub)(nil)
	_ domain.MessageRepository      = (*messageRepoStub)(nil)
)

type conversationRepoStub struct{}

func (s *conversationRepoStub) Create(_ context.Context) (*domain.Conversation, error) {
	return &domain.Conversation{ID: uuid.New()}, nil
}
func (s *conversationRepoStub) Exists(_ context.Context, _ uuid.UUID) (bool, error) { return false, nil }
func (s *conversationRepoStub) GetByID(_ context.Context, _ uuid.UUID) (*domain.Conversation, error) {
	return nil, domain.ErrNotFound
}

type messageRepoStub struct{}

func (s *messageRepoStub) Append(_ context.Context, _ uuid.UUID, _ domain.Sender, _ string) (*domain.Message, error) {
	return nil, nil
}
func (s *messageRepoStub) ListRecent(_ context.Context, _ uuid.UUID, _ int) ([]*domain.Message, error) {
	return nil, nil
}
func (s *messageRepoStub) ListAll(_ context.Context, _ uuid.UUID) ([]*domain.Message, error) {
	return nil, nil
}
