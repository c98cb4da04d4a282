package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Conversation is a single persistent chat session. It is immutable once
// created; all state lives in its messages.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationRepository owns conversation rows. Lookups never create rows.
type ConversationRepository interface {
	Create(ctx context.Context) (*Conversation, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
}
