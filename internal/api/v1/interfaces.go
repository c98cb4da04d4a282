package v1

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/deskchat/internal/chat"
	"github.com/gosuda/deskchat/internal/domain"
)

// ChatService abstracts turn handling and transcript reads for handler testing.
// *chat.Orchestrator satisfies this interface.
type ChatService interface {
	HandleTurn(ctx context.Context, rawText string, sessionID *uuid.UUID) (*chat.TurnResult, error)
	History(ctx context.Context, sessionID uuid.UUID) ([]*domain.Message, error)
}

// ProviderInfo reports the active completion provider.
// *llm.Client satisfies this interface.
type ProviderInfo interface {
	ProviderName() string
}
