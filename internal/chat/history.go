package chat

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/gosuda/deskchat/internal/domain"
)

// HistoryWindow returns the most recent turns of a conversation in
// chronological order.
type HistoryWindow struct {
	messages domain.MessageRepository
}

func NewHistoryWindow(messages domain.MessageRepository) *HistoryWindow {
	return &HistoryWindow{messages: messages}
}

// Get returns at most limit turns, oldest first. An unknown or empty
// conversation yields an empty slice and no error.
func (w *HistoryWindow) Get(ctx context.Context, conversationID uuid.UUID, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		return []*domain.Message{}, nil
	}

	recent, err := w.messages.ListRecent(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("chat.HistoryWindow.Get: %w", err)
	}

	out := slices.Clone(recent)
	if out == nil {
		out = []*domain.Message{}
	}
	slices.SortStableFunc(out, compareTurns)
	return out, nil
}

// compareTurns orders by the store-assigned id, which is creation order.
// Timestamps come from wall clocks and may step backwards.
func compareTurns(a, b *domain.Message) int {
	return cmp.Compare(a.ID, b.ID)
}
