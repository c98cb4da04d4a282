package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/deskchat/internal/domain"
)

type ConversationRepo struct {
	db  *sql.DB
	now func() time.Time
}

func (r *ConversationRepo) Create(ctx context.Context) (*domain.Conversation, error) {
	c := domain.Conversation{
		ID:        uuid.New(),
		CreatedAt: r.now().Truncate(time.Microsecond),
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conversations (id, created_at) VALUES (?, ?)`,
		c.ID.String(), c.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return nil, fmt.Errorf("conversationRepo.Create: %w", err)
	}

	return &c, nil
}

func (r *ConversationRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM conversations WHERE id = ?)`,
		id.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("conversationRepo.Exists: %w", err)
	}

	return exists, nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	var (
		c       domain.Conversation
		created int64
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM conversations WHERE id = ?`,
		id.String(),
	).Scan(&c.ID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversationRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("conversationRepo.GetByID: %w", err)
	}
	c.CreatedAt = time.UnixMicro(created).UTC()

	return &c, nil
}
