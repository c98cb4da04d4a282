package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/deskchat/internal/domain"
)

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

func (r *ConversationRepo) Create(ctx context.Context) (*domain.Conversation, error) {
	c := domain.Conversation{ID: uuid.New()}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO conversations (id) VALUES ($1) RETURNING created_at`,
		c.ID,
	).Scan(&c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("conversationRepo.Create: %w", err)
	}

	return &c, nil
}

func (r *ConversationRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool

	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)`,
		id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("conversationRepo.Exists: %w", err)
	}

	return exists, nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	var c domain.Conversation

	err := r.pool.QueryRow(ctx,
		`SELECT id, created_at FROM conversations WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversationRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("conversationRepo.GetByID: %w", err)
	}

	return &c, nil
}
