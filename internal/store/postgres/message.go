package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/deskchat/internal/domain"
)

// foreignKeyViolation is the SQLSTATE raised when a message references a
// conversation that does not exist.
const foreignKeyViolation = "23503"

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) Append(ctx context.Context, conversationID uuid.UUID, sender domain.Sender, content string) (*domain.Message, error) {
	if !sender.Valid() {
		return nil, fmt.Errorf("messageRepo.Append: sender %q: %w", sender, domain.ErrValidation)
	}

	m := domain.Message{
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO messages (conversation_id, sender, content)
		 VALUES ($1, $2, $3)
		 RETURNING id, platform, created_at`,
		conversationID, string(sender), content,
	).Scan(&m.ID, &m.Platform, &m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return nil, fmt.Errorf("messageRepo.Append: conversation %s: %w", conversationID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("messageRepo.Append: %w", err)
	}

	return &m, nil
}

func (r *MessageRepo) ListRecent(ctx context.Context, conversationID uuid.UUID, limit int) ([]*domain.Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, conversation_id, sender, content, platform, created_at
		 FROM messages WHERE conversation_id = $1
		 ORDER BY id DESC
		 LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.ListRecent: %w", err)
	}

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.ListRecent: %w", err)
	}

	return messages, nil
}

func (r *MessageRepo) ListAll(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, conversation_id, sender, content, platform, created_at
		 FROM messages WHERE conversation_id = $1
		 ORDER BY id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.ListAll: %w", err)
	}

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.ListAll: %w", err)
	}

	return messages, nil
}

func scanMessages(rows pgx.Rows) ([]*domain.Message, error) {
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		var m domain.Message

		err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Content, &m.Platform, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return messages, nil
}
