package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/deskchat/internal/domain"
)

type MessageRepo struct {
	db  *sql.DB
	now func() time.Time
}

func (r *MessageRepo) Append(ctx context.Context, conversationID uuid.UUID, sender domain.Sender, content string) (*domain.Message, error) {
	if !sender.Valid() {
		return nil, fmt.Errorf("messageRepo.Append: sender %q: %w", sender, domain.ErrValidation)
	}

	m := domain.Message{
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		Platform:       domain.PlatformWeb,
		CreatedAt:      r.now().Truncate(time.Microsecond),
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, sender, content, platform, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		conversationID.String(), string(sender), content, string(m.Platform), m.CreatedAt.UnixMicro(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("messageRepo.Append: conversation %s: %w", conversationID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("messageRepo.Append: %w", err)
	}

	m.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("messageRepo.Append: last insert id: %w", err)
	}

	return &m, nil
}

// ListRecent orders by the autoincrement key, which is the insertion order
// even when two rows share a timestamp.
func (r *MessageRepo) ListRecent(ctx context.Context, conversationID uuid.UUID, limit int) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender, content, platform, created_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		conversationID.String(), limit,
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
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender, content, platform, created_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY id ASC`,
		conversationID.String(),
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

func scanMessages(rows *sql.Rows) ([]*domain.Message, error) {
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		var (
			m       domain.Message
			created int64
		)

		err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Content, &m.Platform, &created)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		m.CreatedAt = time.UnixMicro(created).UTC()
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return messages, nil
}
