// Package sqlite is the embedded single-file conversation store used for
// local development and small single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/gosuda/deskchat/internal/domain"
)

//go:embed schema.sql
var schema string

type Store struct {
	db            *sql.DB
	conversations *ConversationRepo
	messages      *MessageRepo
}

// New opens (or creates) the database file at path in WAL mode with foreign
// keys enforced.
func New(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open: %w", err)
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.New: ping: %w", err)
	}

	return &Store{
		db:            db,
		conversations: &ConversationRepo{db: db, now: now},
		messages:      &MessageRepo{db: db, now: now},
	}, nil
}

// Migrate creates the conversation tables if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite.Store.Migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	_ = s.db.Close()
}

func (s *Store) Conversations() domain.ConversationRepository { return s.conversations }
func (s *Store) Messages() domain.MessageRepository           { return s.messages }

func now() time.Time { return time.Now().UTC() }

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
