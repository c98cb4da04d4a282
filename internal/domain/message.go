package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Valid reports whether s is one of the known senders.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAgent
}

// Platform is the channel a message arrived on. The web widget is the only
// writer today; the column exists for inbox integrations.
type Platform string

const (
	PlatformWeb       Platform = "web"
	PlatformWhatsApp  Platform = "whatsapp"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
)

// Valid reports whether p is one of the known platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformWeb, PlatformWhatsApp, PlatformInstagram, PlatformFacebook:
		return true
	default:
		return false
	}
}

// Message is one append-only turn within a conversation. ID and CreatedAt are
// assigned by the store at insert time.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Sender         Sender    `json:"sender"`
	Content        string    `json:"content"`
	Platform       Platform  `json:"platform"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageRepository appends and reads messages. There is no update or delete.
type MessageRepository interface {
	// Append inserts a message into an existing conversation.
	Append(ctx context.Context, conversationID uuid.UUID, sender Sender, content string) (*Message, error)
	// ListRecent returns at most limit messages, newest first.
	ListRecent(ctx context.Context, conversationID uuid.UUID, limit int) ([]*Message, error)
	// ListAll returns every message of the conversation in insertion order.
	ListAll(ctx context.Context, conversationID uuid.UUID) ([]*Message, error)
}

// Store is the accessor pattern shared by the SQL backends.
type Store interface {
	Conversations() ConversationRepository
	Messages() MessageRepository
	Close()
}
