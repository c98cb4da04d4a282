// Package llm wraps calls to a hosted generation service with error
// classification, bounded exponential backoff and a sanitized error taxonomy.
package llm

import (
	"context"

	"github.com/gosuda/deskchat/internal/domain"
)

// Role is a provider-neutral conversation role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior turn in provider-neutral form.
type Message struct {
	Role    Role
	Content string
}

// Request is everything a provider needs for one generation call.
type Request struct {
	Model       string
	System      string
	History     []Message
	Prompt      string
	MaxTokens   int64
	Temperature float64
}

// Provider performs a single, unretried generation call.
type Provider interface {
	// Name is the human-readable provider label reported by the health check.
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// TranslateHistory maps stored turns to the alternating user/assistant
// representation providers expect.
func TranslateHistory(turns []*domain.Message) []Message {
	out := make([]Message, 0, len(turns))
	for _, t := range turns {
		role := RoleUser
		if t.Sender == domain.SenderAgent {
			role = RoleAssistant
		}
		out = append(out, Message{Role: role, Content: t.Content})
	}
	return out
}
