package chat

import "github.com/gosuda/deskchat/internal/domain"

// ValidationError rejects a user utterance before anything is persisted.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return "chat: " + e.Message }

// Is makes every ValidationError match domain.ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == domain.ErrValidation }
