package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"syscall"
)

// ErrUpstream matches every *UpstreamError via errors.Is.
var ErrUpstream = errors.New("llm: upstream failure") //nolint:gochecknoglobals // sentinel error

// ErrEmptyReply is returned by providers when the model produced no text.
var ErrEmptyReply = errors.New("llm: no response generated from AI") //nolint:gochecknoglobals // sentinel error

// Category groups terminal upstream failures by what the user should be told.
type Category string

const (
	CategoryCredentials      Category = "credentials"
	CategoryModelUnavailable Category = "model_unavailable"
	CategoryBusy             Category = "busy"
	CategoryTimeout          Category = "timeout"
	CategoryUnknown          Category = "unknown"
)

var userMessages = map[Category]string{ //nolint:gochecknoglobals // static lookup
	CategoryCredentials:      "AI service configuration error. Please check your API key.",
	CategoryModelUnavailable: "AI model not available. Please check your API configuration.",
	CategoryBusy:             "Our AI agent is currently busy. Please try again in a few seconds.",
	CategoryTimeout:          "AI service timed out. Please try again.",
	CategoryUnknown:          "Unable to generate response. Please try again later.",
}

// UpstreamError is the terminal failure of a completion call, either after the
// retry budget ran out or on the first non-retryable attempt.
type UpstreamError struct {
	Category Category
	Attempts int
	// Exhausted is true when the last failure was retryable and the budget ran out.
	Exhausted bool
	Err       error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("llm: upstream %s after %d attempt(s): %v", e.Category, e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Retryable reports whether the final attempt failed with a retryable error.
func (e *UpstreamError) Retryable() bool { return e.Exhausted }

// UserMessage is the sanitized text safe to show to end users.
func (e *UpstreamError) UserMessage() string {
	if msg, ok := userMessages[e.Category]; ok {
		return msg
	}
	return userMessages[CategoryUnknown]
}

// Categorize picks the user-facing category by matching the terminal error.
func Categorize(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	if errors.Is(err, ErrEmptyReply) {
		return CategoryUnknown
	}

	msg := err.Error()
	status, hasStatus := statusOf(err)

	switch {
	case strings.Contains(msg, "API key"), strings.Contains(msg, "API_KEY"),
		hasStatus && (status == http.StatusUnauthorized || status == http.StatusForbidden):
		return CategoryCredentials
	case hasStatus && status == http.StatusNotFound, strings.Contains(msg, "not found"):
		return CategoryModelUnavailable
	case strings.Contains(msg, "quota"), strings.Contains(msg, "rate"),
		hasStatus && status == http.StatusTooManyRequests:
		return CategoryBusy
	case isTimeout(err), errors.Is(err, syscall.ECONNRESET):
		return CategoryTimeout
	default:
		return CategoryUnknown
	}
}
