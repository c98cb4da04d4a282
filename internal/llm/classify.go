package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// StatusCoder is implemented by errors that carry an upstream HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// APIError is a provider error normalized to its HTTP status.
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("llm: upstream status %d", e.StatusCode)
	}
	return fmt.Sprintf("llm: upstream status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error   { return e.Err }
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Decision is the outcome of classifying a failed attempt.
type Decision struct {
	Retry  bool
	Reason string
}

// Classify decides whether a failed attempt is worth retrying. The substring
// checks on "quota" and "rate" are case-sensitive.
func Classify(err error) Decision {
	if err == nil {
		return Decision{Reason: "no error"}
	}
	if errors.Is(err, ErrEmptyReply) {
		return Decision{Reason: "empty reply"}
	}

	if status, ok := statusOf(err); ok {
		switch status {
		case http.StatusTooManyRequests:
			return Decision{Retry: true, Reason: "rate limited"}
		case http.StatusInternalServerError:
			return Decision{Retry: true, Reason: "server error"}
		case http.StatusServiceUnavailable:
			return Decision{Retry: true, Reason: "service unavailable"}
		}
	}

	switch {
	case isTimeout(err):
		return Decision{Retry: true, Reason: "timeout"}
	case errors.Is(err, syscall.ECONNRESET):
		return Decision{Retry: true, Reason: "connection reset"}
	case errors.Is(err, syscall.ECONNREFUSED):
		return Decision{Retry: true, Reason: "connection refused"}
	}

	msg := err.Error()
	if strings.Contains(msg, "quota") {
		return Decision{Retry: true, Reason: "quota"}
	}
	if strings.Contains(msg, "rate") {
		return Decision{Retry: true, Reason: "rate"}
	}

	if status, ok := statusOf(err); ok {
		return Decision{Reason: fmt.Sprintf("status %d", status)}
	}
	return Decision{Reason: "non-retryable"}
}

func statusOf(err error) (int, bool) {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus(), true
	}
	return 0, false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
