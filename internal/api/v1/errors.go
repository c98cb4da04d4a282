package v1

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// ErrorModel is the {"error": ..., "details": [...]} body every failed
// request returns.
type ErrorModel struct {
	status  int
	Message string              `json:"error"`
	Details []*huma.ErrorDetail `json:"details,omitempty"`
}

func (e *ErrorModel) Error() string  { return e.Message }
func (e *ErrorModel) GetStatus() int { return e.status }

// newError replaces huma's problem+json errors. Schema validation failures
// (422) are reported as 400, and server errors never carry details.
func newError(status int, msg string, errs ...error) huma.StatusError {
	if status == http.StatusUnprocessableEntity {
		status = http.StatusBadRequest
	}

	model := &ErrorModel{status: status, Message: msg}
	if status >= http.StatusInternalServerError {
		return model
	}

	for _, err := range errs {
		if err == nil {
			continue
		}
		var detailer huma.ErrorDetailer
		if errors.As(err, &detailer) {
			model.Details = append(model.Details, detailer.ErrorDetail())
			continue
		}
		model.Details = append(model.Details, &huma.ErrorDetail{Message: err.Error()})
	}

	// Surface the first validation message the way clients expect.
	if status == http.StatusBadRequest && len(model.Details) > 0 && model.Details[0].Message != "" {
		model.Message = model.Details[0].Message
	}

	return model
}

func init() { //nolint:gochecknoinits // huma exposes the error constructor as a package variable
	huma.NewError = newError
}

// NewConfig returns the huma configuration shared by the server and the
// handler tests. The $schema link transformer is disabled so bodies keep the
// exact wire shape the widget expects.
func NewConfig() huma.Config {
	cfg := huma.DefaultConfig("deskchat API", "1.0.0")
	cfg.CreateHooks = nil
	return cfg
}
