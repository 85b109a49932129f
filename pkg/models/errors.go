package models

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the service error taxonomy. Handlers map
// these onto HTTP status codes; pipelines use them to distinguish
// expected degradation from genuine failure.
var (
	// ErrNotFound means a requested app, localization, or tracked
	// competitor is absent.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput means required fields were missing or malformed.
	// Rejected before any side effect.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUpstream means the store search API failed after exhausting
	// retries.
	ErrUpstream = errors.New("upstream failure")

	// ErrLLMRefusal means the model declined to produce structured
	// output. Distinct from malformed output so callers can tell
	// "bad output" from "no output".
	ErrLLMRefusal = errors.New("model refused to answer")
)

// ContentFieldError reports that a generated listing field could not be
// brought within its length bounds after all retries.
type ContentFieldError struct {
	Field ContentField
	Msg   string
}

func (e *ContentFieldError) Error() string {
	return fmt.Sprintf("content generation failed for %s: %s", e.Field, e.Msg)
}

// NewContentFieldError builds a field-specific content error.
func NewContentFieldError(field ContentField, format string, args ...any) *ContentFieldError {
	return &ContentFieldError{Field: field, Msg: fmt.Sprintf(format, args...)}
}
