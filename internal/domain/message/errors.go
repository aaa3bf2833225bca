package message

import (
	"errors"
	"fmt"
)

var ErrInvalidMessage = errors.New("message: invalid")

// ValidationError reports a malformed inbound message. It matches ErrInvalidMessage.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("message: invalid: %s", e.Reason)
	}
	return fmt.Sprintf("message: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidMessage }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Invalid builds a ValidationError for decoders outside this package.
func Invalid(field, reason string) error { return invalid(field, reason) }
