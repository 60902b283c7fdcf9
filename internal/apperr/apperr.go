package apperr

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by every lookup that misses.
var ErrNotFound = errors.New("not found")

// ValidationError carries a message that is safe to show to the caller.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validation builds a ValidationError from a format string.
func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFound wraps ErrNotFound with the missing entity name.
func NotFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
