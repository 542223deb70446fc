package inventory

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every input error of this package.
	ErrValidation = errors.New("invalid inventory request")
	ErrNotFound   = errors.New("asset not found")

	ErrInvalidAmount = invalid("amount must not be negative")
)

// validationError carries a user facing message and matches ErrValidation.
type validationError struct{ msg string }

func (e *validationError) Error() string        { return e.msg }
func (e *validationError) Is(target error) bool { return target == ErrValidation }

func invalid(format string, args ...interface{}) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}
