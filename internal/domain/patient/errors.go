package patient

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("invalid patient")
	ErrNotFound   = errors.New("patient not found")
)

type validationError struct{ msg string }

func (e *validationError) Error() string        { return e.msg }
func (e *validationError) Is(target error) bool { return target == ErrValidation }

func invalid(format string, args ...interface{}) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}
