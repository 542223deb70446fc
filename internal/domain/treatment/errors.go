package treatment

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("invalid treatment request")
	ErrNotFound     = errors.New("treatment not found")
	ErrStorageWrite = errors.New("storage write failed")
	ErrStorageRead  = errors.New("storage read failed")
)

type validationError struct{ msg string }

func (e *validationError) Error() string        { return e.msg }
func (e *validationError) Is(target error) bool { return target == ErrValidation }

func invalid(format string, args ...interface{}) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

func storageWrite(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageWrite, op, err)
}

func storageRead(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageRead, op, err)
}
