package services

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by a service wraps exactly one of them.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrInternal   = errors.New("internal error")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// internal wraps a storage or collaborator failure. Errors that already carry
// a kind pass through untouched.
func internal(op string, err error) error {
	if kindOf(err) != nil {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}

func kindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrForbidden, ErrInternal} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Kind reports which error kind err carries, or ErrInternal for untyped errors.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	if kind := kindOf(err); kind != nil {
		return kind
	}
	return ErrInternal
}
