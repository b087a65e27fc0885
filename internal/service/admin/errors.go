package admin

import (
	"errors"
	"strings"
)

var (
	ErrEditionNotFound    = errors.New("edition not found")
	ErrDateOptionNotFound = errors.New("date option not found")
	ErrEventNotFound      = errors.New("event not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConflict           = errors.New("conflicting data")
	ErrNothingToUpdate    = errors.New("nothing to update")
)

type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return ErrInvalidInput.Error() + ": " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }
