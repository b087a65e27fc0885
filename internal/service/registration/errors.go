package registration

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput     = errors.New("invalid registration input")
	ErrEditionNotFound  = errors.New("edition not found")
	ErrEventNotFound    = errors.New("event not found")
	ErrEventPast        = errors.New("event has already taken place")
	ErrCapacityConflict = errors.New("some chosen dates are full")
	ErrWriteFailed      = errors.New("registration could not be saved")
	ErrRateLimited      = errors.New("too many registration attempts")
)

// ValidationError lists every problem found in a submission.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid input: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// CapacityConflictError names the bookable units that were full.
type CapacityConflictError struct {
	UnitIDs []uuid.UUID
}

func (e *CapacityConflictError) Error() string {
	return fmt.Sprintf("bookable units full: %v", e.UnitIDs)
}

func (e *CapacityConflictError) Is(target error) bool {
	return target == ErrCapacityConflict
}

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
