package repository

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrUnavailable      = errors.New("data backend unavailable")
)

// CapacityError lists the bookable units that were full when the write was attempted.
type CapacityError struct {
	UnitIDs []uuid.UUID
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity exceeded for units: %v", e.UnitIDs)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityExceeded
}
