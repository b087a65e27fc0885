package lifecycle

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrNothingToUpdate      = errors.New("no fields to update")
	ErrCapacityConflict     = errors.New("no room left to reinstate registration")
	ErrNotificationFailed   = errors.New("notification could not be sent")
)

type CapacityConflictError struct {
	UnitIDs []uuid.UUID
}

func (e *CapacityConflictError) Error() string {
	return fmt.Sprintf("bookable units full: %v", e.UnitIDs)
}

func (e *CapacityConflictError) Is(target error) bool {
	return target == ErrCapacityConflict
}
