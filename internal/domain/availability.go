package domain

import (
	"time"

	"github.com/google/uuid"
)

// Counts is the derived occupancy of one bookable unit.
type Counts struct {
	CurrentCount   int  `json:"current_count"`
	RemainingSpots int  `json:"remaining_spots"`
	IsFull         bool `json:"is_full"`
}

// Availability is the computed state of a bookable unit (a date option or an event).
type Availability struct {
	UnitID      uuid.UUID `json:"id"`
	MaxCapacity int       `json:"max_capacity"`
	Counts
}

// NewAvailability derives the occupancy of a unit from its capacity and the
// number of non-cancelled occupants. Remaining spots never go below zero.
func NewAvailability(unitID uuid.UUID, capacity, count int) Availability {
	if count < 0 {
		count = 0
	}

	remaining := capacity - count
	if remaining < 0 {
		remaining = 0
	}

	return Availability{
		UnitID:      unitID,
		MaxCapacity: capacity,
		Counts: Counts{
			CurrentCount:   count,
			RemainingSpots: remaining,
			IsFull:         count >= capacity,
		},
	}
}

// AvailabilityIndex keys availability by unit ID.
type AvailabilityIndex map[uuid.UUID]Availability

func IndexAvailability(list []Availability) AvailabilityIndex {
	idx := make(AvailabilityIndex, len(list))
	for _, a := range list {
		idx[a.UnitID] = a
	}
	return idx
}

// Full returns the IDs among ids whose units are full, in input order.
func (idx AvailabilityIndex) Full(ids []uuid.UUID) []uuid.UUID {
	var full []uuid.UUID
	for _, id := range ids {
		if a, ok := idx[id]; ok && a.IsFull {
			full = append(full, id)
		}
	}
	return full
}

// EditionAvailability is the availability snapshot of all date options of an edition.
type EditionAvailability struct {
	EditionID    uuid.UUID            `json:"edition_id"`
	Availability map[uuid.UUID]Counts `json:"availability"`
	Timestamp    time.Time            `json:"timestamp"`
}
