// Package memory is an in-process data backend. A store-wide mutex stands in
// for transactions; a failed date-choice write is undone with an explicit
// compensating delete of the registration.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/studio-booking/internal/domain"
	"github.com/kirinyoku/studio-booking/internal/repository"
)

type Store struct {
	mu sync.Mutex

	editions  map[uuid.UUID]domain.Edition
	sessions  map[uuid.UUID]domain.Session
	options   map[uuid.UUID]domain.DateOption
	regs      map[uuid.UUID]domain.Registration
	choices   map[uuid.UUID][]uuid.UUID
	events    map[uuid.UUID]domain.Event
	eventRegs map[uuid.UUID]domain.EventRegistration

	choiceErr error
	now       func() time.Time
}

func New() *Store {
	return &Store{
		editions:  make(map[uuid.UUID]domain.Edition),
		sessions:  make(map[uuid.UUID]domain.Session),
		options:   make(map[uuid.UUID]domain.DateOption),
		regs:      make(map[uuid.UUID]domain.Registration),
		choices:   make(map[uuid.UUID][]uuid.UUID),
		events:    make(map[uuid.UUID]domain.Event),
		eventRegs: make(map[uuid.UUID]domain.EventRegistration),
		now:       time.Now,
	}
}

// FailChoiceWrites makes every subsequent date-choice write fail with err.
// A nil err restores normal behaviour.
func (s *Store) FailChoiceWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.choiceErr = err
}

// RegistrationCount returns the number of stored edition registrations.
func (s *Store) RegistrationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.regs)
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) GetEdition(_ context.Context, id uuid.UUID) (*domain.Edition, error) {
	const op = "memory.Store.GetEdition"

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.editions[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	return &e, nil
}

func (s *Store) ListActiveEditionsByKey(_ context.Context, key string) ([]domain.Edition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Edition
	for _, e := range s.editions {
		if e.Active && e.ProgrammeKey == key {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) ListSessions(_ context.Context, editionID uuid.UUID) ([]domain.SessionWithOptions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.SessionWithOptions{}
	for _, sess := range s.sessions {
		if sess.EditionID != editionID {
			continue
		}
		sw := domain.SessionWithOptions{Session: sess, DateOptions: []domain.DateOption{}}
		for _, o := range s.options {
			if o.SessionID == sess.ID {
				sw.DateOptions = append(sw.DateOptions, o)
			}
		}
		sort.Slice(sw.DateOptions, func(i, j int) bool {
			a, b := sw.DateOptions[i], sw.DateOptions[j]
			if !a.DateTime.Equal(b.DateTime) {
				return a.DateTime.Before(b.DateTime)
			}
			return a.ID.String() < b.ID.String()
		})
		out = append(out, sw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *Store) DateOptionAvailability(_ context.Context, ids []uuid.UUID) ([]domain.Availability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.Availability{}
	for _, id := range ids {
		o, ok := s.options[id]
		if !ok {
			continue
		}
		out = append(out, domain.NewAvailability(id, o.MaxCapacity, s.optionCountLocked(id, uuid.Nil)))
	}
	return out, nil
}

func (s *Store) optionCountLocked(optionID, exclude uuid.UUID) int {
	n := 0
	for regID, opts := range s.choices {
		if regID == exclude || !s.regs[regID].Status.Occupies() {
			continue
		}
		for _, o := range opts {
			if o == optionID {
				n++
			}
		}
	}
	return n
}

func (s *Store) eventCountLocked(eventID, exclude uuid.UUID) int {
	n := 0
	for _, r := range s.eventRegs {
		if r.EventID == eventID && r.ID != exclude && r.Status.Occupies() {
			n++
		}
	}
	return n
}

func (s *Store) ListUpcomingEvents(_ context.Context, now time.Time) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.Event{}
	for _, e := range s.events {
		if e.Active && !e.DateTime.Before(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateTime.Before(out[j].DateTime) })
	return out, nil
}

func (s *Store) GetEvent(_ context.Context, id uuid.UUID) (*domain.Event, error) {
	const op = "memory.Store.GetEvent"

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	return &e, nil
}

func (s *Store) EventAvailability(_ context.Context, ids []uuid.UUID) ([]domain.Availability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.Availability{}
	for _, id := range ids {
		e, ok := s.events[id]
		if !ok {
			continue
		}
		out = append(out, domain.NewAvailability(id, e.MaxCapacity, s.eventCountLocked(id, uuid.Nil)))
	}
	return out, nil
}

func (s *Store) checkOptionsLocked(ids []uuid.UUID, exclude uuid.UUID) error {
	var full []uuid.UUID
	for _, id := range ids {
		o, ok := s.options[id]
		if !ok {
			return repository.ErrNotFound
		}
		if domain.NewAvailability(id, o.MaxCapacity, s.optionCountLocked(id, exclude)).IsFull {
			full = append(full, id)
		}
	}
	if len(full) > 0 {
		return &repository.CapacityError{UnitIDs: full}
	}
	return nil
}

func (s *Store) checkEventLocked(eventID, exclude uuid.UUID) error {
	e, ok := s.events[eventID]
	if !ok {
		return repository.ErrNotFound
	}
	if domain.NewAvailability(eventID, e.MaxCapacity, s.eventCountLocked(eventID, exclude)).IsFull {
		return &repository.CapacityError{UnitIDs: []uuid.UUID{eventID}}
	}
	return nil
}
