package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/studio-booking/internal/domain"
	"github.com/kirinyoku/studio-booking/internal/repository"
)

// CreateEditionRegistration checks capacity, stores the registration and then
// its date choices. When the choice write fails the registration is deleted
// again before the error is returned.
func (s *Store) CreateEditionRegistration(_ context.Context, reg *domain.Registration) error {
	const op = "memory.Store.CreateEditionRegistration"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.editions[reg.EditionID]; !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	if err := s.checkOptionsLocked(reg.DateOptionIDs, uuid.Nil); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	now := s.now()
	reg.Status = domain.StatusPending
	reg.CreatedAt, reg.UpdatedAt = now, now

	stored := *reg
	stored.DateOptionIDs = nil
	s.regs[reg.ID] = stored

	if err := s.writeChoicesLocked(reg.ID, reg.DateOptionIDs); err != nil {
		delete(s.regs, reg.ID)
		return fmt.Errorf("%s: date choices: %w", op, err)
	}

	return nil
}

func (s *Store) writeChoicesLocked(regID uuid.UUID, ids []uuid.UUID) error {
	if s.choiceErr != nil {
		return s.choiceErr
	}
	s.choices[regID] = append([]uuid.UUID(nil), ids...)
	return nil
}

func (s *Store) CreateEventRegistration(_ context.Context, reg *domain.EventRegistration) error {
	const op = "memory.Store.CreateEventRegistration"

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkEventLocked(reg.EventID, uuid.Nil); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	now := s.now()
	reg.Status = domain.StatusPending
	reg.CreatedAt, reg.UpdatedAt = now, now
	s.eventRegs[reg.ID] = *reg

	return nil
}

func (s *Store) registrationLocked(id uuid.UUID) (*domain.Registration, bool) {
	r, ok := s.regs[id]
	if !ok {
		return nil, false
	}
	r.DateOptionIDs = append([]uuid.UUID{}, s.choices[id]...)
	sort.Slice(r.DateOptionIDs, func(i, j int) bool {
		return r.DateOptionIDs[i].String() < r.DateOptionIDs[j].String()
	})
	return &r, true
}

func (s *Store) GetRegistration(_ context.Context, id uuid.UUID) (*domain.Registration, error) {
	const op = "memory.Store.GetRegistration"

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.registrationLocked(id)
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	return r, nil
}

func (s *Store) ListRegistrations(_ context.Context, editionID uuid.UUID) ([]domain.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.Registration{}
	for id, r := range s.regs {
		if r.EditionID == editionID {
			full, _ := s.registrationLocked(id)
			out = append(out, *full)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func applyUpdate(status *domain.RegistrationStatus, notes **string, contacted *bool, upd domain.RegistrationUpdate) {
	if upd.Status != nil {
		*status = *upd.Status
	}
	if upd.AdminNotes != nil {
		v := *upd.AdminNotes
		*notes = &v
	}
	if upd.Contacted != nil {
		*contacted = *upd.Contacted
	}
}

func (s *Store) UpdateRegistration(
	_ context.Context,
	id uuid.UUID,
	upd domain.RegistrationUpdate,
) (before, after *domain.Registration, err error) {
	const op = "memory.Store.UpdateRegistration"

	s.mu.Lock()
	defer s.mu.Unlock()

	before, ok := s.registrationLocked(id)
	if !ok {
		return nil, nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	if upd.Status != nil && !before.Status.Occupies() && upd.Status.Occupies() {
		if err := s.checkOptionsLocked(before.DateOptionIDs, id); err != nil {
			return nil, nil, fmt.Errorf("%s:%w", op, err)
		}
	}

	r := s.regs[id]
	applyUpdate(&r.Status, &r.AdminNotes, &r.Contacted, upd)
	r.UpdatedAt = s.now()
	s.regs[id] = r

	after, _ = s.registrationLocked(id)
	return before, after, nil
}

func (s *Store) StampPaymentRequested(_ context.Context, id uuid.UUID, at time.Time) error {
	const op = "memory.Store.StampPaymentRequested"

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.regs[id]
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	r.PaymentRequestedAt = &at
	r.UpdatedAt = s.now()
	s.regs[id] = r
	return nil
}

func (s *Store) DeleteRegistration(_ context.Context, id uuid.UUID) error {
	const op = "memory.Store.DeleteRegistration"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.regs[id]; !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	delete(s.choices, id)
	delete(s.regs, id)
	return nil
}

func (s *Store) GetEventRegistration(_ context.Context, id uuid.UUID) (*domain.EventRegistration, error) {
	const op = "memory.Store.GetEventRegistration"

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.eventRegs[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	return &r, nil
}

func (s *Store) ListEventRegistrations(_ context.Context, eventID uuid.UUID) ([]domain.EventRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.EventRegistration{}
	for _, r := range s.eventRegs {
		if r.EventID == eventID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateEventRegistration(
	_ context.Context,
	id uuid.UUID,
	upd domain.RegistrationUpdate,
) (before, after *domain.EventRegistration, err error) {
	const op = "memory.Store.UpdateEventRegistration"

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.eventRegs[id]
	if !ok {
		return nil, nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	if upd.Status != nil && !cur.Status.Occupies() && upd.Status.Occupies() {
		if err := s.checkEventLocked(cur.EventID, id); err != nil {
			return nil, nil, fmt.Errorf("%s:%w", op, err)
		}
	}

	next := cur
	applyUpdate(&next.Status, &next.AdminNotes, &next.Contacted, upd)
	next.UpdatedAt = s.now()
	s.eventRegs[id] = next

	return &cur, &next, nil
}

func (s *Store) StampEventPaymentRequested(_ context.Context, id uuid.UUID, at time.Time) error {
	const op = "memory.Store.StampEventPaymentRequested"

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.eventRegs[id]
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	r.PaymentRequestedAt = &at
	r.UpdatedAt = s.now()
	s.eventRegs[id] = r
	return nil
}

func (s *Store) DeleteEventRegistration(_ context.Context, id uuid.UUID) error {
	const op = "memory.Store.DeleteEventRegistration"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.eventRegs[id]; !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	delete(s.eventRegs, id)
	return nil
}
