package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/kirinyoku/studio-booking/internal/domain"
	"github.com/kirinyoku/studio-booking/internal/repository"
)

func (s *Store) ListEditions(_ context.Context) ([]domain.Edition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Edition, 0, len(s.editions))
	for _, e := range s.editions {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

func (s *Store) CreateEdition(_ context.Context, draft domain.EditionDraft) (*domain.Edition, error) {
	const op = "memory.Store.CreateEdition"

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int]bool, len(draft.Sessions))
	for _, sd := range draft.Sessions {
		if seen[sd.Number] {
			return nil, fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
		seen[sd.Number] = true
	}

	now := s.now()
	e := domain.Edition{
		ID:                uuid.New(),
		ProgrammeKey:      draft.ProgrammeKey,
		Title:             draft.Title,
		StartDate:         draft.StartDate,
		MaxCapacity:       draft.MaxCapacity,
		Active:            draft.Active,
		SessionsMandatory: draft.SessionsMandatory,
		Type:              draft.Type,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.editions[e.ID] = e

	for _, sd := range draft.Sessions {
		sess := domain.Session{
			ID:              uuid.New(),
			EditionID:       e.ID,
			Number:          sd.Number,
			Title:           sd.Title,
			DurationMinutes: sd.DurationMinutes,
		}
		s.sessions[sess.ID] = sess
		for _, od := range sd.DateOptions {
			o := domain.DateOption{
				ID:          uuid.New(),
				SessionID:   sess.ID,
				DateTime:    od.DateTime,
				Location:    od.Location,
				MaxCapacity: od.MaxCapacity,
			}
			s.options[o.ID] = o
		}
	}

	return &e, nil
}

func (s *Store) UpdateEdition(_ context.Context, id uuid.UUID, upd domain.EditionUpdate) (*domain.Edition, error) {
	const op = "memory.Store.UpdateEdition"

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.editions[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	if upd.Title != nil {
		e.Title = *upd.Title
	}
	if upd.StartDate != nil {
		e.StartDate = *upd.StartDate
	}
	if upd.MaxCapacity != nil {
		e.MaxCapacity = *upd.MaxCapacity
	}
	if upd.Active != nil {
		e.Active = *upd.Active
	}
	if upd.SessionsMandatory != nil {
		e.SessionsMandatory = *upd.SessionsMandatory
	}
	if upd.Type != nil {
		e.Type = *upd.Type
	}
	e.UpdatedAt = s.now()
	s.editions[id] = e

	return &e, nil
}

func (s *Store) DeleteEdition(_ context.Context, id uuid.UUID) error {
	const op = "memory.Store.DeleteEdition"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.editions[id]; !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	for regID, r := range s.regs {
		if r.EditionID == id {
			delete(s.choices, regID)
			delete(s.regs, regID)
		}
	}
	for sessID, sess := range s.sessions {
		if sess.EditionID != id {
			continue
		}
		for optID, o := range s.options {
			if o.SessionID == sessID {
				delete(s.options, optID)
			}
		}
		delete(s.sessions, sessID)
	}
	delete(s.editions, id)

	return nil
}

func (s *Store) DateOptionEdition(_ context.Context, optionID uuid.UUID) (*domain.Edition, error) {
	const op = "memory.Store.DateOptionEdition"

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.options[optionID]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	e := s.editions[s.sessions[o.SessionID].EditionID]
	return &e, nil
}

func (s *Store) UpdateDateOption(_ context.Context, id uuid.UUID, upd domain.DateOptionUpdate) (*domain.DateOption, error) {
	const op = "memory.Store.UpdateDateOption"

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.options[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	if upd.DateTime != nil {
		o.DateTime = *upd.DateTime
	}
	if upd.Location != nil {
		o.Location = *upd.Location
	}
	if upd.MaxCapacity != nil {
		o.MaxCapacity = *upd.MaxCapacity
	}
	s.options[id] = o

	return &o, nil
}

func (s *Store) ListEvents(_ context.Context) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateTime.After(out[j].DateTime) })
	return out, nil
}

func (s *Store) CreateEvent(_ context.Context, ev *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	now := s.now()
	ev.CreatedAt, ev.UpdatedAt = now, now
	s.events[ev.ID] = *ev

	return nil
}

func (s *Store) UpdateEvent(_ context.Context, id uuid.UUID, upd domain.EventUpdate) (*domain.Event, error) {
	const op = "memory.Store.UpdateEvent"

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	if upd.Title != nil {
		e.Title = *upd.Title
	}
	if upd.Description != nil {
		e.Description = *upd.Description
	}
	if upd.DateTime != nil {
		e.DateTime = *upd.DateTime
	}
	if upd.Location != nil {
		e.Location = *upd.Location
	}
	if upd.MaxCapacity != nil {
		e.MaxCapacity = *upd.MaxCapacity
	}
	if upd.PriceCents != nil {
		v := *upd.PriceCents
		e.PriceCents = &v
	}
	if upd.Active != nil {
		e.Active = *upd.Active
	}
	e.UpdatedAt = s.now()
	s.events[id] = e

	return &e, nil
}

func (s *Store) DeleteEvent(_ context.Context, id uuid.UUID) error {
	const op = "memory.Store.DeleteEvent"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	for regID, r := range s.eventRegs {
		if r.EventID == id {
			delete(s.eventRegs, regID)
		}
	}
	delete(s.events, id)

	return nil
}
