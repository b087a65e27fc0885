package postgresrepo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kirinyoku/studio-booking/internal/domain"
)

type CatalogRepo struct {
	pool Pool
	db   DB
}

func (r *CatalogRepo) With(db DB) *CatalogRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *CatalogRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const editionColumns = `id, programme_key, title, start_date, max_capacity, active,
	sessions_mandatory, edition_type, created_at, updated_at`

func scanEdition(row pgx.Row) (*domain.Edition, error) {
	var e domain.Edition
	if err := row.Scan(
		&e.ID, &e.ProgrammeKey, &e.Title, &e.StartDate, &e.MaxCapacity, &e.Active,
		&e.SessionsMandatory, &e.Type, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEdition retrieves an edition by its ID regardless of its active flag.
//
// Returns:
//   - *domain.Edition: the edition when found.
//   - error: repository.ErrNotFound if the edition does not exist.
func (r *CatalogRepo) GetEdition(ctx context.Context, id uuid.UUID) (*domain.Edition, error) {
	const op = "postgresrepo.CatalogRepo.GetEdition"

	e, err := scanEdition(r.handle().QueryRow(ctx,
		`SELECT `+editionColumns+`
		 FROM programme_editions
		 WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return e, nil
}

// ListActiveEditionsByKey returns the active editions of a programme ordered by start date.
// An unknown key yields an empty slice.
func (r *CatalogRepo) ListActiveEditionsByKey(ctx context.Context, key string) ([]domain.Edition, error) {
	const op = "postgresrepo.CatalogRepo.ListActiveEditionsByKey"

	rows, err := r.handle().Query(ctx,
		`SELECT `+editionColumns+`
		 FROM programme_editions
		 WHERE programme_key = $1 AND active
		 ORDER BY start_date, id`,
		key,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.Edition
	for rows.Next() {
		e, err := scanEdition(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// ListSessions returns the sessions of an edition in session-number order, each
// with its date options in date-time order.
func (r *CatalogRepo) ListSessions(ctx context.Context, editionID uuid.UUID) ([]domain.SessionWithOptions, error) {
	const op = "postgresrepo.CatalogRepo.ListSessions"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, edition_id, session_number, title, duration_minutes
		 FROM programme_sessions
		 WHERE edition_id = $1
		 ORDER BY session_number`,
		editionID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var sessions []domain.SessionWithOptions
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var s domain.SessionWithOptions
		if err := rows.Scan(&s.ID, &s.EditionID, &s.Number, &s.Title, &s.DurationMinutes); err != nil {
			return nil, wrapDBErr(op, err)
		}
		s.DateOptions = []domain.DateOption{}
		index[s.ID] = len(sessions)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}
	rows.Close()

	if len(sessions) == 0 {
		return sessions, nil
	}

	optRows, err := db.Query(ctx,
		`SELECT o.id, o.session_id, o.date_time, o.location, o.max_capacity
		 FROM session_date_options o
		 JOIN programme_sessions s ON s.id = o.session_id
		 WHERE s.edition_id = $1
		 ORDER BY o.date_time, o.id`,
		editionID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var o domain.DateOption
		if err := optRows.Scan(&o.ID, &o.SessionID, &o.DateTime, &o.Location, &o.MaxCapacity); err != nil {
			return nil, wrapDBErr(op, err)
		}
		if i, ok := index[o.SessionID]; ok {
			sessions[i].DateOptions = append(sessions[i].DateOptions, o)
		}
	}
	if err := optRows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return sessions, nil
}

// DateOptionAvailability counts non-cancelled occupants per date option.
// Unknown IDs are omitted; an empty input yields an empty result.
func (r *CatalogRepo) DateOptionAvailability(ctx context.Context, ids []uuid.UUID) ([]domain.Availability, error) {
	const op = "postgresrepo.CatalogRepo.DateOptionAvailability"

	if len(ids) == 0 {
		return []domain.Availability{}, nil
	}

	rows, err := r.handle().Query(ctx,
		`SELECT o.id, o.max_capacity,
		        COUNT(r.id) FILTER (WHERE r.status <> 'cancelled')
		 FROM session_date_options o
		 LEFT JOIN registration_date_choices c ON c.date_option_id = o.id
		 LEFT JOIN programme_registrations r ON r.id = c.registration_id
		 WHERE o.id = ANY($1)
		 GROUP BY o.id, o.max_capacity`,
		ids,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := scanAvailability(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

const eventColumns = `id, title, description, date_time, location, max_capacity,
	price_cents, active, created_at, updated_at`

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var e domain.Event
	if err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.DateTime, &e.Location, &e.MaxCapacity,
		&e.PriceCents, &e.Active, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

func collectEvents(rows pgx.Rows) ([]domain.Event, error) {
	defer rows.Close()

	out := []domain.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}

	return out, rows.Err()
}

// ListUpcomingEvents returns active events dated at or after now, soonest first.
func (r *CatalogRepo) ListUpcomingEvents(ctx context.Context, now time.Time) ([]domain.Event, error) {
	const op = "postgresrepo.CatalogRepo.ListUpcomingEvents"

	rows, err := r.handle().Query(ctx,
		`SELECT `+eventColumns+`
		 FROM yoga_events
		 WHERE active AND date_time >= $1
		 ORDER BY date_time, id`,
		now,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectEvents(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// GetEvent retrieves an event by its ID regardless of its active flag.
func (r *CatalogRepo) GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	const op = "postgresrepo.CatalogRepo.GetEvent"

	e, err := scanEvent(r.handle().QueryRow(ctx,
		`SELECT `+eventColumns+`
		 FROM yoga_events
		 WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return e, nil
}

// EventAvailability counts non-cancelled registrations per event.
func (r *CatalogRepo) EventAvailability(ctx context.Context, ids []uuid.UUID) ([]domain.Availability, error) {
	const op = "postgresrepo.CatalogRepo.EventAvailability"

	if len(ids) == 0 {
		return []domain.Availability{}, nil
	}

	rows, err := r.handle().Query(ctx,
		`SELECT e.id, e.max_capacity,
		        COUNT(r.id) FILTER (WHERE r.status <> 'cancelled')
		 FROM yoga_events e
		 LEFT JOIN event_registrations r ON r.event_id = e.id
		 WHERE e.id = ANY($1)
		 GROUP BY e.id, e.max_capacity`,
		ids,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := scanAvailability(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func scanAvailability(rows pgx.Rows) ([]domain.Availability, error) {
	defer rows.Close()

	out := []domain.Availability{}
	for rows.Next() {
		var (
			id       uuid.UUID
			capacity int
			count    int64
		)
		if err := rows.Scan(&id, &capacity, &count); err != nil {
			return nil, err
		}
		out = append(out, domain.NewAvailability(id, capacity, int(count)))
	}

	return out, rows.Err()
}
