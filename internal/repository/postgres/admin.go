package postgresrepo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kirinyoku/studio-booking/internal/domain"
	"github.com/kirinyoku/studio-booking/internal/repository"
	"github.com/kirinyoku/studio-booking/internal/uow"
)

type AdminRepo struct {
	pool Pool
	db   DB
	uow  *uow.UoW
}

func (r *AdminRepo) With(db DB) *AdminRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *AdminRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *AdminRepo) ListEditions(ctx context.Context) ([]domain.Edition, error) {
	const op = "postgresrepo.AdminRepo.ListEditions"

	rows, err := r.handle().Query(ctx,
		`SELECT `+editionColumns+`
		 FROM programme_editions
		 ORDER BY start_date DESC, id`,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	out := []domain.Edition{}
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

// CreateEdition inserts an edition together with its sessions and their date
// options in a single transaction.
func (r *AdminRepo) CreateEdition(ctx context.Context, draft domain.EditionDraft) (*domain.Edition, error) {
	const op = "postgresrepo.AdminRepo.CreateEdition"

	var created *domain.Edition

	err := inTx(ctx, r.db, r.uow, func(ctx context.Context, db DB) error {
		e, err := scanEdition(db.QueryRow(ctx,
			`INSERT INTO programme_editions
			   (id, programme_key, title, start_date, max_capacity, active, sessions_mandatory, edition_type)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING `+editionColumns,
			uuid.New(), draft.ProgrammeKey, draft.Title, draft.StartDate, draft.MaxCapacity,
			draft.Active, draft.SessionsMandatory, draft.Type,
		))
		if err != nil {
			return translateDBErr(err)
		}

		batch := &pgx.Batch{}
		for _, s := range draft.Sessions {
			sessionID := uuid.New()
			batch.Queue(
				`INSERT INTO programme_sessions (id, edition_id, session_number, title, duration_minutes)
				 VALUES ($1, $2, $3, $4, $5)`,
				sessionID, e.ID, s.Number, s.Title, s.DurationMinutes,
			)
			for _, o := range s.DateOptions {
				batch.Queue(
					`INSERT INTO session_date_options (id, session_id, date_time, location, max_capacity)
					 VALUES ($1, $2, $3, $4, $5)`,
					uuid.New(), sessionID, o.DateTime, o.Location, o.MaxCapacity,
				)
			}
		}
		if batch.Len() > 0 {
			if err := db.SendBatch(ctx, batch).Close(); err != nil {
				return translateDBErr(err)
			}
		}

		created = e
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return created, nil
}

func (r *AdminRepo) UpdateEdition(ctx context.Context, id uuid.UUID, upd domain.EditionUpdate) (*domain.Edition, error) {
	const op = "postgresrepo.AdminRepo.UpdateEdition"

	e, err := scanEdition(r.handle().QueryRow(ctx,
		`UPDATE programme_editions
		 SET title              = COALESCE($2, title),
		     start_date         = COALESCE($3, start_date),
		     max_capacity       = COALESCE($4, max_capacity),
		     active             = COALESCE($5, active),
		     sessions_mandatory = COALESCE($6, sessions_mandatory),
		     edition_type       = COALESCE($7, edition_type),
		     updated_at         = now()
		 WHERE id = $1
		 RETURNING `+editionColumns,
		id, upd.Title, upd.StartDate, upd.MaxCapacity, upd.Active, upd.SessionsMandatory, upd.Type,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return e, nil
}

// DeleteEdition hard-deletes an edition. Date choices and registrations go
// first; sessions and date options follow through ON DELETE CASCADE.
func (r *AdminRepo) DeleteEdition(ctx context.Context, id uuid.UUID) error {
	const op = "postgresrepo.AdminRepo.DeleteEdition"

	err := inTx(ctx, r.db, r.uow, func(ctx context.Context, db DB) error {
		if _, err := db.Exec(ctx,
			`DELETE FROM registration_date_choices c
			 USING programme_registrations r
			 WHERE r.id = c.registration_id AND r.edition_id = $1`,
			id,
		); err != nil {
			return translateDBErr(err)
		}

		if _, err := db.Exec(ctx,
			`DELETE FROM programme_registrations WHERE edition_id = $1`, id,
		); err != nil {
			return translateDBErr(err)
		}

		tag, err := db.Exec(ctx, `DELETE FROM programme_editions WHERE id = $1`, id)
		if err != nil {
			return translateDBErr(err)
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// DateOptionEdition returns the edition owning a date option.
func (r *AdminRepo) DateOptionEdition(ctx context.Context, optionID uuid.UUID) (*domain.Edition, error) {
	const op = "postgresrepo.AdminRepo.DateOptionEdition"

	e, err := scanEdition(r.handle().QueryRow(ctx,
		`SELECT e.id, e.programme_key, e.title, e.start_date, e.max_capacity, e.active,
		        e.sessions_mandatory, e.edition_type, e.created_at, e.updated_at
		 FROM session_date_options o
		 JOIN programme_sessions s ON s.id = o.session_id
		 JOIN programme_editions e ON e.id = s.edition_id
		 WHERE o.id = $1`,
		optionID,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return e, nil
}

func (r *AdminRepo) UpdateDateOption(ctx context.Context, id uuid.UUID, upd domain.DateOptionUpdate) (*domain.DateOption, error) {
	const op = "postgresrepo.AdminRepo.UpdateDateOption"

	var o domain.DateOption
	if err := r.handle().QueryRow(ctx,
		`UPDATE session_date_options
		 SET date_time    = COALESCE($2, date_time),
		     location     = COALESCE($3, location),
		     max_capacity = COALESCE($4, max_capacity)
		 WHERE id = $1
		 RETURNING id, session_id, date_time, location, max_capacity`,
		id, upd.DateTime, upd.Location, upd.MaxCapacity,
	).Scan(&o.ID, &o.SessionID, &o.DateTime, &o.Location, &o.MaxCapacity); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &o, nil
}

func (r *AdminRepo) ListEvents(ctx context.Context) ([]domain.Event, error) {
	const op = "postgresrepo.AdminRepo.ListEvents"

	rows, err := r.handle().Query(ctx,
		`SELECT `+eventColumns+`
		 FROM yoga_events
		 ORDER BY date_time DESC, id`,
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

// CreateEvent inserts ev, filling in its ID and timestamps.
func (r *AdminRepo) CreateEvent(ctx context.Context, ev *domain.Event) error {
	const op = "postgresrepo.AdminRepo.CreateEvent"

	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}

	if err := r.handle().QueryRow(ctx,
		`INSERT INTO yoga_events
		   (id, title, description, date_time, location, max_capacity, price_cents, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at, updated_at`,
		ev.ID, ev.Title, ev.Description, ev.DateTime, ev.Location, ev.MaxCapacity, ev.PriceCents, ev.Active,
	).Scan(&ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *AdminRepo) UpdateEvent(ctx context.Context, id uuid.UUID, upd domain.EventUpdate) (*domain.Event, error) {
	const op = "postgresrepo.AdminRepo.UpdateEvent"

	e, err := scanEvent(r.handle().QueryRow(ctx,
		`UPDATE yoga_events
		 SET title        = COALESCE($2, title),
		     description  = COALESCE($3, description),
		     date_time    = COALESCE($4, date_time),
		     location     = COALESCE($5, location),
		     max_capacity = COALESCE($6, max_capacity),
		     price_cents  = COALESCE($7, price_cents),
		     active       = COALESCE($8, active),
		     updated_at   = now()
		 WHERE id = $1
		 RETURNING `+eventColumns,
		id, upd.Title, upd.Description, upd.DateTime, upd.Location, upd.MaxCapacity, upd.PriceCents, upd.Active,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return e, nil
}

// DeleteEvent hard-deletes an event and its registrations.
func (r *AdminRepo) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	const op = "postgresrepo.AdminRepo.DeleteEvent"

	err := inTx(ctx, r.db, r.uow, func(ctx context.Context, db DB) error {
		if _, err := db.Exec(ctx, `DELETE FROM event_registrations WHERE event_id = $1`, id); err != nil {
			return translateDBErr(err)
		}

		tag, err := db.Exec(ctx, `DELETE FROM yoga_events WHERE id = $1`, id)
		if err != nil {
			return translateDBErr(err)
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}
