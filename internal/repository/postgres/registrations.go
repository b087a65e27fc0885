package postgresrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kirinyoku/studio-booking/internal/domain"
	"github.com/kirinyoku/studio-booking/internal/repository"
	"github.com/kirinyoku/studio-booking/internal/uow"
)

type RegistrationRepo struct {
	pool Pool
	db   DB
	uow  *uow.UoW
}

func (r *RegistrationRepo) With(db DB) *RegistrationRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *RegistrationRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// CreateEditionRegistration persists a pending registration and its date choices.
// The chosen date options are locked, their occupants counted and the rows
// inserted in one transaction, so concurrent submissions for the same option
// serialize and the later one observes the earlier one's seat.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - reg: the registration to persist; ID, Status and timestamps are filled in.
//
// Returns:
//   - error: *repository.CapacityError if any chosen option is full.
//   - error: repository.ErrNotFound if the edition or an option does not exist.
func (r *RegistrationRepo) CreateEditionRegistration(ctx context.Context, reg *domain.Registration) error {
	const op = "postgresrepo.RegistrationRepo.CreateEditionRegistration"

	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	reg.Status = domain.StatusPending

	err := inTx(ctx, r.db, r.uow, func(ctx context.Context, db DB) error {
		if err := lockAndCheckDateOptions(ctx, db, reg.DateOptionIDs, uuid.Nil); err != nil {
			return err
		}

		if err := db.QueryRow(ctx,
			`INSERT INTO programme_registrations
			   (id, edition_id, first_name, last_name, email, phone, whatsapp, message, consent, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING created_at, updated_at`,
			reg.ID, reg.EditionID, reg.FirstName, reg.LastName, reg.Email, reg.Phone,
			reg.WhatsApp, reg.Message, reg.Consent, reg.Status,
		).Scan(&reg.CreatedAt, &reg.UpdatedAt); err != nil {
			return translateDBErr(err)
		}

		if _, err := db.Exec(ctx,
			`INSERT INTO registration_date_choices (registration_id, date_option_id)
			 SELECT $1, unnest($2::uuid[])`,
			reg.ID, reg.DateOptionIDs,
		); err != nil {
			return translateDBErr(err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// lockAndCheckDateOptions locks the option rows in id order and fails with a
// CapacityError listing the options that have no room for one more occupant.
// The registration identified by exclude is not counted.
func lockAndCheckDateOptions(ctx context.Context, db DB, ids []uuid.UUID, exclude uuid.UUID) error {
	rows, err := db.Query(ctx,
		`SELECT id, max_capacity
		 FROM session_date_options
		 WHERE id = ANY($1)
		 ORDER BY id
		 FOR UPDATE`,
		ids,
	)
	if err != nil {
		return translateDBErr(err)
	}

	capacity, err := scanCapacities(rows)
	if err != nil {
		return translateDBErr(err)
	}
	if len(capacity) != len(ids) {
		return repository.ErrNotFound
	}

	// Counted in a separate statement so the snapshot is taken after the locks are held.
	countRows, err := db.Query(ctx,
		`SELECT c.date_option_id, COUNT(*)
		 FROM registration_date_choices c
		 JOIN programme_registrations r ON r.id = c.registration_id
		 WHERE c.date_option_id = ANY($1)
		   AND r.status <> 'cancelled'
		   AND r.id <> $2
		 GROUP BY c.date_option_id`,
		ids, exclude,
	)
	if err != nil {
		return translateDBErr(err)
	}

	counts, err := scanCounts(countRows)
	if err != nil {
		return translateDBErr(err)
	}

	return checkCapacity(ids, capacity, counts)
}

func lockAndCheckEvent(ctx context.Context, db DB, eventID uuid.UUID, exclude uuid.UUID) error {
	var capacity int
	if err := db.QueryRow(ctx,
		`SELECT max_capacity FROM yoga_events WHERE id = $1 FOR UPDATE`,
		eventID,
	).Scan(&capacity); err != nil {
		return translateDBErr(err)
	}

	var count int64
	if err := db.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM event_registrations
		 WHERE event_id = $1 AND status <> 'cancelled' AND id <> $2`,
		eventID, exclude,
	).Scan(&count); err != nil {
		return translateDBErr(err)
	}

	return checkCapacity(
		[]uuid.UUID{eventID},
		map[uuid.UUID]int{eventID: capacity},
		map[uuid.UUID]int{eventID: int(count)},
	)
}

func checkCapacity(ids []uuid.UUID, capacity, counts map[uuid.UUID]int) error {
	var full []uuid.UUID
	for _, id := range ids {
		if domain.NewAvailability(id, capacity[id], counts[id]).IsFull {
			full = append(full, id)
		}
	}
	if len(full) > 0 {
		return &repository.CapacityError{UnitIDs: full}
	}
	return nil
}

func scanCapacities(rows pgx.Rows) (map[uuid.UUID]int, error) {
	defer rows.Close()

	out := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			id       uuid.UUID
			capacity int
		)
		if err := rows.Scan(&id, &capacity); err != nil {
			return nil, err
		}
		out[id] = capacity
	}

	return out, rows.Err()
}

func scanCounts(rows pgx.Rows) (map[uuid.UUID]int, error) {
	defer rows.Close()

	out := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			id uuid.UUID
			n  int64
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = int(n)
	}

	return out, rows.Err()
}

// CreateEventRegistration persists a pending event registration after locking
// the event row and checking its capacity.
func (r *RegistrationRepo) CreateEventRegistration(ctx context.Context, reg *domain.EventRegistration) error {
	const op = "postgresrepo.RegistrationRepo.CreateEventRegistration"

	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	reg.Status = domain.StatusPending

	err := inTx(ctx, r.db, r.uow, func(ctx context.Context, db DB) error {
		if err := lockAndCheckEvent(ctx, db, reg.EventID, uuid.Nil); err != nil {
			return err
		}

		return translateDBErr(db.QueryRow(ctx,
			`INSERT INTO event_registrations
			   (id, event_id, first_name, last_name, email, phone, whatsapp, message, consent, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING created_at, updated_at`,
			reg.ID, reg.EventID, reg.FirstName, reg.LastName, reg.Email, reg.Phone,
			reg.WhatsApp, reg.Message, reg.Consent, reg.Status,
		).Scan(&reg.CreatedAt, &reg.UpdatedAt))
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

const registrationColumns = `r.id, r.edition_id, r.first_name, r.last_name, r.email, r.phone,
	r.whatsapp, r.message, r.consent, r.status, r.admin_notes, r.contacted,
	r.payment_requested_at, r.created_at, r.updated_at,
	COALESCE(array_agg(c.date_option_id ORDER BY c.date_option_id)
	         FILTER (WHERE c.date_option_id IS NOT NULL), '{}')`

func scanRegistration(row pgx.Row) (*domain.Registration, error) {
	var reg domain.Registration
	if err := row.Scan(
		&reg.ID, &reg.EditionID, &reg.FirstName, &reg.LastName, &reg.Email, &reg.Phone,
		&reg.WhatsApp, &reg.Message, &reg.Consent, &reg.Status, &reg.AdminNotes, &reg.Contacted,
		&reg.PaymentRequestedAt, &reg.CreatedAt, &reg.UpdatedAt, &reg.DateOptionIDs,
	); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *RegistrationRepo) GetRegistration(ctx context.Context, id uuid.UUID) (*domain.Registration, error) {
	const op = "postgresrepo.RegistrationRepo.GetRegistration"

	reg, err := getRegistration(ctx, r.handle(), id, false)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return reg, nil
}

func getRegistration(ctx context.Context, db DB, id uuid.UUID, forUpdate bool) (*domain.Registration, error) {
	if forUpdate {
		if _, err := db.Exec(ctx,
			`SELECT 1 FROM programme_registrations WHERE id = $1 FOR UPDATE`, id,
		); err != nil {
			return nil, err
		}
	}

	return scanRegistration(db.QueryRow(ctx,
		`SELECT `+registrationColumns+`
		 FROM programme_registrations r
		 LEFT JOIN registration_date_choices c ON c.registration_id = r.id
		 WHERE r.id = $1
		 GROUP BY r.id`,
		id,
	))
}

// ListRegistrations returns the registrations of an edition, newest first.
func (r *RegistrationRepo) ListRegistrations(ctx context.Context, editionID uuid.UUID) ([]domain.Registration, error) {
	const op = "postgresrepo.RegistrationRepo.ListRegistrations"

	rows, err := r.handle().Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM programme_registrations r
		 LEFT JOIN registration_date_choices c ON c.registration_id = r.id
		 WHERE r.edition_id = $1
		 GROUP BY r.id
		 ORDER BY r.created_at DESC, r.id`,
		editionID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	out := []domain.Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// UpdateRegistration applies an admin update and returns the registration before
// and after it. Moving a cancelled registration back to an occupying status
// re-checks the capacity of its date options.
func (r *RegistrationRepo) UpdateRegistration(
	ctx context.Context,
	id uuid.UUID,
	upd domain.RegistrationUpdate,
) (before, after *domain.Registration, err error) {
	const op = "postgresrepo.RegistrationRepo.UpdateRegistration"

	err = inTx(ctx, r.db, r.uow, func(ctx context.Context, db DB) error {
		cur, err := getRegistration(ctx, db, id, true)
		if err != nil {
			return translateDBErr(err)
		}
		before = cur

		if upd.Status != nil && !cur.Status.Occupies() && upd.Status.Occupies() {
			if err := lockAndCheckDateOptions(ctx, db, cur.DateOptionIDs, cur.ID); err != nil {
				return err
			}
		}

		if _, err := db.Exec(ctx,
			`UPDATE programme_registrations
			 SET status      = COALESCE($2, status),
			     admin_notes = COALESCE($3, admin_notes),
			     contacted   = COALESCE($4, contacted),
			     updated_at  = now()
			 WHERE id = $1`,
			id, upd.Status, upd.AdminNotes, upd.Contacted,
		); err != nil {
			return translateDBErr(err)
		}

		after, err = getRegistration(ctx, db, id, false)
		return translateDBErr(err)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%s:%w", op, err)
	}

	return before, after, nil
}

// StampPaymentRequested records the time of the latest payment request.
func (r *RegistrationRepo) StampPaymentRequested(ctx context.Context, id uuid.UUID, at time.Time) error {
	const op = "postgresrepo.RegistrationRepo.StampPaymentRequested"

	tag, err := r.handle().Exec(ctx,
		`UPDATE programme_registrations
		 SET payment_requested_at = $2, updated_at = now()
		 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// DeleteRegistration removes the date choices and then the registration itself.
func (r *RegistrationRepo) DeleteRegistration(ctx context.Context, id uuid.UUID) error {
	const op = "postgresrepo.RegistrationRepo.DeleteRegistration"

	err := inTx(ctx, r.db, r.uow, func(ctx context.Context, db DB) error {
		if _, err := db.Exec(ctx,
			`DELETE FROM registration_date_choices WHERE registration_id = $1`, id,
		); err != nil {
			return translateDBErr(err)
		}

		tag, err := db.Exec(ctx, `DELETE FROM programme_registrations WHERE id = $1`, id)
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

const eventRegistrationColumns = `id, event_id, first_name, last_name, email, phone,
	whatsapp, message, consent, status, admin_notes, contacted,
	payment_requested_at, created_at, updated_at`

func scanEventRegistration(row pgx.Row) (*domain.EventRegistration, error) {
	var reg domain.EventRegistration
	if err := row.Scan(
		&reg.ID, &reg.EventID, &reg.FirstName, &reg.LastName, &reg.Email, &reg.Phone,
		&reg.WhatsApp, &reg.Message, &reg.Consent, &reg.Status, &reg.AdminNotes, &reg.Contacted,
		&reg.PaymentRequestedAt, &reg.CreatedAt, &reg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &reg, nil
}

func getEventRegistration(ctx context.Context, db DB, id uuid.UUID, forUpdate bool) (*domain.EventRegistration, error) {
	q := `SELECT ` + eventRegistrationColumns + ` FROM event_registrations WHERE id = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	return scanEventRegistration(db.QueryRow(ctx, q, id))
}

func (r *RegistrationRepo) GetEventRegistration(ctx context.Context, id uuid.UUID) (*domain.EventRegistration, error) {
	const op = "postgresrepo.RegistrationRepo.GetEventRegistration"

	reg, err := getEventRegistration(ctx, r.handle(), id, false)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return reg, nil
}

func (r *RegistrationRepo) ListEventRegistrations(ctx context.Context, eventID uuid.UUID) ([]domain.EventRegistration, error) {
	const op = "postgresrepo.RegistrationRepo.ListEventRegistrations"

	rows, err := r.handle().Query(ctx,
		`SELECT `+eventRegistrationColumns+`
		 FROM event_registrations
		 WHERE event_id = $1
		 ORDER BY created_at DESC, id`,
		eventID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	out := []domain.EventRegistration{}
	for rows.Next() {
		reg, err := scanEventRegistration(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *RegistrationRepo) UpdateEventRegistration(
	ctx context.Context,
	id uuid.UUID,
	upd domain.RegistrationUpdate,
) (before, after *domain.EventRegistration, err error) {
	const op = "postgresrepo.RegistrationRepo.UpdateEventRegistration"

	err = inTx(ctx, r.db, r.uow, func(ctx context.Context, db DB) error {
		cur, err := getEventRegistration(ctx, db, id, true)
		if err != nil {
			return translateDBErr(err)
		}
		before = cur

		if upd.Status != nil && !cur.Status.Occupies() && upd.Status.Occupies() {
			if err := lockAndCheckEvent(ctx, db, cur.EventID, cur.ID); err != nil {
				return err
			}
		}

		after, err = scanEventRegistration(db.QueryRow(ctx,
			`UPDATE event_registrations
			 SET status      = COALESCE($2, status),
			     admin_notes = COALESCE($3, admin_notes),
			     contacted   = COALESCE($4, contacted),
			     updated_at  = now()
			 WHERE id = $1
			 RETURNING `+eventRegistrationColumns,
			id, upd.Status, upd.AdminNotes, upd.Contacted,
		))
		return translateDBErr(err)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%s:%w", op, err)
	}

	return before, after, nil
}

func (r *RegistrationRepo) StampEventPaymentRequested(ctx context.Context, id uuid.UUID, at time.Time) error {
	const op = "postgresrepo.RegistrationRepo.StampEventPaymentRequested"

	tag, err := r.handle().Exec(ctx,
		`UPDATE event_registrations
		 SET payment_requested_at = $2, updated_at = now()
		 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *RegistrationRepo) DeleteEventRegistration(ctx context.Context, id uuid.UUID) error {
	const op = "postgresrepo.RegistrationRepo.DeleteEventRegistration"

	tag, err := r.handle().Exec(ctx, `DELETE FROM event_registrations WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}
