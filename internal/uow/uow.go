package uow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 20 * time.Millisecond
)

// Beginner starts transactions. *pgxpool.Pool and pgxmock pools satisfy it.
type Beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// UoW runs functions inside a single transaction and retries serialization
// failures and deadlocks.
type UoW struct {
	db       Beginner
	attempts int
	backoff  time.Duration
}

type Option func(*UoW)

func WithAttempts(n int) Option {
	return func(u *UoW) {
		if n > 0 {
			u.attempts = n
		}
	}
}

func WithBackoff(d time.Duration) Option {
	return func(u *UoW) { u.backoff = d }
}

func New(db Beginner, opts ...Option) *UoW {
	u := &UoW{db: db, attempts: defaultAttempts, backoff: defaultBackoff}
	for _, o := range opts {
		o(u)
	}
	return u
}

// Do runs fn in a read-committed, read-write transaction.
func (u *UoW) Do(
	ctx context.Context,
	fn func(ctx context.Context, tx pgx.Tx, after func(AfterCommit)) error,
) error {
	return u.DoWithOpts(ctx, nil, fn)
}

// DoWithOpts runs fn inside the transaction with the given options. After a successful commit,
// it executes all after-commit hooks registered by the last attempt.
func (u *UoW) DoWithOpts(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx pgx.Tx, after func(AfterCommit)) error,
) error {
	const op = "uow.DoWithOpts"

	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}
	if opts != nil {
		txOpts = *opts
	}

	var err error
	for attempt := 1; attempt <= u.attempts; attempt++ {
		var hooks []AfterCommit

		err = u.runOnce(ctx, txOpts, func(ctx context.Context, tx pgx.Tx) error {
			return fn(ctx, tx, func(h AfterCommit) {
				hooks = append(hooks, h)
			})
		})
		if err == nil {
			for _, h := range hooks {
				h(ctx)
			}
			return nil
		}

		if !IsRetryable(err) || attempt == u.attempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s:%w", op, ctx.Err())
		case <-time.After(u.backoff * time.Duration(attempt)):
		}
	}

	return err
}

func (u *UoW) runOnce(
	ctx context.Context,
	txOpts pgx.TxOptions,
	fn func(ctx context.Context, tx pgx.Tx) error,
) error {
	tx, err := u.db.BeginTx(ctx, txOpts)
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// IsRetryable reports whether err is a serialization failure or a deadlock.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return true
		}
	}

	return false
}
