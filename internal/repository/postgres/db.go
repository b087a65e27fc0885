package postgresrepo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirinyoku/studio-booking/internal/uow"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Pool is a DB that can open transactions. *pgxpool.Pool satisfies it.
type Pool interface {
	DB
	uow.Beginner
}

type Store struct {
	pool Pool
	uow  *uow.UoW
}

func NewStore(pool Pool, opts ...uow.Option) *Store {
	return &Store{
		pool: pool,
		uow:  uow.New(pool, opts...),
	}
}

// UoW exposes the transaction runner bound to the store's pool.
func (s *Store) UoW() *uow.UoW { return s.uow }

func (s *Store) Catalog() *CatalogRepo { return &CatalogRepo{pool: s.pool} }
func (s *Store) Admin() *AdminRepo     { return &AdminRepo{pool: s.pool, uow: s.uow} }

func (s *Store) Registrations() *RegistrationRepo {
	return &RegistrationRepo{pool: s.pool, uow: s.uow}
}

// inTx runs fn on the bound handle when the repository was created with With,
// otherwise in a fresh transaction.
func inTx(ctx context.Context, db DB, u *uow.UoW, fn func(ctx context.Context, db DB) error) error {
	if db != nil {
		return fn(ctx, db)
	}

	return translateDBErr(u.Do(ctx, func(ctx context.Context, tx pgx.Tx, _ func(uow.AfterCommit)) error {
		return fn(ctx, tx)
	}))
}
