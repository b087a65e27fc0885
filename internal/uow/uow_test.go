package uow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

var readCommitted = pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}

func TestUoW_CommitsAndRunsHooks(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec("UPDATE things").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	hooked := false
	err = New(mock).Do(context.Background(), func(ctx context.Context, tx pgx.Tx, after func(AfterCommit)) error {
		after(func(context.Context) { hooked = true })
		_, err := tx.Exec(ctx, "UPDATE things SET x = 1")
		return err
	})
	require.NoError(t, err)
	require.True(t, hooked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUoW_RollsBackWithoutHooks(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("boom")
	mock.ExpectBeginTx(readCommitted)
	mock.ExpectRollback()

	hooked := false
	err = New(mock).Do(context.Background(), func(_ context.Context, _ pgx.Tx, after func(AfterCommit)) error {
		after(func(context.Context) { hooked = true })
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, hooked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUoW_RetriesSerializationFailures(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	serializable := pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadWrite}
	mock.ExpectBeginTx(serializable)
	mock.ExpectRollback()
	mock.ExpectBeginTx(serializable)
	mock.ExpectCommit()

	attempts := 0
	err = New(mock, WithBackoff(time.Millisecond)).DoWithOpts(context.Background(), &serializable,
		func(context.Context, pgx.Tx, func(AfterCommit)) error {
			attempts++
			if attempts == 1 {
				return &pgconn.PgError{Code: "40001"}
			}
			return nil
		})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUoW_GivesUpAfterAttempts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	for i := 0; i < 2; i++ {
		mock.ExpectBeginTx(readCommitted)
		mock.ExpectRollback()
	}

	attempts := 0
	err = New(mock, WithAttempts(2), WithBackoff(time.Millisecond)).Do(context.Background(),
		func(context.Context, pgx.Tx, func(AfterCommit)) error {
			attempts++
			return &pgconn.PgError{Code: "40P01"}
		})
	require.True(t, IsRetryable(err))
	require.Equal(t, 2, attempts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(&pgconn.PgError{Code: "40001"}))
	require.True(t, IsRetryable(&pgconn.PgError{Code: "40P01"}))
	require.False(t, IsRetryable(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsRetryable(errors.New("other")))
}
