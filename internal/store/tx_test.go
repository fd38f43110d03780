package store_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/userhub/apiserver/internal/store"
)

func TestWithinTxCommits(t *testing.T) {
	deps := setupTest(t)
	db := store.NewDB(deps.db)

	deps.mock.ExpectBegin()
	deps.mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM users WHERE id = $1`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	deps.mock.ExpectCommit()

	err := db.WithinTx(context.Background(), nil, func(q store.Querier) error {
		_, err := q.ExecContext(context.Background(), `DELETE FROM users WHERE id = $1`, "x")
		return err
	})
	require.NoError(t, err)
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	deps := setupTest(t)
	db := store.NewDB(deps.db)
	boom := errors.New("boom")

	deps.mock.ExpectBegin()
	deps.mock.ExpectRollback()

	err := db.WithinTx(context.Background(), nil, func(q store.Querier) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}

func TestWithinTxRollsBackOnPanic(t *testing.T) {
	deps := setupTest(t)
	db := store.NewDB(deps.db)

	deps.mock.ExpectBegin()
	deps.mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = db.WithinTx(context.Background(), nil, func(q store.Querier) error {
			panic("unexpected")
		})
	})
}

func TestWithinTxClassifiesCommitErrors(t *testing.T) {
	deps := setupTest(t)
	db := store.NewDB(deps.db)

	deps.mock.ExpectBegin()
	deps.mock.ExpectCommit().WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	err := db.WithinTx(context.Background(), nil, func(q store.Querier) error {
		return nil
	})
	require.ErrorIs(t, err, store.ErrUniqueViolation)
}

func TestWithinTxBeginFailure(t *testing.T) {
	deps := setupTest(t)
	db := store.NewDB(deps.db)

	deps.mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	called := false
	err := db.WithinTx(context.Background(), nil, func(q store.Querier) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
}
