package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Querier is the query surface shared by *sql.DB and *sql.Tx. Repository
// methods take one explicitly so callers decide which connection or
// transaction a statement runs on.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// DB wraps the connection pool and runs units of work in transactions.
type DB struct {
	pool *sql.DB
}

func NewDB(pool *sql.DB) *DB {
	return &DB{pool: pool}
}

// Conn returns the underlying pool.
func (d *DB) Conn() *sql.DB {
	return d.pool
}

// Ping checks that the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.pool.PingContext(ctx)
}

// WithinTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back when fn fails or panics.
func (d *DB) WithinTx(ctx context.Context, opts *sql.TxOptions, fn func(q Querier) error) (err error) {
	tx, err := d.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", classify(err))
	}
	return nil
}
