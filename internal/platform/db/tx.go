package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const txKey contextKey = "db_tx"

// Queryable is the subset of pgx operations repositories need; it is
// satisfied by *pgxpool.Pool, *pgxpool.Conn, and pgx.Tx so the same query
// code runs inside or outside a transaction.
type Queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// TxFromContext returns the transaction injected by WithTx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}

// Conn resolves the Queryable for ctx: the ambient transaction when one is
// open, otherwise the pool.
func Conn(ctx context.Context, pool *pgxpool.Pool) Queryable {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// TxManager runs a function inside a transaction boundary. The pg
// implementation opens a real transaction; tests substitute a serializing
// fake.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PGTxManager is the pgxpool-backed TxManager.
type PGTxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager creates a TxManager over pool.
func NewTxManager(pool *pgxpool.Pool) *PGTxManager {
	return &PGTxManager{pool: pool}
}

// WithTx begins a transaction, injects it into the context for repositories
// to pick up, and commits when fn succeeds. Nested calls reuse the ambient
// transaction instead of opening a second one.
func (m *PGTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
