package repository

import (
	"context"
	"database/sql"
)

// txKey is the context key under which an open transaction travels between
// repository calls that participate in the same atomic unit of work.
type txKey struct{}

// WithTx runs fn inside a database transaction. The transaction is stored in
// the context passed to fn, and every repository method that supports
// transactional execution picks it up from there; calls made with the plain
// context hit the pool directly. Nested calls reuse the outer transaction.
// fn returning an error rolls everything back.
func WithTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return classify(tx.Commit())
}

func txFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// execer is the subset of *sql.DB and *sql.Tx the repositories need. It lets
// the same query helpers serve both transactional and pool-backed calls.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// conn returns the transaction from ctx when present, the pool otherwise.
func conn(ctx context.Context, db *sql.DB) execer {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return db
}
