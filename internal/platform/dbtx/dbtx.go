// Package dbtx carries a *sql.Tx on context.Context so service methods can
// compose repository calls inside one transaction without threading a
// transaction handle through every function signature. The contract
// (ContextWithTx, TxFromContext, GetExecutor, RunInTransaction) mirrors the
// teacher's pkg/dbtx package.
package dbtx

import (
	"context"
	"database/sql"
)

// Executor is satisfied by both *sql.DB and *sql.Tx; repositories depend on
// this instead of a concrete type so they work identically inside or
// outside an explicit transaction.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txContextKey struct{}

// ContextWithTx returns a child context carrying tx.
func ContextWithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext returns the *sql.Tx stored in ctx, or nil if none was set.
func TxFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txContextKey{}).(*sql.Tx)
	return tx
}

// GetExecutor returns the transaction in ctx if one was started by
// RunInTransaction, otherwise db itself.
func GetExecutor(ctx context.Context, db *sql.DB) Executor {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return db
}

// RunInTransaction begins a transaction on db, runs fn with a context
// carrying it, and commits on success. Any error returned by fn (or a
// panic during fn) rolls the transaction back; panics are re-raised after
// rollback so the caller's own recovery still sees them. Errors from fn,
// from Begin, and from Commit are all returned unwrapped so callers can
// match them with errors.Is/apperrors.As directly.
func RunInTransaction(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	txCtx := ContextWithTx(ctx, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err = tx.Commit(); err != nil {
		_ = tx.Rollback()
		return err
	}

	return nil
}
