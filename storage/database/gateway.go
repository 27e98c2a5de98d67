package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/trezcool/babillard/core"
)

// postgres error codes
const (
	pqUniqueViolation = "23505"
	pqCheckViolation  = "23514"
)

// Gateway executes the queries of the repositories against the store.
// Every call runs under the configured timeout and its failures are returned as *core.StoreError,
// except sql.ErrNoRows which repositories map to their own not found error.
type Gateway struct {
	db      *sqlx.DB
	timeout time.Duration
}

var _ core.DB = (*Gateway)(nil) // interface compliance check

func NewGateway(db *sqlx.DB, timeout time.Duration) *Gateway {
	return &Gateway{db: db, timeout: timeout}
}

func (gw *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if gw.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, gw.timeout)
}

func (gw *Gateway) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, cancel := gw.withTimeout(ctx)
	defer cancel()
	res, err := gw.db.ExecContext(ctx, gw.db.Rebind(query), args...)
	return res, translateErr(ctx, "exec", err)
}

func (gw *Gateway) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, cancel := gw.withTimeout(ctx)
	defer cancel()
	return translateErr(ctx, "get", gw.db.GetContext(ctx, dest, gw.db.Rebind(query), args...))
}

func (gw *Gateway) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, cancel := gw.withTimeout(ctx)
	defer cancel()
	return translateErr(ctx, "select", gw.db.SelectContext(ctx, dest, gw.db.Rebind(query), args...))
}

// InTx runs fn in a transaction bounded by one timeout. fn must only use the executor it is given.
func (gw *Gateway) InTx(ctx context.Context, fn func(tx core.DBExecutor) error) (err error) {
	ctx, cancel := gw.withTimeout(ctx)
	defer cancel()

	tx, err := gw.db.BeginTxx(ctx, nil)
	if err != nil {
		return translateErr(ctx, "begin", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&txExecutor{tx: tx, ctx: ctx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return translateErr(ctx, "commit", err)
	}
	return nil
}

// txExecutor runs statements in a transaction. Errors are translated against the transaction's context
// so that running out of time mid transaction reads as a timeout.
type txExecutor struct {
	tx  *sqlx.Tx
	ctx context.Context
}

func (te *txExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	res, err := te.tx.ExecContext(ctx, te.tx.Rebind(query), args...)
	return res, translateErr(te.ctx, "exec", err)
}

func (te *txExecutor) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return translateErr(te.ctx, "get", te.tx.GetContext(ctx, dest, te.tx.Rebind(query), args...))
}

func (te *txExecutor) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return translateErr(te.ctx, "select", te.tx.SelectContext(ctx, dest, te.tx.Rebind(query), args...))
}

func translateErr(ctx context.Context, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case err == sql.ErrNoRows:
		return err
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded:
		return &core.StoreError{Op: op, Err: errors.Wrap(core.ErrTimeout, err.Error())}
	}
	if cause := constraintCause(err); cause != nil {
		return &core.StoreError{Op: op, Err: errors.Wrap(cause, err.Error())}
	}
	return &core.StoreError{Op: op, Err: err}
}

// constraintCause maps the constraint violations of both engines to core.ErrConflict or core.ErrCheckViolation.
func constraintCause(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return core.ErrConflict
		case pqCheckViolation:
			return core.ErrCheckViolation
		}
		return nil
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return core.ErrConflict
		case sqlite3.SQLITE_CONSTRAINT_CHECK:
			return core.ErrCheckViolation
		}
	}
	return nil
}
