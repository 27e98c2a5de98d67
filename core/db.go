package core

import (
	"context"
	"database/sql"
)

type (
	// DBExecutor runs queries written with `?` placeholders.
	// Implementations rebind them to the engine's bind type.
	DBExecutor interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	}

	DB interface {
		DBExecutor

		// InTx runs fn inside one transaction, committing when fn returns nil.
		InTx(ctx context.Context, fn func(tx DBExecutor) error) error
	}
)

// GetExec returns the executor passed by a service, or def.
func GetExec(def DBExecutor, svcExec []DBExecutor) DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return def
}
