// Package repository provides the database query layer.
//
// Queries are written against Postgres and executed through database/sql
// with the pgx stdlib driver. The package follows the sqlc calling
// convention (a Queries struct over a DBTX, with WithTx for transactions)
// so the service layer stays decoupled from connection management.
package repository

import (
	"context"
	"database/sql"
)

// DBTX is the subset of *sql.DB / *sql.Tx the queries need.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// New creates a Queries instance bound to the given database handle.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Queries holds the prepared query methods.
type Queries struct {
	db DBTX
}

// WithTx returns a Queries instance that executes within the given transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}
