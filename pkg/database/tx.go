package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrTxFailed marks failures of the transaction machinery itself (begin/commit).
var ErrTxFailed = errors.New("transaction failed")

// Transactor runs units of work inside a single database transaction.
type Transactor struct {
	db   *sqlx.DB
	opts *sql.TxOptions
}

// NewTransactor wraps db. Transactions run at READ COMMITTED, serialisation comes from advisory locks.
func NewTransactor(db *sqlx.DB) *Transactor {
	return &Transactor{db: db, opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted}}
}

// WithinTx commits when fn returns nil and rolls back otherwise, including on panic.
func (t *Transactor) WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) (err error) {
	tx, err := t.db.BeginTxx(ctx, t.opts)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrTxFailed, err)
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

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrTxFailed, err)
	}
	return nil
}

// AdvisoryLock takes a transaction scoped advisory lock, released on commit or rollback.
func AdvisoryLock(ctx context.Context, exec sqlx.ExtContext, key int64) error {
	if _, err := exec.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}
	return nil
}

// UniqueViolation reports the violated constraint name for SQLSTATE 23505 errors.
func UniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	return "", false
}
