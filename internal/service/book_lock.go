package service

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type txRunner interface {
	WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error
}

// AdvisoryLocker takes a lock scoped to the transaction behind exec.
type AdvisoryLocker func(ctx context.Context, exec sqlx.ExtContext, key int64) error

// BookLock serialises writers of the assignment book. The semaphore covers this process,
// the advisory lock covers every replica sharing the database.
type BookLock struct {
	sem      chan struct{}
	key      int64
	advisory AdvisoryLocker
}

// NewBookLock builds a lock. A nil advisory locker leaves only in-process serialisation.
func NewBookLock(key int64, advisory AdvisoryLocker) *BookLock {
	return &BookLock{sem: make(chan struct{}, 1), key: key, advisory: advisory}
}

// Run executes fn in a transaction while holding the lock. A caller whose context ends
// while waiting gets the context error and never runs fn.
func (l *BookLock) Run(ctx context.Context, tx txRunner, fn func(exec sqlx.ExtContext) error) error {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.sem }()

	if err := ctx.Err(); err != nil {
		return err
	}

	return tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		if l.advisory != nil {
			if err := l.advisory(ctx, exec, l.key); err != nil {
				return err
			}
		}
		return fn(exec)
	})
}
