// Package pgretry wraps a pgx querier with a short jittered retry on read
// failures. Writes pass through untouched, so the occurrence status
// compare-and-set stays single-shot: a losing update must stay lost.
package pgretry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the repositories use.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	maxRetries  = 2
	baseBackoff = 50 * time.Millisecond
)

// DB retries failed reads up to two extra times before giving up.
type DB struct {
	inner Querier
}

// Wrap returns a retrying querier around inner.
func Wrap(inner Querier) *DB {
	if inner == nil {
		panic("pgretry: querier required")
	}
	return &DB{inner: inner}
}

var _ Querier = (*DB)(nil)

// Exec is a pass-through: writes are never retried.
func (d *DB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return d.inner.Exec(ctx, sql, args...)
}

// Query retries the read when the query cannot be issued.
func (d *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows, err := d.inner.Query(ctx, sql, args...)
	for attempt := 0; err != nil && attempt < maxRetries; attempt++ {
		if !backoff(ctx, attempt) {
			break
		}
		rows, err = d.inner.Query(ctx, sql, args...)
	}
	return rows, err
}

// QueryRow defers the query to Scan time so the whole read can be retried.
func (d *DB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return &retryRow{inner: d.inner, ctx: ctx, sql: sql, args: args}
}

type retryRow struct {
	inner Querier
	ctx   context.Context
	sql   string
	args  []any
}

// Scan runs the query and scans the row. pgx.ErrNoRows is a result, not a
// failure, and is returned immediately.
func (r *retryRow) Scan(dest ...any) error {
	err := r.inner.QueryRow(r.ctx, r.sql, r.args...).Scan(dest...)
	for attempt := 0; retryable(err) && attempt < maxRetries; attempt++ {
		if !backoff(r.ctx, attempt) {
			break
		}
		err = r.inner.QueryRow(r.ctx, r.sql, r.args...).Scan(dest...)
	}
	return err
}

func retryable(err error) bool {
	return err != nil && !errors.Is(err, pgx.ErrNoRows)
}

// backoff sleeps before the next attempt; false means the context expired.
func backoff(ctx context.Context, attempt int) bool {
	delay := baseBackoff<<attempt + time.Duration(rand.Int63n(int64(baseBackoff)))
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}
