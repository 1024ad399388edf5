package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Transient-fault retry policy for write transactions. Serialization
// failures, deadlocks, and connection hiccups are retried with a bounded
// exponential backoff; everything else surfaces to the caller immediately.
const (
	retryAttempts = 3
	retryBaseWait = 50 * time.Millisecond
)

// WithTx runs fn inside a transaction, retrying transient failures.
// fn may be invoked multiple times and must therefore be side-effect free
// outside the transaction.
func (c *Client) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var lastErr error
	wait := retryBaseWait

	for attempt := 1; attempt <= retryAttempts; attempt++ {
		lastErr = c.runTx(ctx, fn)
		if lastErr == nil || !IsTransient(lastErr) {
			return lastErr
		}

		slog.Warn("Transient database error, retrying",
			"attempt", attempt, "error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}

	return fmt.Errorf("transaction failed after %d attempts: %w", retryAttempts, lastErr)
}

func (c *Client) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsTransient reports whether err is a retryable database fault.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001": // serialization_failure
			return true
		case pgErr.Code == "40P01": // deadlock_detected
			return true
		case strings.HasPrefix(pgErr.Code, "08"): // connection exceptions
			return true
		}
		return false
	}
	return errors.Is(err, sql.ErrConnDone)
}

// IsUniqueViolation reports whether err is a unique-constraint violation,
// optionally restricted to a specific constraint name. The database is the
// arbiter for claim and dedup races; callers map violations to semantic codes.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
