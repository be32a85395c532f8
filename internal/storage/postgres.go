package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lib/pq"

	txcontext "formhub/pkg/platform/tx"
)

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// UnitOfWork runs a function inside one atomic transaction. Implementations
// place the transaction in the context so stores pick it up transparently.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

const (
	defaultTxTimeout = 5 * time.Second
	maxTxAttempts    = 3
	retryBaseDelay   = 50 * time.Millisecond
)

// PostgresUnit wraps multi-table writes in a transaction and retries the
// whole unit on transient failures. A child form's properties must never be
// observed out of sync with its parent's, so partial commits are not an
// option.
type PostgresUnit struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgresUnit builds a UnitOfWork over db.
func NewPostgresUnit(db *sql.DB) *PostgresUnit {
	return &PostgresUnit{db: db}
}

func (u *PostgresUnit) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}

	timeout := u.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		lastErr = u.attempt(ctx, fn)
		if lastErr == nil || !IsTransient(lastErr) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction aborted: %w", ctx.Err())
		case <-time.After(retryBaseDelay * time.Duration(1<<(attempt-1))):
		}
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", maxTxAttempts, lastErr)
}

func (u *PostgresUnit) attempt(ctx context.Context, fn func(txCtx context.Context) error) error {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit()
}

// IsTransient classifies errors worth retrying: serialization failures,
// deadlocks, and dropped connections. Business failures and validation
// errors are terminal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"08000", // connection_exception
			"08006", // connection_failure
			"57P01": // admin_shutdown
			return true
		}
	}
	return false
}

// Execer is the subset of database/sql shared by *sql.DB and *sql.Tx that
// stores need. Stores resolve it per call so the same code runs inside and
// outside transactions.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ExecerFor returns the context transaction when present, else db.
func ExecerFor(ctx context.Context, db *sql.DB) Execer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return db
}
