package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// backoff holds the delay before each retry attempt after the first try.
var backoff = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}

// IsBusy reports whether err indicates an SQLite BUSY condition. The async
// recorder writers and retention sweeps share one WAL database, so BUSY is
// an expected transient, not a failure.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// RunTx executes fn inside a transaction, retrying on BUSY with backoff.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = runOnce(ctx, db, fn)
		if err == nil || !IsBusy(err) || attempt >= len(backoff) {
			return err
		}
		if werr := sleepCtx(ctx, backoff[attempt]); werr != nil {
			return fmt.Errorf("dbopen: context cancelled during retry: %w", werr)
		}
	}
}

// Exec executes a statement, retrying on BUSY with backoff.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	var err error
	for attempt := 0; ; attempt++ {
		result, err = db.ExecContext(ctx, query, args...)
		if err == nil || !IsBusy(err) || attempt >= len(backoff) {
			return result, err
		}
		if werr := sleepCtx(ctx, backoff[attempt]); werr != nil {
			return nil, fmt.Errorf("dbopen: context cancelled during retry: %w", werr)
		}
	}
}

func runOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
