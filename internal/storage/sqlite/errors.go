package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/agentkits/memory/internal/storage"
)

// Sentinel errors for common database conditions
var (
	// ErrNotFound indicates the requested resource was not found in the database.
	// Aliased to storage.ErrNotFound so callers that only depend on the
	// storage.Storage interface can still detect a miss with errors.Is,
	// without importing this backend package.
	ErrNotFound = storage.ErrNotFound

	// ErrInvalidID indicates an ID format or validation error
	ErrInvalidID = errors.New("invalid ID")

	// ErrConflict indicates a unique constraint violation or conflicting state
	ErrConflict = errors.New("conflict")

	// ErrCycle indicates that applying an Entry's References list would
	// create a reference cycle back to the entry itself.
	ErrCycle = errors.New("reference cycle detected")
)

// wrapDBError wraps a database error with operation context
// It converts sql.ErrNoRows to ErrNotFound for consistent error handling
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// wrapDBErrorf wraps a database error with formatted operation context
// It converts sql.ErrNoRows to ErrNotFound for consistent error handling
func wrapDBErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	op := fmt.Sprintf(format, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isNotFound checks if an error is or wraps ErrNotFound
func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// isConflict checks if an error is or wraps ErrConflict
func isConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// isCycle checks if an error is or wraps ErrCycle
func isCycle(err error) bool {
	return errors.Is(err, ErrCycle)
}

// isBusy reports whether err is SQLite reporting the database file locked by
// another connection — the one condition the _pragma=busy_timeout setting
// doesn't fully absorb, since WAL checkpoint contention between this
// process and a concurrently-running worker subprocess can still surface
// it past that timeout. modernc.org/sqlite reports it as a plain string,
// not a typed error, hence the substring check.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
