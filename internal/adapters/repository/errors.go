package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Sentinel kinds for session log errors.
//
// ErrSchemaDrift means the store's shape does not match what the engine
// expects and an operator must run the migration. ErrUnavailable means the
// store could not be reached and the caller may retry.
var (
	ErrSchemaDrift   = errors.New("session log schema is out of date")
	ErrUnavailable   = errors.New("session log unavailable")
	ErrClosed        = errors.New("session log closed")
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrCorruptRow    = errors.New("session log row is corrupt")
)

// PostgreSQL error codes.
const (
	pgUndefinedColumn   = "42703"
	pgUndefinedTable    = "42P01"
	pgAdminShutdown     = "57P01"
	pgCrashShutdown     = "57P02"
	pgCannotConnectNow  = "57P03"
	pgTooManyConnection = "53300"
	pgConnectionClass   = "08"
)

// IsSchemaDrift reports whether err is a schema drift failure.
func IsSchemaDrift(err error) bool { return errors.Is(err, ErrSchemaDrift) }

// IsUnavailable reports whether err is a retryable availability failure.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }

// Kind labels err for metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsSchemaDrift(err):
		return "schema_drift"
	case IsUnavailable(err):
		return "unavailable"
	}
	return "other"
}

// mapPostgresError classifies a pgx error into a store sentinel.
func mapPostgresError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUndefinedColumn || pgErr.Code == pgUndefinedTable:
			return fmt.Errorf("%s: %w: %w", op, ErrSchemaDrift, err)
		case strings.HasPrefix(pgErr.Code, pgConnectionClass),
			pgErr.Code == pgAdminShutdown, pgErr.Code == pgCrashShutdown,
			pgErr.Code == pgCannotConnectNow, pgErr.Code == pgTooManyConnection:
			return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) || isNetworkOrDeadline(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// mapSQLiteError classifies a modernc sqlite error into a store sentinel.
func mapSQLiteError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR:
			return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
		}
	}
	msg := err.Error()
	if strings.Contains(msg, "no such column") || strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "has no column named") {
		return fmt.Errorf("%s: %w: %w", op, ErrSchemaDrift, err)
	}
	if isNetworkOrDeadline(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isNetworkOrDeadline(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
