// Package repository persists the append-only session log.
package repository

import (
	"context"

	"github.com/okian/nback/internal/domain/model"
)

// Supported backends.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Filter narrows a Scan.
type Filter struct {
	// ExcludeTombstones drops sessions with status tombstone.
	ExcludeTombstones bool
	// UserID, when set, restricts the scan to one identity.
	UserID string
}

// Log is the session log store. Sessions are never updated or deleted.
type Log interface {
	// Append inserts s, assigning Seq and (when empty) ID. It returns the stored row.
	Append(ctx context.Context, s model.ScoredSession) (model.ScoredSession, error)

	// Scan streams matching sessions in insertion order. Returning an error
	// from fn stops the scan and is returned as-is.
	Scan(ctx context.Context, f Filter, fn func(model.ScoredSession) error) error

	// Migrate brings the schema up to date and reports how many migrations ran.
	Migrate(ctx context.Context) (int, error)

	Ping(ctx context.Context) error
	Close() error

	// Driver names the backend.
	Driver() string
}

func (f Filter) match(s model.ScoredSession) bool {
	if f.ExcludeTombstones && s.Status == model.StatusTombstone {
		return false
	}
	if f.UserID != "" && s.UserID != f.UserID {
		return false
	}
	return true
}
