package repository

import (
	"context"
	"fmt"
	"strings"
)

// Open builds the Log named by driver. dsn is the database URL for postgres
// and the file path for sqlite; memory ignores it.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (Log, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverMemory:
		return NewMemoryLog(opts...), nil
	case DriverSQLite:
		l, err := NewSQLiteLog(ctx, dsn, opts...)
		if err != nil {
			return nil, err
		}
		return l, nil
	case DriverPostgres:
		l, err := NewPostgresLog(ctx, dsn, opts...)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
}
