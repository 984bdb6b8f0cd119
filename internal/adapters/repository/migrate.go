package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/okian/nback/pkg/logger"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

// migrate applies every pending embedded migration for dialect.
func migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect, dir string, log logger.Logger) (int, error) {
	sub, err := fs.Sub(migrationFS, dir)
	if err != nil {
		return 0, fmt.Errorf("migrations sub-fs: %w", err)
	}
	provider, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		return 0, fmt.Errorf("create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	for _, r := range results {
		if r.Source == nil {
			continue
		}
		fields := []logger.Field{
			logger.Int64("version", r.Source.Version),
			logger.String("path", r.Source.Path),
			logger.Duration("took", r.Duration),
		}
		if r.Error != nil {
			log.Error(ctx, "migration failed", append(fields, logger.Error(r.Error))...)
			continue
		}
		log.Info(ctx, "migration applied", fields...)
	}
	if err != nil {
		return len(results), fmt.Errorf("apply migrations: %w", err)
	}
	return len(results), nil
}
