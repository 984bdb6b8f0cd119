package repository

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/okian/nback/internal/domain/model"
	"github.com/okian/nback/pkg/metrics"
	"github.com/pressly/goose/v3"
)

// PostgresLog stores the session log in PostgreSQL through a pgx pool.
type PostgresLog struct {
	pool *pgxpool.Pool
	cfg  settings
}

// NewPostgresLog connects to dsn and verifies the connection.
func NewPostgresLog(ctx context.Context, dsn string, opts ...Option) (*PostgresLog, error) {
	cfg := applyOptions(opts)
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, mapPostgresError("connect postgres", err)
	}
	l := &PostgresLog{pool: pool, cfg: cfg}
	if err := l.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return l, nil
}

func (l *PostgresLog) Driver() string { return DriverPostgres }

func (l *PostgresLog) Append(ctx context.Context, s model.ScoredSession) (model.ScoredSession, error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryAppendLatency(float64(time.Since(start).Milliseconds())) }()

	ctx, cancel := context.WithTimeout(ctx, l.cfg.timeout)
	defer cancel()

	if s.ID == "" {
		s.ID = l.cfg.newID()
	}
	err := l.pool.QueryRow(ctx,
		`INSERT INTO game_log (id, user_id, username, status, title, mode, nback, modalities,
			trial_time_ms, elapsed_seconds, completed_trials, match_chance, accuracy,
			points, eligible, reason, played_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14::numeric, $15, NULLIF($16, ''), $17)
		 RETURNING seq`,
		s.ID, s.UserID, s.Username, string(s.Status), s.Title, s.Mode, s.DifficultyLevel, s.ModalityCount,
		s.TrialIntervalMs, s.ElapsedSeconds, s.CompletedTrialCount, s.MatchProbabilityPercent, s.AccuracyFraction,
		s.PointsOrZero().String(), s.Eligible, string(s.Reason), s.OccurredAt.UTC(),
	).Scan(&s.Seq)
	if err != nil {
		return model.ScoredSession{}, mapPostgresError("append session", err)
	}
	return s, nil
}

func (l *PostgresLog) Scan(ctx context.Context, f Filter, fn func(model.ScoredSession) error) error {
	start := time.Now()
	n := 0
	defer func() { metrics.RecordRepositoryScanLatency(float64(time.Since(start).Milliseconds()), n) }()

	ctx, cancel := context.WithTimeout(ctx, l.cfg.timeout)
	defer cancel()

	rows, err := l.pool.Query(ctx,
		`SELECT seq, id, coalesce(user_id, ''), username, status, title, mode, nback, modalities,
			trial_time_ms, elapsed_seconds, completed_trials, match_chance, accuracy,
			points::text, eligible, coalesce(reason, ''), played_at
		 FROM game_log
		 WHERE (NOT $1::boolean OR status <> 'tombstone')
		   AND ($2::text = '' OR user_id = $2)
		 ORDER BY seq`,
		f.ExcludeTombstones, f.UserID,
	)
	if err != nil {
		return mapPostgresError("scan sessions", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanPgRow(rows)
		if err != nil {
			return err
		}
		n++
		if err := fn(s); err != nil {
			return err
		}
	}
	return mapPostgresError("scan sessions", rows.Err())
}

func scanPgRow(row pgx.Row) (model.ScoredSession, error) {
	var (
		s      model.ScoredSession
		status string
		reason string
		points string
	)
	if err := row.Scan(&s.Seq, &s.ID, &s.UserID, &s.Username, &status, &s.Title, &s.Mode,
		&s.DifficultyLevel, &s.ModalityCount, &s.TrialIntervalMs, &s.ElapsedSeconds,
		&s.CompletedTrialCount, &s.MatchProbabilityPercent, &s.AccuracyFraction,
		&points, &s.Eligible, &reason, &s.OccurredAt); err != nil {
		return model.ScoredSession{}, mapPostgresError("scan session row", err)
	}
	p, ok := new(big.Int).SetString(points, 10)
	if !ok {
		return model.ScoredSession{}, fmt.Errorf("%w: points %q for session %s", ErrCorruptRow, points, s.ID)
	}
	s.Status = model.Status(status)
	s.Reason = model.Reason(reason)
	s.Points = p
	return s, nil
}

func (l *PostgresLog) Migrate(ctx context.Context) (int, error) {
	// Closing db releases its connector; the pool stays open.
	db := stdlib.OpenDBFromPool(l.pool)
	defer db.Close()

	n, err := migrate(ctx, db, goose.DialectPostgres, "migrations/postgres", l.cfg.log)
	return n, mapPostgresError("migrate", err)
}

func (l *PostgresLog) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.timeout)
	defer cancel()
	return mapPostgresError("ping postgres", l.pool.Ping(ctx))
}

func (l *PostgresLog) Close() error {
	l.pool.Close()
	return nil
}
