package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/okian/nback/internal/domain/model"
	"github.com/okian/nback/pkg/metrics"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const sessionColumns = `seq, id, user_id, username, status, title, mode, nback, modalities,
	trial_time_ms, elapsed_seconds, completed_trials, match_chance, accuracy,
	points, eligible, reason, played_at`

// SQLiteLog stores the session log in a local SQLite file.
type SQLiteLog struct {
	db  *sql.DB
	cfg settings
}

// NewSQLiteLog opens (creating if needed) the database at path.
func NewSQLiteLog(ctx context.Context, path string, opts ...Option) (*SQLiteLog, error) {
	cfg := applyOptions(opts)
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		path, cfg.timeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	l := &SQLiteLog{db: db, cfg: cfg}
	if err := l.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLog) Driver() string { return DriverSQLite }

func (l *SQLiteLog) Append(ctx context.Context, s model.ScoredSession) (model.ScoredSession, error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryAppendLatency(float64(time.Since(start).Milliseconds())) }()

	ctx, cancel := context.WithTimeout(ctx, l.cfg.timeout)
	defer cancel()

	if s.ID == "" {
		s.ID = l.cfg.newID()
	}
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO game_log (id, user_id, username, status, title, mode, nback, modalities,
			trial_time_ms, elapsed_seconds, completed_trials, match_chance, accuracy,
			points, eligible, reason, played_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, nullString(s.UserID), s.Username, string(s.Status), s.Title, s.Mode, s.DifficultyLevel, s.ModalityCount,
		s.TrialIntervalMs, s.ElapsedSeconds, s.CompletedTrialCount, s.MatchProbabilityPercent, s.AccuracyFraction,
		s.PointsOrZero().String(), s.Eligible, nullString(string(s.Reason)), s.OccurredAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return model.ScoredSession{}, mapSQLiteError("append session", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return model.ScoredSession{}, mapSQLiteError("append session", err)
	}
	s.Seq = seq
	return s, nil
}

func (l *SQLiteLog) Scan(ctx context.Context, f Filter, fn func(model.ScoredSession) error) error {
	start := time.Now()
	rows := 0
	defer func() { metrics.RecordRepositoryScanLatency(float64(time.Since(start).Milliseconds()), rows) }()

	ctx, cancel := context.WithTimeout(ctx, l.cfg.timeout)
	defer cancel()

	q := `SELECT ` + sessionColumns + ` FROM game_log WHERE 1 = 1`
	var args []any
	if f.ExcludeTombstones {
		q += ` AND status <> ?`
		args = append(args, string(model.StatusTombstone))
	}
	if f.UserID != "" {
		q += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	q += ` ORDER BY seq`

	rs, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return mapSQLiteError("scan sessions", err)
	}
	defer rs.Close()

	for rs.Next() {
		s, err := scanSQLRow(rs)
		if err != nil {
			return err
		}
		rows++
		if err := fn(s); err != nil {
			return err
		}
	}
	return mapSQLiteError("scan sessions", rs.Err())
}

func (l *SQLiteLog) Migrate(ctx context.Context) (int, error) {
	n, err := migrate(ctx, l.db, goose.DialectSQLite3, "migrations/sqlite", l.cfg.log)
	return n, mapSQLiteError("migrate", err)
}

func (l *SQLiteLog) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.timeout)
	defer cancel()
	return mapSQLiteError("ping sqlite", l.db.PingContext(ctx))
}

func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLRow(r rowScanner) (model.ScoredSession, error) {
	var (
		s         model.ScoredSession
		userID    sql.NullString
		status    string
		trial     sql.NullFloat64
		elapsed   sql.NullFloat64
		completed sql.NullInt64
		match     sql.NullFloat64
		accuracy  sql.NullFloat64
		points    string
		reason    sql.NullString
		playedAt  string
	)
	if err := r.Scan(&s.Seq, &s.ID, &userID, &s.Username, &status, &s.Title, &s.Mode,
		&s.DifficultyLevel, &s.ModalityCount, &trial, &elapsed, &completed, &match, &accuracy,
		&points, &s.Eligible, &reason, &playedAt); err != nil {
		return model.ScoredSession{}, mapSQLiteError("scan session row", err)
	}

	p, ok := new(big.Int).SetString(points, 10)
	if !ok {
		return model.ScoredSession{}, fmt.Errorf("%w: points %q for session %s", ErrCorruptRow, points, s.ID)
	}
	at, err := time.Parse(time.RFC3339Nano, playedAt)
	if err != nil {
		return model.ScoredSession{}, fmt.Errorf("%w: played_at %q for session %s", ErrCorruptRow, playedAt, s.ID)
	}

	s.UserID = userID.String
	s.Status = model.Status(status)
	s.TrialIntervalMs = nullFloat(trial)
	s.ElapsedSeconds = nullFloat(elapsed)
	s.MatchProbabilityPercent = nullFloat(match)
	s.AccuracyFraction = nullFloat(accuracy)
	if completed.Valid {
		s.CompletedTrialCount = model.Ptr(int(completed.Int64))
	}
	s.Points = p
	s.Reason = model.Reason(reason.String)
	s.OccurredAt = at
	return s, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}
