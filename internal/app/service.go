// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"math/big"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/nback/internal/adapters/repository"
	"github.com/okian/nback/internal/domain/dedupe"
	"github.com/okian/nback/internal/domain/eligibility"
	"github.com/okian/nback/internal/domain/leaderboard"
	"github.com/okian/nback/internal/domain/model"
	"github.com/okian/nback/internal/domain/rank"
	"github.com/okian/nback/internal/domain/scoring"
	"github.com/okian/nback/internal/domain/types"
	"github.com/okian/nback/pkg/logger"
	"github.com/okian/nback/pkg/metrics"
)

// Submission is one normalized submit request.
type Submission struct {
	Identity model.Identity
	// Report carries everything except ModalityCount, which is inferred from Hints.
	Report         model.SessionReport
	Hints          scoring.ModalityHints
	IdempotencyKey string
}

// SubmitResult is the outcome of a submission.
type SubmitResult struct {
	SessionID      string
	Seq            int64
	Points         *big.Int
	Eligible       bool
	Reason         model.Reason
	ModalityCount  int
	StimuliCount   int
	SpeedFactor    int64
	AccuracyFactor int64
	Duplicate      bool
}

// RankView is a player's lifetime totals and position on the ladder.
type RankView struct {
	Totals   types.UserTotals
	Progress rank.Progress
}

// Service implements the API dependencies for the scoring engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	log     repository.Log
	tracker dedupe.Tracker[SubmitResult]
	inferer *scoring.ModalityInferer
	ladder  rank.Ladder

	// Configuration
	dedupeSize      int
	defaultLimit    int
	maxLimit        int
	refreshInterval time.Duration
	now             func() time.Time

	// State
	started    bool
	startedAt  time.Time
	stopCh     chan struct{}
	appended   atomic.Int64
	duplicates atomic.Int64

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLog sets the session log store. Defaults to an in-memory log.
func WithLog(l repository.Log) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithDedupeSize sets how many idempotency keys are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLeaderboardLimits sets the default and maximum leaderboard sizes.
func WithLeaderboardLimits(defaultLimit, maxLimit int) Option {
	return func(s *Service) {
		if maxLimit > 0 {
			s.maxLimit = maxLimit
		}
		if defaultLimit > 0 {
			s.defaultLimit = defaultLimit
		}
	}
}

// WithLadder replaces the built-in rank ladder. Invalid ladders are ignored.
func WithLadder(l rank.Ladder) Option {
	return func(s *Service) {
		if rank.Validate(l) == nil {
			s.ladder = l
		}
	}
}

// WithModalityRules replaces the modality inference chain.
func WithModalityRules(rules ...scoring.ModalityRule) Option {
	return func(s *Service) {
		if len(rules) > 0 {
			s.inferer = scoring.NewModalityInferer(rules...)
		}
	}
}

// WithClock overrides the time source for submissions without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRefreshInterval sets how often system gauges are pushed.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.refreshInterval = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		inferer:         scoring.NewModalityInferer(scoring.DefaultModalityRules()...),
		ladder:          rank.Default(),
		dedupeSize:      50000,
		defaultLimit:    leaderboard.DefaultLimit,
		maxLimit:        leaderboard.MaxLimit,
		refreshInterval: metrics.GetManager().RefreshInterval(),
		now:             time.Now,
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.defaultLimit > s.maxLimit {
		s.defaultLimit = s.maxLimit
	}
	return s
}

// Start initializes the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.log == nil {
		s.log = repository.NewMemoryLog()
	}
	s.tracker = dedupe.NewInMemory[SubmitResult](dedupe.WithMaxSize(s.dedupeSize))
	s.stopCh = make(chan struct{})
	s.startedAt = s.now()
	s.started = true

	go s.refreshSystemMetrics(s.stopCh)

	s.logger.Info(ctx, "scoring engine started",
		logger.String("store", s.log.Driver()),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("maxLeaderboardLimit", s.maxLimit),
	)
	return nil
}

// Stop shuts the service down and closes the session log.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	close(s.stopCh)
	if err := s.log.Close(); err != nil {
		s.logger.Warn(context.Background(), "closing session log", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "scoring engine stopped")
}

func (s *Service) refreshSystemMetrics(stop <-chan struct{}) {
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()
	var ms runtime.MemStats
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			runtime.ReadMemStats(&ms)
			metrics.UpdateSystemMemoryUsage(ms.HeapInuse)
			metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
			if t := s.idempotencyTracker(); t != nil {
				metrics.UpdateIdempotencyCacheSize(t.Size())
			}
		}
	}
}

func (s *Service) components() (repository.Log, dedupe.Tracker[SubmitResult], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.log, s.tracker, nil
}

func (s *Service) idempotencyTracker() dedupe.Tracker[SubmitResult] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracker
}

// Submit scores one session, gates it for eligibility and appends it to the log.
// Ineligible sessions are logged with zero points and a reason; that is not an error.
func (s *Service) Submit(ctx context.Context, sub Submission) (SubmitResult, error) {
	log, tracker, err := s.components()
	if err != nil {
		return SubmitResult{}, err
	}
	if !sub.Report.Status.Valid() {
		return SubmitResult{}, Invalid("status", "Invalid status")
	}

	key := strings.TrimSpace(sub.IdempotencyKey)
	if key != "" {
		key = dedupe.ScopedKey(leaderboard.GroupKey(sub.Identity.UserID, sub.Identity.Username), key)
		switch state, prev := tracker.SeenAndRecord(ctx, key); state {
		case dedupe.StateDone:
			s.duplicates.Add(1)
			metrics.RecordSessionDuplicate()
			prev.Duplicate = true
			return prev, nil
		case dedupe.StatePending:
			metrics.RecordIdempotencyConflict()
			return SubmitResult{}, ErrSubmitInProgress
		case dedupe.StateNew:
		}
	}

	res, err := s.scoreAndAppend(ctx, log, sub)
	if err != nil {
		if key != "" {
			tracker.Unrecord(ctx, key)
		}
		return SubmitResult{}, err
	}
	if key != "" {
		tracker.Complete(ctx, key, res)
		metrics.UpdateIdempotencyCacheSize(tracker.Size())
	}
	return res, nil
}

// Score runs the scoring pipeline without touching the log.
func (s *Service) Score(sub Submission) (model.ScoredSession, scoring.Result) {
	report := sub.Report
	report.ModalityCount = s.inferer.Infer(sub.Hints)
	if report.OccurredAt.IsZero() {
		report.OccurredAt = s.now()
	}

	decision := eligibility.CheckReport(report)
	result := scoring.Result{Points: new(big.Int)}
	if decision.Eligible {
		result = scoring.Compute(scoring.Input{
			ModalityCount:    report.ModalityCount,
			DifficultyLevel:  report.ScoringDepth(),
			TrialIntervalMs:  report.TrialIntervalMs,
			AccuracyFraction: report.AccuracyFraction,
		})
	}

	return model.ScoredSession{
		UserID:        sub.Identity.UserID,
		Username:      sub.Identity.Username,
		SessionReport: report,
		Points:        result.Points,
		Eligible:      decision.Eligible,
		Reason:        decision.Reason,
	}, result
}

func (s *Service) scoreAndAppend(ctx context.Context, log repository.Log, sub Submission) (SubmitResult, error) {
	start := time.Now()
	session, result := s.Score(sub)
	metrics.RecordScoringLatency(float64(time.Since(start).Microseconds()) / 1000)

	stored, err := log.Append(ctx, session)
	if err != nil {
		kind := repository.Kind(err)
		metrics.RecordRepositoryFailure(kind)
		metrics.RecordErrorByComponent("repository", kind)
		s.logger.Error(ctx, "append session failed",
			logger.String("user_id", session.UserID),
			logger.String("kind", kind),
			logger.Error(err),
		)
		return SubmitResult{}, err
	}

	n := s.appended.Add(1)
	metrics.UpdateRepositorySessionsAppended(n)
	metrics.RecordSessionSubmitted(string(stored.Status), stored.Eligible)
	if stored.Eligible {
		metrics.RecordStimuliCount(result.StimuliCount)
	} else {
		metrics.RecordIneligible(string(stored.Reason))
	}

	s.logger.Debug(ctx, "session scored",
		logger.String("session_id", stored.ID),
		logger.String("user_id", stored.UserID),
		logger.String("points", stored.Points.String()),
		logger.Bool("eligible", stored.Eligible),
		logger.String("reason", string(stored.Reason)),
	)

	return SubmitResult{
		SessionID:      stored.ID,
		Seq:            stored.Seq,
		Points:         stored.Points,
		Eligible:       stored.Eligible,
		Reason:         stored.Reason,
		ModalityCount:  stored.ModalityCount,
		StimuliCount:   result.StimuliCount,
		SpeedFactor:    result.SpeedFactor,
		AccuracyFactor: result.AccuracyFactor,
	}, nil
}

// Limit applies the configured default when no limit was given, then clamps.
func (s *Service) Limit(requested int, specified bool) int {
	if !specified {
		requested = s.defaultLimit
	}
	return leaderboard.ClampLimit(requested, s.maxLimit)
}

// Leaderboard aggregates the full log and returns the top rows for category.
func (s *Service) Leaderboard(ctx context.Context, category types.Category, limit int) ([]types.Entry, error) {
	log, _, err := s.components()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	agg := leaderboard.NewAggregator()
	err = log.Scan(ctx, repository.Filter{ExcludeTombstones: true}, func(sess model.ScoredSession) error {
		agg.Add(sess)
		return nil
	})
	if err != nil {
		return nil, s.readFailed(ctx, "leaderboard", err)
	}

	rows := agg.Top(category, leaderboard.ClampLimit(limit, s.maxLimit))
	metrics.RecordLeaderboardBuild(string(category), float64(time.Since(start).Milliseconds()), agg.Len())
	return rows, nil
}

// Rank returns a user's lifetime totals and tier. Unknown users get zero totals and the lowest tier.
func (s *Service) Rank(ctx context.Context, userID string) (RankView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return RankView{}, Invalid("userId", "missing user id")
	}
	log, _, err := s.components()
	if err != nil {
		return RankView{}, err
	}

	agg := leaderboard.NewAggregator()
	err = log.Scan(ctx, repository.Filter{ExcludeTombstones: true, UserID: userID}, func(sess model.ScoredSession) error {
		agg.Add(sess)
		return nil
	})
	if err != nil {
		return RankView{}, s.readFailed(ctx, "rank", err)
	}
	metrics.RecordRankLookup()

	totals, _ := agg.Lookup(userID)
	return RankView{Totals: totals, Progress: s.ladder.ProgressFor(totals.Points())}, nil
}

// Ranks returns the rank ladder.
func (s *Service) Ranks() rank.Ladder {
	out := make(rank.Ladder, len(s.ladder))
	copy(out, s.ladder)
	return out
}

// Migrate brings the session log schema up to date.
func (s *Service) Migrate(ctx context.Context) (int, error) {
	log, _, err := s.components()
	if err != nil {
		return 0, err
	}
	n, err := log.Migrate(ctx)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "migrate")
		s.logger.Error(ctx, "migration failed", logger.Error(err))
		return n, err
	}
	s.logger.Info(ctx, "schema migrated", logger.Int("applied", n))
	return n, nil
}

// Ping checks that the session log is reachable.
func (s *Service) Ping(ctx context.Context) error {
	log, _, err := s.components()
	if err != nil {
		return err
	}
	return log.Ping(ctx)
}

func (s *Service) readFailed(ctx context.Context, op string, err error) error {
	kind := repository.Kind(err)
	metrics.RecordRepositoryFailure(kind)
	metrics.RecordErrorByComponent("repository", kind)
	s.logger.Error(ctx, op+" scan failed", logger.String("kind", kind), logger.Error(err))
	return err
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":          s.started,
		"sessionsAppended": s.appended.Load(),
		"duplicates":       s.duplicates.Load(),
		"dedupeSize":       s.dedupeSize,
	}
	if s.started {
		stats["startedAt"] = s.startedAt.UTC().Format(time.RFC3339)
		stats["store"] = s.log.Driver()
		stats["idempotencyKeys"] = s.tracker.Size()
		metrics.UpdateIdempotencyCacheSize(s.tracker.Size())
	}
	return stats
}
