package simulate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/nback/pkg/logger"
	"golang.org/x/time/rate"
)

// ErrVerification wraps every check that failed after the run.
var ErrVerification = errors.New("simulation verification failed")

const leaderboardLimit = 100

// Run generates players and sessions, submits them and verifies what the server reports.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	log := logger.Get().Named("simulate")
	stats := &Stats{StartTime: time.Now()}
	client := NewHTTPClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("players", cfg.Players),
		logger.Int("sessionsPerPlayer", cfg.SessionsPerPlayer),
		logger.Int("workers", cfg.Workers),
		logger.Float64("rate", cfg.Rate),
	)

	if err := client.Ready(ctx); err != nil {
		return stats, fmt.Errorf("service readiness check failed: %w", err)
	}

	players, err := GeneratePlayers(cfg.Players, cfg.Secret, time.Now())
	if err != nil {
		return stats, err
	}
	plan := GenerateSessions(cfg.Seed, len(players), cfg.SessionsPerPlayer, time.Now())
	stats.SessionsPlanned = len(plan)

	submit(ctx, cfg, client, players, plan, stats, log)
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("simulation interrupted: %w", err)
	}

	errs := verify(ctx, client, players, plan, stats)
	stats.Duration = time.Since(stats.StartTime)

	log.Info(ctx, "simulation finished",
		logger.Int("planned", stats.SessionsPlanned),
		logger.Int("submitted", stats.SessionsSubmitted),
		logger.Int("eligible", stats.SessionsEligible),
		logger.Int("failed", stats.SessionsFailed),
		logger.Int("eligibleMismatch", stats.EligibleMismatch),
		logger.Int("pointsMismatch", stats.PointsMismatch),
		logger.Int("ranksChecked", stats.RanksChecked),
		logger.Duration("duration", stats.Duration),
	)

	if len(errs) > 0 {
		for _, e := range errs {
			log.Error(ctx, "verification failed", logger.Error(e))
		}
		return stats, fmt.Errorf("%w: %w", ErrVerification, errors.Join(errs...))
	}
	return stats, nil
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), int(math.Max(1, math.Ceil(perSecond/10))))
}

func submit(ctx context.Context, cfg *Config, client *HTTPClient, players []Player, plan []Planned, stats *Stats, log logger.Logger) {
	limiter := newLimiter(cfg.Rate)
	jobs := make(chan int, max(1, cfg.Workers)*2)

	var submitted, eligible, failed, eligibleMismatch, pointsMismatch atomic.Int64
	var wg sync.WaitGroup
	for range max(1, cfg.Workers) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				s := plan[i]
				resp, err := client.Submit(ctx, players[s.Player].Token, s.Body)
				submitted.Add(1)
				if err != nil {
					failed.Add(1)
					if cfg.Verbose {
						log.Warn(ctx, "submit failed", logger.Int("session", i), logger.Error(err))
					}
					continue
				}
				if resp.EligibleForPoints {
					eligible.Add(1)
				}
				if resp.EligibleForPoints != s.ExpectEligible {
					eligibleMismatch.Add(1)
				}
				if resp.Points != s.ExpectPoints.String() {
					pointsMismatch.Add(1)
				}
			}
		}()
	}

feed:
	for i := range plan {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	stats.SessionsSubmitted = int(submitted.Load())
	stats.SessionsEligible = int(eligible.Load())
	stats.SessionsFailed = int(failed.Load())
	stats.EligibleMismatch = int(eligibleMismatch.Load())
	stats.PointsMismatch = int(pointsMismatch.Load())
}

func verify(ctx context.Context, client *HTTPClient, players []Player, plan []Planned, stats *Stats) []error {
	var errs []error
	if stats.SessionsFailed > 0 {
		errs = append(errs, fmt.Errorf("%d submissions failed", stats.SessionsFailed))
	}
	if stats.EligibleMismatch > 0 {
		errs = append(errs, fmt.Errorf("%d sessions disagreed on eligibility", stats.EligibleMismatch))
	}
	if stats.PointsMismatch > 0 {
		errs = append(errs, fmt.Errorf("%d sessions disagreed on points", stats.PointsMismatch))
	}

	expected := ExpectedTotals(players, plan)
	for _, category := range []string{"score", "minutes"} {
		lb, err := client.Leaderboard(ctx, category, leaderboardLimit)
		if err != nil {
			errs = append(errs, fmt.Errorf("leaderboard %s: %w", category, err))
			continue
		}
		if err := VerifyOrdering(lb); err != nil {
			errs = append(errs, err)
		}
		if err := VerifyLeaderboardTotals(lb, expected); err != nil {
			errs = append(errs, err)
		}
	}

	for _, p := range players {
		resp, err := client.Rank(ctx, p.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("rank %s: %w", p.ID, err))
			continue
		}
		stats.RanksChecked++
		if err := VerifyRank(resp, expected[p.ID]); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
