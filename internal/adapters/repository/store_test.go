package repository_test

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/nback/internal/adapters/repository"
	"github.com/okian/nback/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var playedAt = time.Date(2026, 3, 4, 5, 6, 7, 123000000, time.UTC)

func sample(userID, username string, status model.Status, points *big.Int) model.ScoredSession {
	return model.ScoredSession{
		UserID:   userID,
		Username: username,
		SessionReport: model.SessionReport{
			Status:                  status,
			Title:                   "Dual N-Back",
			Mode:                    "dual",
			DifficultyLevel:         3,
			ModalityCount:           2,
			TrialIntervalMs:         model.Ptr(2500.0),
			CompletedTrialCount:     model.Ptr(24),
			MatchProbabilityPercent: model.Ptr(30.0),
			AccuracyFraction:        model.Ptr(0.75),
			ElapsedSeconds:          model.Ptr(90.5),
			OccurredAt:              playedAt,
		},
		Points:   points,
		Eligible: status == model.StatusCompleted,
	}
}

// exerciseLog runs the behaviour every backend must share.
func exerciseLog(open func() repository.Log) {
	ctx := context.Background()

	Convey("When sessions are appended", func() {
		log := open()
		huge := new(big.Int).Lsh(big.NewInt(1), 90)

		a, err := log.Append(ctx, sample("u1", "alice", model.StatusCompleted, huge))
		So(err, ShouldBeNil)
		b, err := log.Append(ctx, sample("", "legacy", model.StatusCancelled, big.NewInt(0)))
		So(err, ShouldBeNil)
		c, err := log.Append(ctx, sample("u1", "alice", model.StatusTombstone, big.NewInt(5)))
		So(err, ShouldBeNil)

		Convey("Then sequence numbers and ids are assigned", func() {
			So(a.Seq, ShouldBeLessThan, b.Seq)
			So(b.Seq, ShouldBeLessThan, c.Seq)
			So(a.ID, ShouldNotBeBlank)
			So(a.ID, ShouldNotEqual, b.ID)
		})

		Convey("Then a full scan returns every row in order with exact values", func() {
			var got []model.ScoredSession
			So(log.Scan(ctx, repository.Filter{}, func(s model.ScoredSession) error {
				got = append(got, s)
				return nil
			}), ShouldBeNil)

			So(len(got), ShouldEqual, 3)
			So(got[0].ID, ShouldEqual, a.ID)
			So(got[0].Points.Cmp(huge), ShouldEqual, 0)
			So(got[0].UserID, ShouldEqual, "u1")
			So(got[0].Username, ShouldEqual, "alice")
			So(got[0].Status, ShouldEqual, model.StatusCompleted)
			So(got[0].DifficultyLevel, ShouldEqual, 3)
			So(got[0].ModalityCount, ShouldEqual, 2)
			So(*got[0].TrialIntervalMs, ShouldEqual, 2500.0)
			So(*got[0].CompletedTrialCount, ShouldEqual, 24)
			So(*got[0].MatchProbabilityPercent, ShouldEqual, 30.0)
			So(*got[0].AccuracyFraction, ShouldEqual, 0.75)
			So(*got[0].ElapsedSeconds, ShouldEqual, 90.5)
			So(got[0].Eligible, ShouldBeTrue)
			So(got[0].OccurredAt.Equal(playedAt), ShouldBeTrue)
			So(got[1].UserID, ShouldEqual, "")
			So(got[1].Reason, ShouldEqual, model.ReasonNone)
		})

		Convey("Then filters exclude tombstones and narrow by user", func() {
			var ids []string
			So(log.Scan(ctx, repository.Filter{ExcludeTombstones: true, UserID: "u1"}, func(s model.ScoredSession) error {
				ids = append(ids, s.ID)
				return nil
			}), ShouldBeNil)
			So(ids, ShouldResemble, []string{a.ID})
		})

		Convey("Then an error from the callback stops the scan", func() {
			stop := errors.New("stop")
			calls := 0
			err := log.Scan(ctx, repository.Filter{}, func(model.ScoredSession) error {
				calls++
				return stop
			})
			So(err, ShouldEqual, stop)
			So(calls, ShouldEqual, 1)
		})

		Convey("Then absent optional fields round-trip as nil", func() {
			s := sample("u2", "bob", model.StatusCompleted, nil)
			s.TrialIntervalMs, s.CompletedTrialCount, s.MatchProbabilityPercent = nil, nil, nil
			s.AccuracyFraction, s.ElapsedSeconds = nil, nil
			s.Reason = model.ReasonMinTrials
			_, err := log.Append(ctx, s)
			So(err, ShouldBeNil)

			var got model.ScoredSession
			So(log.Scan(ctx, repository.Filter{UserID: "u2"}, func(s model.ScoredSession) error {
				got = s
				return nil
			}), ShouldBeNil)
			So(got.TrialIntervalMs, ShouldBeNil)
			So(got.CompletedTrialCount, ShouldBeNil)
			So(got.MatchProbabilityPercent, ShouldBeNil)
			So(got.AccuracyFraction, ShouldBeNil)
			So(got.ElapsedSeconds, ShouldBeNil)
			So(got.Points.Sign(), ShouldEqual, 0)
			So(got.Reason, ShouldEqual, model.ReasonMinTrials)
		})

		Convey("Then a caller-supplied id is stored as given", func() {
			s := sample("u3", "carol", model.StatusCompleted, big.NewInt(7))
			s.ID = "session-fixed"
			stored, err := log.Append(ctx, s)
			So(err, ShouldBeNil)
			So(stored.ID, ShouldEqual, "session-fixed")

			var ids []string
			So(log.Scan(ctx, repository.Filter{UserID: "u3"}, func(s model.ScoredSession) error {
				ids = append(ids, s.ID)
				return nil
			}), ShouldBeNil)
			So(ids, ShouldResemble, []string{"session-fixed"})
		})

		Convey("Then Ping succeeds", func() {
			So(log.Ping(ctx), ShouldBeNil)
		})
	})
}

func TestMemoryLog(t *testing.T) {
	Convey("Given a memory log", t, func() {
		exerciseLog(func() repository.Log {
			l := repository.NewMemoryLog(repository.WithIDGenerator(sequentialIDs()))
			Reset(func() { _ = l.Close() })
			return l
		})

		Convey("When the log is closed", func() {
			l := repository.NewMemoryLog()
			So(l.Close(), ShouldBeNil)

			Convey("Then every operation fails with ErrClosed", func() {
				_, err := l.Append(context.Background(), sample("u", "n", model.StatusCompleted, nil))
				So(err, ShouldEqual, repository.ErrClosed)
				So(l.Scan(context.Background(), repository.Filter{}, func(model.ScoredSession) error { return nil }), ShouldEqual, repository.ErrClosed)
				So(l.Ping(context.Background()), ShouldEqual, repository.ErrClosed)
			})
		})

		Convey("When a stored session's points are mutated by a caller", func() {
			l := repository.NewMemoryLog()
			p := big.NewInt(10)
			_, err := l.Append(context.Background(), sample("u", "n", model.StatusCompleted, p))
			So(err, ShouldBeNil)
			p.SetInt64(999)

			Convey("Then the log keeps its own copy", func() {
				var got *big.Int
				_ = l.Scan(context.Background(), repository.Filter{}, func(s model.ScoredSession) error {
					got = s.Points
					return nil
				})
				So(got.Int64(), ShouldEqual, 10)
				So(l.Len(), ShouldEqual, 1)
			})
		})

		Convey("When migrating", func() {
			n, err := repository.NewMemoryLog().Migrate(context.Background())
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})
	})
}

func TestSQLiteLog(t *testing.T) {
	Convey("Given a migrated sqlite log", t, func() {
		exerciseLog(func() repository.Log {
			l, err := repository.NewSQLiteLog(context.Background(), filepath.Join(t.TempDir(), "nback.db"))
			So(err, ShouldBeNil)
			Reset(func() { _ = l.Close() })
			n, err := l.Migrate(context.Background())
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			return l
		})
	})

	Convey("Given a sqlite log that was never migrated", t, func() {
		l, err := repository.NewSQLiteLog(context.Background(), filepath.Join(t.TempDir(), "empty.db"))
		So(err, ShouldBeNil)
		Reset(func() { _ = l.Close() })

		Convey("When appending", func() {
			_, err := l.Append(context.Background(), sample("u", "n", model.StatusCompleted, nil))

			Convey("Then the failure is reported as schema drift", func() {
				So(repository.IsSchemaDrift(err), ShouldBeTrue)
				So(repository.Kind(err), ShouldEqual, "schema_drift")
			})
		})

		Convey("When migrating twice", func() {
			_, err := l.Migrate(context.Background())
			So(err, ShouldBeNil)
			n, err := l.Migrate(context.Background())

			Convey("Then the second run applies nothing", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})
		})
	})
}

func TestPostgresLog(t *testing.T) {
	dsn := os.Getenv("NBACK_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("NBACK_TEST_DATABASE_URL not set")
	}

	Convey("Given a migrated postgres log", t, func() {
		exerciseLog(func() repository.Log {
			ctx := context.Background()
			l, err := repository.NewPostgresLog(ctx, dsn)
			So(err, ShouldBeNil)
			_, err = l.Migrate(ctx)
			So(err, ShouldBeNil)
			Reset(func() { _ = l.Close() })
			return &truncatingLog{PostgresLog: l, ctx: ctx}
		})
	})
}

// truncatingLog clears the shared table before first use so runs are independent.
type truncatingLog struct {
	*repository.PostgresLog
	ctx     context.Context
	cleared bool
}

func (t *truncatingLog) Append(ctx context.Context, s model.ScoredSession) (model.ScoredSession, error) {
	if !t.cleared {
		t.cleared = true
		if err := t.Truncate(t.ctx); err != nil {
			return model.ScoredSession{}, err
		}
	}
	return t.PostgresLog.Append(ctx, s)
}

func TestOpen(t *testing.T) {
	Convey("Given driver names", t, func() {
		ctx := context.Background()

		Convey("When opening memory or an empty driver", func() {
			for _, d := range []string{"", "memory", " Memory "} {
				l, err := repository.Open(ctx, d, "")
				So(err, ShouldBeNil)
				So(l.Driver(), ShouldEqual, repository.DriverMemory)
			}
		})

		Convey("When opening sqlite", func() {
			l, err := repository.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "x.db"))
			So(err, ShouldBeNil)
			So(l.Driver(), ShouldEqual, repository.DriverSQLite)
			So(l.Close(), ShouldBeNil)
		})

		Convey("When the driver is unknown", func() {
			l, err := repository.Open(ctx, "mongo", "")
			So(l, ShouldBeNil)
			So(errors.Is(err, repository.ErrUnknownDriver), ShouldBeTrue)
		})
	})
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return "s-" + string(rune('a'+n))
	}
}
