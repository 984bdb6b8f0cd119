package model_test

import (
	"math/big"
	"testing"

	model "github.com/okian/nback/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestStatus(t *testing.T) {
	convey.Convey("Given session status strings", t, func() {
		convey.Convey("When parsing known statuses", func() {
			for _, s := range []string{"completed", "cancelled", "tombstone", "  completed "} {
				st, ok := model.ParseStatus(s)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(st.Valid(), convey.ShouldBeTrue)
			}
		})

		convey.Convey("When parsing unknown statuses", func() {
			for _, s := range []string{"", "done", "Completed", "aborted"} {
				_, ok := model.ParseStatus(s)
				convey.So(ok, convey.ShouldBeFalse)
			}
		})
	})
}

func TestScoredSession(t *testing.T) {
	convey.Convey("Given a scored session", t, func() {
		convey.Convey("When points are unset", func() {
			s := model.ScoredSession{}

			convey.Convey("Then PointsOrZero returns zero", func() {
				convey.So(s.PointsOrZero().Sign(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When points are set", func() {
			s := model.ScoredSession{Points: big.NewInt(32)}
			convey.So(s.PointsOrZero().Int64(), convey.ShouldEqual, 32)
		})

		convey.Convey("When elapsed seconds are present", func() {
			s := model.ScoredSession{SessionReport: model.SessionReport{ElapsedSeconds: model.Ptr(90.0)}}
			convey.So(s.ElapsedMinutes(), convey.ShouldEqual, 1.5)
		})

		convey.Convey("When elapsed seconds are absent", func() {
			convey.So(model.ScoredSession{}.ElapsedMinutes(), convey.ShouldEqual, 0)
		})
	})
}

func TestSessionReportScoringDepth(t *testing.T) {
	convey.Convey("Given a session report", t, func() {
		convey.Convey("When only the floored depth is set", func() {
			r := model.SessionReport{DifficultyLevel: 3}
			convey.So(r.ScoringDepth(), convey.ShouldEqual, 3.0)
		})

		convey.Convey("When a fractional depth was reported", func() {
			r := model.SessionReport{DifficultyLevel: 2, Depth: 2.5}
			convey.So(r.ScoringDepth(), convey.ShouldEqual, 2.5)
		})
	})
}
