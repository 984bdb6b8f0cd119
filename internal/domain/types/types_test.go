package types_test

import (
	"math/big"
	"testing"

	types "github.com/okian/nback/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseCategory(t *testing.T) {
	Convey("Given category strings", t, func() {
		Convey("Then minutes is recognised case-insensitively", func() {
			So(types.ParseCategory("minutes"), ShouldEqual, types.CategoryMinutes)
			So(types.ParseCategory(" MINUTES "), ShouldEqual, types.CategoryMinutes)
		})

		Convey("Then anything else falls back to score", func() {
			So(types.ParseCategory(""), ShouldEqual, types.CategoryScore)
			So(types.ParseCategory("score"), ShouldEqual, types.CategoryScore)
			So(types.ParseCategory("elo"), ShouldEqual, types.CategoryScore)
		})
	})
}

func TestUserTotalsPoints(t *testing.T) {
	Convey("Given user totals", t, func() {
		So(types.UserTotals{}.Points().Sign(), ShouldEqual, 0)
		So(types.UserTotals{TotalPoints: big.NewInt(7)}.Points().Int64(), ShouldEqual, 7)
	})
}
