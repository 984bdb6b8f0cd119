package scoring_test

import (
	"math"
	"testing"

	"github.com/okian/nback/internal/domain/model"
	scoring "github.com/okian/nback/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInferModalities(t *testing.T) {
	Convey("Given modality hints", t, func() {
		Convey("When an explicit count is present", func() {
			h := scoring.ModalityHints{Explicit: model.Ptr(3.7), Tags: []string{"a"}, Title: "Quad"}

			Convey("Then it wins and is floored", func() {
				So(scoring.InferModalities(h), ShouldEqual, 3)
			})
		})

		Convey("When the explicit count is unusable", func() {
			for _, v := range []float64{0, -2, 0.5, math.NaN(), math.Inf(1)} {
				h := scoring.ModalityHints{Explicit: model.Ptr(v), Tags: []string{"position", "audio"}}
				So(scoring.InferModalities(h), ShouldEqual, 2)
			}
		})

		Convey("When the explicit count is huge but finite", func() {
			h := scoring.ModalityHints{Explicit: model.Ptr(1e300)}
			So(scoring.InferModalities(h), ShouldEqual, math.MaxInt32)
		})

		Convey("When only tags are present", func() {
			h := scoring.ModalityHints{Tags: []string{"position", "color", "shape"}}
			So(scoring.InferModalities(h), ShouldEqual, 3)
		})

		Convey("When only keywords are present", func() {
			So(scoring.InferModalities(scoring.ModalityHints{Title: "Quad N-Back"}), ShouldEqual, 4)
			So(scoring.InferModalities(scoring.ModalityHints{Title: "DUAL"}), ShouldEqual, 2)
			So(scoring.InferModalities(scoring.ModalityHints{Mode: "dual-classic"}), ShouldEqual, 2)
		})

		Convey("When the title is set it is preferred over the mode", func() {
			h := scoring.ModalityHints{Title: "Classic", Mode: "quad"}
			So(scoring.InferModalities(h), ShouldEqual, 1)
		})

		Convey("When nothing matches", func() {
			So(scoring.InferModalities(scoring.ModalityHints{}), ShouldEqual, 1)
		})

		Convey("When custom rules are appended", func() {
			inferer := scoring.NewModalityInferer(append(scoring.DefaultModalityRules(),
				scoring.KeywordModalities("tri", 3))...)

			Convey("Then they apply after the defaults", func() {
				So(inferer.Infer(scoring.ModalityHints{Title: "tri-back"}), ShouldEqual, 3)
				So(inferer.Infer(scoring.ModalityHints{Title: "quad"}), ShouldEqual, 4)
			})
		})
	})
}
