package utils

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestConvertToFloat32(t *testing.T) {
	Convey("Given a float64 vector", t, func() {
		out := ConvertToFloat32([]float64{0.5, -1.25})

		Convey("Then values carry over at float32 precision", func() {
			So(out, ShouldResemble, []float32{0.5, -1.25})
		})
	})
}

func TestTruncate(t *testing.T) {
	Convey("Given strings of varying length", t, func() {
		Convey("Then short strings pass through untouched", func() {
			So(Truncate("hello", 10), ShouldEqual, "hello")
		})

		Convey("Then long strings are cut with an ellipsis", func() {
			So(Truncate("hello world", 5), ShouldEqual, "hello…")
		})

		Convey("Then multibyte runes are not split", func() {
			So(Truncate("héllo wörld", 5), ShouldEqual, "héllo…")
		})
	})
}
