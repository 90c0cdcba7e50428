package provider

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestStripFences(t *testing.T) {
	Convey("Given model output in various wrappers", t, func() {
		Convey("When the payload is bare JSON", func() {
			So(stripFences(`[{"content":"a"}]`), ShouldEqual, `[{"content":"a"}]`)
		})

		Convey("When the payload sits in a plain fence", func() {
			So(stripFences("```\n[1,2]\n```"), ShouldEqual, "[1,2]")
		})

		Convey("When the fence carries a language tag", func() {
			So(stripFences("```json\n{\"kind\":\"compatible\"}\n```"), ShouldEqual, `{"kind":"compatible"}`)
		})

		Convey("When the output has stray whitespace", func() {
			So(stripFences("  \n[1]\n  "), ShouldEqual, "[1]")
		})
	})
}
