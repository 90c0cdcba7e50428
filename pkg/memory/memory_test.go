package memory

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInferType(t *testing.T) {
	Convey("Given claim type hints and content", t, func() {
		Convey("When the extractor suggested a known claim type", func() {
			So(InferType("anything", "preference"), ShouldEqual, TypePreference)
			So(InferType("anything", "fact"), ShouldEqual, TypeSemantic)
			So(InferType("anything", "how_to"), ShouldEqual, TypeProcedural)
			So(InferType("anything", "struggle"), ShouldEqual, TypeMeta)
			So(InferType("anything", "decision"), ShouldEqual, TypeEpisodic)
		})

		Convey("When the hint is already a memory type name", func() {
			So(InferType("anything", "procedural"), ShouldEqual, TypeProcedural)
			So(InferType("anything", "meta"), ShouldEqual, TypeMeta)
		})

		Convey("When only the content can decide", func() {
			So(InferType("I prefer tabs over spaces", ""), ShouldEqual, TypePreference)
			So(InferType("Run the migration before starting the server", ""), ShouldEqual, TypeProcedural)
			So(InferType("The capital of France is Paris", ""), ShouldEqual, TypeSemantic)
		})
	})
}

func TestCalculateImportance(t *testing.T) {
	Convey("Given content of varying richness", t, func() {
		Convey("Then preferences start above episodic memories", func() {
			pref := CalculateImportance("short", TypePreference, 0)
			episodic := CalculateImportance("short", TypeEpisodic, 0)
			So(pref, ShouldBeGreaterThan, episodic)
		})

		Convey("Then entity mentions raise importance", func() {
			plain := CalculateImportance("some fact", TypeSemantic, 0)
			rich := CalculateImportance("some fact", TypeSemantic, 3)
			So(rich, ShouldBeGreaterThan, plain)
		})

		Convey("Then the result stays inside 1 through 10", func() {
			low := CalculateImportance("x", TypeEpisodic, 0)
			high := CalculateImportance(strings.Repeat("detail ", 100), TypePreference, 5)
			So(low, ShouldBeBetweenOrEqual, 1, 10)
			So(high, ShouldBeBetweenOrEqual, 1, 10)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given a memory", t, func() {
		owner := uuid.New()

		Convey("When it is well formed", func() {
			mem := New(owner, "the user prefers postgres", TypePreference)
			So(mem.Validate(), ShouldBeNil)
		})

		Convey("When content is blank", func() {
			mem := New(owner, "   ", TypeSemantic)
			So(mem.Validate(), ShouldNotBeNil)
		})

		Convey("When the owner is missing", func() {
			mem := New(uuid.Nil, "valid content", TypeSemantic)
			So(mem.Validate(), ShouldNotBeNil)
		})

		Convey("When importance is out of range", func() {
			mem := New(owner, "valid content", TypeSemantic)
			mem.Importance = 11
			So(mem.Validate(), ShouldNotBeNil)
		})

		Convey("When confidence is out of range", func() {
			mem := New(owner, "valid content", TypeSemantic)
			mem.Confidence = 1.2
			So(mem.Validate(), ShouldNotBeNil)
		})

		Convey("When the type is unknown", func() {
			mem := New(owner, "valid content", Type("hunch"))
			So(mem.Validate(), ShouldNotBeNil)
		})
	})
}

func TestValidateChain(t *testing.T) {
	Convey("Given an arena of memories", t, func() {
		owner := uuid.New()
		arena := Arena{}

		first := New(owner, "first", TypeSemantic)
		second := New(owner, "second", TypeSemantic)
		first.Status = StatusSuperseded
		first.SupersededBy = &second.ID
		arena[first.ID] = first
		arena[second.ID] = second

		Convey("Then a linear chain validates", func() {
			So(arena.ValidateChain(first.ID), ShouldBeNil)
		})

		Convey("Then a cycle is rejected", func() {
			second.Status = StatusSuperseded
			second.SupersededBy = &first.ID
			So(arena.ValidateChain(first.ID), ShouldNotBeNil)
		})
	})
}

func TestScoredRelevance(t *testing.T) {
	Convey("Given two equally similar memories", t, func() {
		important := New(uuid.New(), "a", TypeSemantic)
		important.Importance = 10
		trivial := New(uuid.New(), "b", TypeSemantic)
		trivial.Importance = 1

		Convey("Then the important one ranks higher", func() {
			a := Scored{Memory: important, Similarity: 0.8}
			b := Scored{Memory: trivial, Similarity: 0.8}
			So(a.Relevance(), ShouldBeGreaterThan, b.Relevance())
		})
	})
}
