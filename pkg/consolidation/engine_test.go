package consolidation_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/theapemachine/lucid/pkg/consolidation"
	"github.com/theapemachine/lucid/pkg/graph"
	"github.com/theapemachine/lucid/pkg/memory"
	"github.com/theapemachine/lucid/pkg/provider"
	"github.com/theapemachine/lucid/pkg/stores/memstore"
)

/*
fakeExtractor is a programmable provider.Extractor. Tests set the claims
and verdict it should return and inspect how often the verdict was asked
for.
*/
type fakeExtractor struct {
	claims       []provider.Claim
	extractErr   error
	verdict      provider.Verdict
	verdictErr   error
	verdictCalls int
}

func (extractor *fakeExtractor) ExtractClaims(ctx context.Context, transcript string) ([]provider.Claim, error) {
	if extractor.extractErr != nil {
		return nil, extractor.extractErr
	}

	return extractor.claims, nil
}

func (extractor *fakeExtractor) Verdict(ctx context.Context, existing, incoming string) (provider.Verdict, error) {
	extractor.verdictCalls++

	if extractor.verdictErr != nil {
		return provider.Verdict{}, extractor.verdictErr
	}

	return extractor.verdict, nil
}

// seedMemory stores an active memory with the given embedding.
func seedMemory(store *memstore.Store, owner uuid.UUID, content string, vec []float32) *memory.Memory {
	mem := memory.New(owner, content, memory.TypeSemantic)
	mem.Embedding = vec

	So(store.InsertMemory(context.Background(), mem), ShouldBeNil)

	return mem
}

func TestDecide(t *testing.T) {
	Convey("Given an engine over a seeded store", t, func() {
		store := memstore.New()
		extractor := &fakeExtractor{}
		engine := consolidation.NewEngine(store, extractor, consolidation.DefaultConfig())
		owner := uuid.New()
		ctx := context.Background()

		existing := seedMemory(store, owner, "the user deploys on fridays", []float32{1, 0})

		Convey("When the claim restates an existing memory", func() {
			cand := memory.New(owner, "the user deploys on fridays", memory.TypeSemantic)
			cand.Embedding = []float32{1, 0}

			decision, err := engine.Decide(ctx, cand)

			Convey("Then the decision is update against that memory", func() {
				So(err, ShouldBeNil)
				So(decision.Action, ShouldEqual, consolidation.ActionUpdate)
				So(decision.Target.Memory.ID, ShouldEqual, existing.ID)
				So(extractor.verdictCalls, ShouldEqual, 0)
			})
		})

		Convey("When the claim lands in the conflict band and contradicts", func() {
			extractor.verdict = provider.Verdict{
				Kind:   provider.VerdictContradictory,
				Reason: "the deploy day changed",
			}

			cand := memory.New(owner, "the user now deploys on mondays", memory.TypeSemantic)
			cand.Embedding = []float32{0.6, 0.8}

			decision, err := engine.Decide(ctx, cand)

			Convey("Then the decision is refine with the verdict attached", func() {
				So(err, ShouldBeNil)
				So(decision.Action, ShouldEqual, consolidation.ActionRefine)
				So(decision.Target.Memory.ID, ShouldEqual, existing.ID)
				So(decision.Verdict.Kind, ShouldEqual, provider.VerdictContradictory)
				So(extractor.verdictCalls, ShouldEqual, 1)
			})
		})

		Convey("When the conflict check itself fails", func() {
			extractor.verdictErr = context.DeadlineExceeded

			cand := memory.New(owner, "deploys happen on some weekday", memory.TypeSemantic)
			cand.Embedding = []float32{0.6, 0.8}

			decision, err := engine.Decide(ctx, cand)

			Convey("Then the claim is treated as new with an inconclusive verdict", func() {
				So(err, ShouldBeNil)
				So(decision.Action, ShouldEqual, consolidation.ActionCreate)
				So(decision.Verdict.Kind, ShouldEqual, provider.VerdictInconclusive)
			})
		})

		Convey("When nothing similar exists", func() {
			cand := memory.New(owner, "the user's cat is called turing", memory.TypeSemantic)
			cand.Embedding = []float32{0, 1}

			decision, err := engine.Decide(ctx, cand)

			Convey("Then the claim is simply new", func() {
				So(err, ShouldBeNil)
				So(decision.Action, ShouldEqual, consolidation.ActionCreate)
				So(decision.Target, ShouldBeNil)
				So(extractor.verdictCalls, ShouldEqual, 0)
			})
		})
	})
}

func TestApplyUpdate(t *testing.T) {
	Convey("Given a duplicate claim", t, func() {
		store := memstore.New()
		extractor := &fakeExtractor{}
		engine := consolidation.NewEngine(store, extractor, consolidation.DefaultConfig())
		owner := uuid.New()
		ctx := context.Background()

		existing := seedMemory(store, owner, "the user deploys on fridays", []float32{1, 0})
		existing.Tags = []string{"deploys"}
		So(store.UpdateMemory(ctx, existing), ShouldBeNil)

		cand := memory.New(owner, "the user deploys on fridays", memory.TypeSemantic)
		cand.Embedding = []float32{1, 0}
		cand.Tags = []string{"schedule"}

		decision, err := engine.Decide(ctx, cand)
		So(err, ShouldBeNil)
		So(decision.Action, ShouldEqual, consolidation.ActionUpdate)

		Convey("When the decision is applied", func() {
			outcome, err := engine.Apply(ctx, cand, nil, nil, decision)

			Convey("Then the existing memory absorbs the claim", func() {
				So(err, ShouldBeNil)
				So(outcome.Action, ShouldEqual, consolidation.ActionUpdate)

				stored, err := store.GetMemory(ctx, owner, existing.ID)
				So(err, ShouldBeNil)
				So(stored.Tags, ShouldResemble, []string{"deploys", "schedule"})
				So(stored.Confidence, ShouldAlmostEqual, 0.85, 1e-9)
				So(stored.AccessCount, ShouldEqual, 1)

				active, err := store.CountMemories(ctx, owner, memory.StatusActive)
				So(err, ShouldBeNil)
				So(active, ShouldEqual, 1)
			})
		})
	})
}

func TestApplyRefine(t *testing.T) {
	Convey("Given a contradicting claim", t, func() {
		store := memstore.New()
		extractor := &fakeExtractor{
			verdict: provider.Verdict{
				Kind:   provider.VerdictContradictory,
				Reason: "the deploy day changed",
			},
		}
		engine := consolidation.NewEngine(store, extractor, consolidation.DefaultConfig())
		owner := uuid.New()
		ctx := context.Background()

		old := seedMemory(store, owner, "the user deploys on fridays", []float32{1, 0})

		cand := memory.New(owner, "the user now deploys on mondays", memory.TypeSemantic)
		cand.Embedding = []float32{0.6, 0.8}

		decision, err := engine.Decide(ctx, cand)
		So(err, ShouldBeNil)
		So(decision.Action, ShouldEqual, consolidation.ActionRefine)

		Convey("When the decision is applied", func() {
			outcome, err := engine.Apply(ctx, cand, nil, nil, decision)

			Convey("Then the old memory is superseded, not deleted", func() {
				So(err, ShouldBeNil)
				So(outcome.ConflictResolved, ShouldBeTrue)
				So(outcome.Superseded.ID, ShouldEqual, old.ID)

				stored, err := store.GetMemory(ctx, owner, old.ID)
				So(err, ShouldBeNil)
				So(stored.Status, ShouldEqual, memory.StatusSuperseded)
				So(*stored.SupersededBy, ShouldEqual, cand.ID)
			})

			Convey("And the lineage edge points old to new", func() {
				So(err, ShouldBeNil)

				edge, err := store.GetEdge(ctx, owner, old.ID, cand.ID, graph.EdgeEvolvesInto)
				So(err, ShouldBeNil)
				So(edge.Causality, ShouldBeTrue)
				So(edge.Reason, ShouldEqual, "the deploy day changed")
			})
		})
	})
}

func TestApplyCreate(t *testing.T) {
	Convey("Given an engine over a seeded store", t, func() {
		store := memstore.New()
		extractor := &fakeExtractor{
			verdict: provider.Verdict{Kind: provider.VerdictCompatible},
		}
		engine := consolidation.NewEngine(store, extractor, consolidation.DefaultConfig())
		owner := uuid.New()
		ctx := context.Background()

		Convey("When a compatible claim is close to a neighbor", func() {
			neighbor := seedMemory(store, owner, "the user runs postgres in docker", []float32{1, 0})

			cand := memory.New(owner, "the user tunes postgres memory settings", memory.TypeSemantic)
			cand.Embedding = []float32{0.8, 0.6}

			decision, err := engine.Decide(ctx, cand)
			So(err, ShouldBeNil)
			So(decision.Action, ShouldEqual, consolidation.ActionCreate)

			outcome, err := engine.Apply(ctx, cand, nil, nil, decision)

			Convey("Then the memory is created and related to the neighbor", func() {
				So(err, ShouldBeNil)
				So(outcome.EdgesCreated, ShouldEqual, 1)

				stored, err := store.GetMemory(ctx, owner, cand.ID)
				So(err, ShouldBeNil)
				So(stored.Status, ShouldEqual, memory.StatusActive)

				edge, err := store.GetEdge(ctx, owner, cand.ID, neighbor.ID, graph.EdgeRelatedTo)
				So(err, ShouldBeNil)
				So(edge.Bidirectional, ShouldBeTrue)
			})
		})

		Convey("When the conflict check was inconclusive", func() {
			extractor.verdict = provider.Verdict{Kind: provider.VerdictInconclusive}
			seedMemory(store, owner, "the user deploys on fridays", []float32{1, 0})

			cand := memory.New(owner, "deploys might have moved to mondays", memory.TypeSemantic)
			cand.Embedding = []float32{0.6, 0.8}
			cand.Confidence = 0.7

			decision, err := engine.Decide(ctx, cand)
			So(err, ShouldBeNil)
			So(decision.Action, ShouldEqual, consolidation.ActionCreate)

			_, err = engine.Apply(ctx, cand, nil, nil, decision)

			Convey("Then the new memory lands as a low-confidence draft", func() {
				So(err, ShouldBeNil)

				stored, err := store.GetMemory(ctx, owner, cand.ID)
				So(err, ShouldBeNil)
				So(stored.Confidence, ShouldAlmostEqual, 0.5, 1e-9)
				So(stored.Status, ShouldEqual, memory.StatusDraft)
			})
		})
	})
}
