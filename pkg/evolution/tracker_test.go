package evolution_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/theapemachine/lucid/pkg/entity"
	"github.com/theapemachine/lucid/pkg/evolution"
	"github.com/theapemachine/lucid/pkg/graph"
	"github.com/theapemachine/lucid/pkg/memory"
	"github.com/theapemachine/lucid/pkg/stores/memstore"
)

// seed stores an active memory linked to the hub, created at the given
// time with the given confidence.
func seed(
	store *memstore.Store,
	owner, hubID uuid.UUID,
	content string,
	createdAt time.Time,
	confidence float64,
) *memory.Memory {
	ctx := context.Background()

	mem := memory.New(owner, content, memory.TypeSemantic)
	mem.CreatedAt = createdAt
	mem.Confidence = confidence

	So(store.InsertMemory(ctx, mem), ShouldBeNil)
	So(store.LinkMemory(ctx, owner, mem.ID, []*entity.Link{{
		ID:       uuid.New(),
		MemoryID: mem.ID,
		EntityID: hubID,
		Owner:    owner,
		Strength: 1.0,
	}}), ShouldBeNil)

	return mem
}

func TestAnalyze(t *testing.T) {
	Convey("Given memories about one entity across time", t, func() {
		store := memstore.New()
		tracker := evolution.NewTracker(store)
		owner := uuid.New()
		ctx := context.Background()

		hub := &entity.Hub{
			ID:    uuid.New(),
			Owner: owner,
			Name:  "postgres",
			Type:  entity.HubTech,
		}
		So(store.InsertHub(ctx, hub), ShouldBeNil)

		base := time.Now().UTC().Add(-96 * time.Hour)

		first := seed(store, owner, hub.ID, "the user is evaluating postgres", base, 0.6)
		second := seed(store, owner, hub.ID, "the user adopted postgres", base.Add(24*time.Hour), 0.9)
		third := seed(store, owner, hub.ID, "the user also mentioned postgres", base.Add(48*time.Hour), 0.9)
		fourth := seed(store, owner, hub.ID, "postgres tuning is frustrating them", base.Add(72*time.Hour), 0.5)

		Convey("When the full timeline is analyzed", func() {
			timeline, err := tracker.Analyze(ctx, owner, "Postgres", 0)

			Convey("Then events are classified oldest first", func() {
				So(err, ShouldBeNil)
				So(timeline.Entity, ShouldEqual, "postgres")
				So(len(timeline.Events), ShouldEqual, 4)

				So(timeline.Events[0].MemoryID, ShouldEqual, first.ID)
				So(timeline.Events[0].Change, ShouldEqual, evolution.ChangeIntroduced)
				So(timeline.Events[1].Change, ShouldEqual, evolution.ChangeStrengthened)
				So(timeline.Events[2].Change, ShouldEqual, evolution.ChangeMentioned)
				So(timeline.Events[3].Change, ShouldEqual, evolution.ChangeWeakened)
			})

			Convey("And a superseding memory shows up as evolved", func() {
				So(err, ShouldBeNil)
				So(store.SetMemoryStatus(
					ctx, owner, second.ID, memory.StatusSuperseded, &third.ID,
				), ShouldBeNil)

				again, err := tracker.Analyze(ctx, owner, "postgres", 0)
				So(err, ShouldBeNil)
				So(again.Events[2].MemoryID, ShouldEqual, third.ID)
				So(again.Events[2].Change, ShouldEqual, evolution.ChangeEvolved)
				So(again.Events[1].Status, ShouldEqual, memory.StatusSuperseded)
			})
		})

		Convey("When transition edges connect the memories", func() {
			So(store.InsertEdge(ctx, &graph.Edge{
				ID:         uuid.New(),
				Owner:      owner,
				From:       second.ID,
				To:         third.ID,
				Type:       graph.EdgeContradicts,
				Strength:   1.0,
				Confidence: 0.9,
				Reason:     "switched languages",
			}), ShouldBeNil)
			So(store.InsertEdge(ctx, &graph.Edge{
				ID:         uuid.New(),
				Owner:      owner,
				From:       third.ID,
				To:         fourth.ID,
				Type:       graph.EdgeEvolvesInto,
				Strength:   1.0,
				Confidence: 0.9,
				Causality:  true,
				Reason:     "tuning changed their mind",
			}), ShouldBeNil)

			timeline, err := tracker.Analyze(ctx, owner, "postgres", 0)

			Convey("Then events carry the edge type and reason", func() {
				So(err, ShouldBeNil)

				So(timeline.Events[2].Change, ShouldEqual, evolution.ChangeWeakened)
				So(timeline.Events[2].EdgeType, ShouldEqual, graph.EdgeContradicts)
				So(timeline.Events[2].EdgeReason, ShouldEqual, "switched languages")
				So(timeline.Events[2].Causal, ShouldBeFalse)

				So(timeline.Events[3].Change, ShouldEqual, evolution.ChangeEvolved)
				So(timeline.Events[3].EdgeType, ShouldEqual, graph.EdgeEvolvesInto)
				So(timeline.Events[3].EdgeReason, ShouldEqual, "tuning changed their mind")
				So(timeline.Events[3].Causal, ShouldBeTrue)
			})

			Convey("And edge-free events keep the confidence classification", func() {
				So(err, ShouldBeNil)
				So(timeline.Events[0].Change, ShouldEqual, evolution.ChangeIntroduced)
				So(timeline.Events[0].EdgeType, ShouldEqual, graph.EdgeType(""))
				So(timeline.Events[1].Change, ShouldEqual, evolution.ChangeStrengthened)
			})
		})

		Convey("When a window excludes the older memories", func() {
			timeline, err := tracker.Analyze(ctx, owner, "postgres", 60*time.Hour)

			Convey("Then only recent events remain, re-anchored", func() {
				So(err, ShouldBeNil)
				So(len(timeline.Events), ShouldEqual, 2)
				So(timeline.Events[0].MemoryID, ShouldEqual, third.ID)
				So(timeline.Events[0].Change, ShouldEqual, evolution.ChangeIntroduced)
				So(timeline.Events[1].MemoryID, ShouldEqual, fourth.ID)
			})
		})

		Convey("When the entity was never mentioned", func() {
			timeline, err := tracker.Analyze(ctx, owner, "kubernetes", 0)

			Convey("Then the timeline is empty, not an error", func() {
				So(err, ShouldBeNil)
				So(len(timeline.Events), ShouldEqual, 0)
			})
		})
	})
}
