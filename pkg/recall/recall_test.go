package recall_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/theapemachine/lucid/pkg/entity"
	"github.com/theapemachine/lucid/pkg/graph"
	"github.com/theapemachine/lucid/pkg/memory"
	"github.com/theapemachine/lucid/pkg/recall"
	"github.com/theapemachine/lucid/pkg/stores/memstore"
)

// queryEmbedder returns the same vector for every input.
type queryEmbedder struct {
	vec []float32
}

func (embedder *queryEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedder.vec, nil
}

func (embedder *queryEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	for i := range texts {
		out[i] = embedder.vec
	}

	return out, nil
}

func storeMemory(
	store *memstore.Store, owner uuid.UUID, content string, vec []float32,
) *memory.Memory {
	mem := memory.New(owner, content, memory.TypeSemantic)
	mem.Embedding = vec

	So(store.InsertMemory(context.Background(), mem), ShouldBeNil)

	return mem
}

func TestRecall(t *testing.T) {
	Convey("Given a store with memories of varying similarity", t, func() {
		store := memstore.New()
		embedder := &queryEmbedder{vec: []float32{1, 0}}
		engine := recall.NewEngine(store, embedder, recall.DefaultConfig())
		owner := uuid.New()
		ctx := context.Background()

		exact := storeMemory(store, owner, "the user runs postgres in docker", []float32{1, 0})
		near := storeMemory(store, owner, "the user tunes postgres settings", []float32{0.8, 0.6})
		far := storeMemory(store, owner, "the user has a cat called turing", []float32{0, 1})

		Convey("When recalling with no filters", func() {
			result, err := engine.Recall(ctx, owner, "postgres setup", recall.Filters{}, 5)

			Convey("Then hits come back by relevance with the noise dropped", func() {
				So(err, ShouldBeNil)
				So(len(result.Memories), ShouldEqual, 2)
				So(result.Memories[0].Memory.ID, ShouldEqual, exact.ID)
				So(result.Memories[1].Memory.ID, ShouldEqual, near.ID)
				So(result.TotalAvailable, ShouldEqual, 3)
			})

			Convey("And returned memories get their access counters bumped", func() {
				So(err, ShouldBeNil)

				stored, err := store.GetMemory(ctx, owner, exact.ID)
				So(err, ShouldBeNil)
				So(stored.AccessCount, ShouldEqual, 1)
				So(stored.LastAccessed, ShouldNotBeNil)

				untouched, err := store.GetMemory(ctx, owner, far.ID)
				So(err, ShouldBeNil)
				So(untouched.AccessCount, ShouldEqual, 0)
			})
		})

		Convey("When a memory evolved into a newer version", func() {
			successor := storeMemory(store, owner, "the user moved postgres to kubernetes", []float32{0.9, 0.43589})

			_, err := graph.NewBuilder(store).AddEdge(ctx, &graph.Edge{
				Owner:      owner,
				From:       exact.ID,
				To:         successor.ID,
				Type:       graph.EdgeEvolvesInto,
				Strength:   1.0,
				Confidence: 0.9,
			})
			So(err, ShouldBeNil)

			result, err := engine.Recall(ctx, owner, "postgres setup", recall.Filters{}, 5)

			Convey("Then the obsolete memory is filtered out", func() {
				So(err, ShouldBeNil)
				So(result.EvolutionFiltered, ShouldEqual, 1)

				for _, hit := range result.Memories {
					So(hit.Memory.ID, ShouldNotEqual, exact.ID)
				}
			})
		})

		Convey("When an importance filter applies", func() {
			near.Importance = 9
			So(store.UpdateMemory(ctx, near), ShouldBeNil)

			result, err := engine.Recall(ctx, owner, "postgres setup", recall.Filters{
				MinImportance: 8,
			}, 5)

			Convey("Then only important memories survive", func() {
				So(err, ShouldBeNil)
				So(len(result.Memories), ShouldEqual, 1)
				So(result.Memories[0].Memory.ID, ShouldEqual, near.ID)
			})
		})

		Convey("When an entity filter scopes the query", func() {
			hub := &entity.Hub{ID: uuid.New(), Owner: owner, Name: "postgres", Type: entity.HubTech}
			So(store.InsertHub(ctx, hub), ShouldBeNil)
			So(store.LinkMemory(ctx, owner, near.ID, []*entity.Link{{
				MemoryID: near.ID, EntityID: hub.ID, Owner: owner, Strength: 1,
			}}), ShouldBeNil)

			result, err := engine.Recall(ctx, owner, "postgres setup", recall.Filters{
				Entity: "Postgres",
			}, 5)

			Convey("Then only memories linked to the entity return", func() {
				So(err, ShouldBeNil)
				So(len(result.Memories), ShouldEqual, 1)
				So(result.Memories[0].Memory.ID, ShouldEqual, near.ID)
			})
		})

		Convey("When recent access boosts an otherwise weaker hit", func() {
			So(store.TouchMemories(ctx, owner, []uuid.UUID{near.ID}), ShouldBeNil)

			boosted, err := engine.Recall(ctx, owner, "postgres setup", recall.Filters{}, 5)

			Convey("Then its similarity carries the recency boost", func() {
				So(err, ShouldBeNil)
				So(len(boosted.Memories), ShouldEqual, 2)

				for _, hit := range boosted.Memories {
					if hit.Memory.ID == near.ID {
						So(hit.Similarity, ShouldAlmostEqual, 0.9, 1e-6)
					}
				}
			})
		})
	})
}

func TestEntityExpansion(t *testing.T) {
	Convey("Given one vector hit linked to a shared entity", t, func() {
		store := memstore.New()
		embedder := &queryEmbedder{vec: []float32{1, 0}}
		engine := recall.NewEngine(store, embedder, recall.DefaultConfig())
		owner := uuid.New()
		ctx := context.Background()

		hit := storeMemory(store, owner, "the user runs postgres in docker", []float32{1, 0})
		sibling := storeMemory(store, owner, "the user backs up postgres nightly", []float32{0, 1})

		hub := &entity.Hub{ID: uuid.New(), Owner: owner, Name: "postgres", Type: entity.HubTech}
		So(store.InsertHub(ctx, hub), ShouldBeNil)

		for _, id := range []uuid.UUID{hit.ID, sibling.ID} {
			So(store.LinkMemory(ctx, owner, id, []*entity.Link{{
				MemoryID: id, EntityID: hub.ID, Owner: owner, Strength: 1,
			}}), ShouldBeNil)
		}

		Convey("When the vector search alone cannot fill the page", func() {
			result, err := engine.Recall(ctx, owner, "postgres setup", recall.Filters{}, 5)

			Convey("Then the sibling joins through the shared hub, ranked after", func() {
				So(err, ShouldBeNil)
				So(result.EntityExpanded, ShouldEqual, 1)
				So(len(result.Memories), ShouldEqual, 2)
				So(result.Memories[0].Memory.ID, ShouldEqual, hit.ID)
				So(result.Memories[1].Memory.ID, ShouldEqual, sibling.ID)
				So(result.Memories[1].Similarity, ShouldEqual, 0.5)
			})
		})
	})
}
