package graph

import (
	"context"
	"testing"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/theapemachine/lucid/pkg/entity"
	"github.com/theapemachine/lucid/pkg/errors"
)

type edgeKey struct {
	from, to uuid.UUID
	edgeType EdgeType
}

// fakeGraph is an in-memory Store for builder tests.
type fakeGraph struct {
	edges map[edgeKey]*Edge
	links map[uuid.UUID][]*entity.Link
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		edges: map[edgeKey]*Edge{},
		links: map[uuid.UUID][]*entity.Link{},
	}
}

func (store *fakeGraph) GetEdge(ctx context.Context, owner, from, to uuid.UUID, edgeType EdgeType) (*Edge, error) {
	if edge, ok := store.edges[edgeKey{from, to, edgeType}]; ok {
		return edge, nil
	}

	return nil, errors.ErrNotFound
}

func (store *fakeGraph) InsertEdge(ctx context.Context, edge *Edge) error {
	key := edgeKey{edge.From, edge.To, edge.Type}

	if _, ok := store.edges[key]; ok {
		return errors.NewConstraint("knowledge_edges", string(key.edgeType), errors.ErrNotFound)
	}

	store.edges[key] = edge

	return nil
}

func (store *fakeGraph) UpdateEdge(ctx context.Context, edge *Edge) error {
	store.edges[edgeKey{edge.From, edge.To, edge.Type}] = edge
	return nil
}

func (store *fakeGraph) EdgesTouching(ctx context.Context, owner, memoryID uuid.UUID) ([]*Edge, error) {
	var out []*Edge

	for _, edge := range store.edges {
		if edge.From == memoryID || edge.To == memoryID {
			out = append(out, edge)
		}
	}

	return out, nil
}

func (store *fakeGraph) EdgesAmong(ctx context.Context, owner uuid.UUID, ids []uuid.UUID, types []EdgeType) ([]*Edge, error) {
	member := map[uuid.UUID]bool{}

	for _, id := range ids {
		member[id] = true
	}

	var out []*Edge

	for _, edge := range store.edges {
		if member[edge.From] && member[edge.To] {
			out = append(out, edge)
		}
	}

	return out, nil
}

func (store *fakeGraph) LinksForMemory(ctx context.Context, owner, memoryID uuid.UUID) ([]*entity.Link, error) {
	return store.links[memoryID], nil
}

func (store *fakeGraph) LinksForEntity(ctx context.Context, owner, entityID uuid.UUID) ([]*entity.Link, error) {
	var out []*entity.Link

	for _, links := range store.links {
		for _, link := range links {
			if link.EntityID == entityID {
				out = append(out, link)
			}
		}
	}

	return out, nil
}

func TestAddEdge(t *testing.T) {
	Convey("Given a builder over an empty graph", t, func() {
		store := newFakeGraph()
		builder := NewBuilder(store)
		owner := uuid.New()
		from, to := uuid.New(), uuid.New()
		ctx := context.Background()

		Convey("When a new edge is added", func() {
			edge, err := builder.AddEdge(ctx, &Edge{
				Owner:      owner,
				From:       from,
				To:         to,
				Type:       EdgeSupports,
				Strength:   0.8,
				Confidence: 0.6,
			})

			Convey("Then it is stored with a generated id", func() {
				So(err, ShouldBeNil)
				So(edge.ID, ShouldNotEqual, uuid.Nil)
				So(len(store.edges), ShouldEqual, 1)
			})

			Convey("And when the same relationship is added again", func() {
				again, err := builder.AddEdge(ctx, &Edge{
					Owner:      owner,
					From:       from,
					To:         to,
					Type:       EdgeSupports,
					Strength:   0.4,
					Confidence: 0.9,
					Reason:     "seen again",
				})

				Convey("Then the edge is strengthened, not duplicated", func() {
					So(err, ShouldBeNil)
					So(len(store.edges), ShouldEqual, 1)
					So(again.ID, ShouldEqual, edge.ID)
					So(again.Strength, ShouldAlmostEqual, 0.8*0.7+0.4*0.3, 1e-9)
					So(again.Confidence, ShouldEqual, 0.9)
					So(again.Reason, ShouldEqual, "seen again")
				})
			})
		})

		Convey("When the edge is a self-loop", func() {
			_, err := builder.AddEdge(ctx, &Edge{
				Owner: owner, From: from, To: from, Type: EdgeRelatedTo,
			})

			So(errors.IsValidation(err), ShouldBeTrue)
		})

		Convey("When strength is out of range", func() {
			_, err := builder.AddEdge(ctx, &Edge{
				Owner: owner, From: from, To: to, Type: EdgeRelatedTo, Strength: 1.2,
			})

			So(errors.IsValidation(err), ShouldBeTrue)
		})
	})
}

func TestGetRelated(t *testing.T) {
	Convey("Given a small chain of memories", t, func() {
		store := newFakeGraph()
		builder := NewBuilder(store)
		owner := uuid.New()
		ctx := context.Background()

		a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()

		mustAdd := func(edge *Edge) {
			_, err := builder.AddEdge(ctx, edge)
			So(err, ShouldBeNil)
		}

		mustAdd(&Edge{Owner: owner, From: a, To: b, Type: EdgeLeadsTo, Strength: 1})
		mustAdd(&Edge{Owner: owner, From: b, To: c, Type: EdgeLeadsTo, Strength: 1})
		mustAdd(&Edge{Owner: owner, From: d, To: a, Type: EdgeRelatedTo, Strength: 1, Bidirectional: true})

		Convey("When traversing one hop", func() {
			related, err := builder.GetRelated(ctx, owner, a, 1)

			Convey("Then direct and bidirectional neighbors appear", func() {
				So(err, ShouldBeNil)
				So(len(related), ShouldEqual, 2)

				found := map[uuid.UUID]int{}
				for _, rel := range related {
					found[rel.MemoryID] = rel.Depth
				}

				So(found[b], ShouldEqual, 1)
				So(found[d], ShouldEqual, 1)
			})
		})

		Convey("When traversing two hops", func() {
			related, err := builder.GetRelated(ctx, owner, a, 2)

			Convey("Then each memory appears once at its shallowest depth", func() {
				So(err, ShouldBeNil)
				So(len(related), ShouldEqual, 3)

				found := map[uuid.UUID]int{}
				for _, rel := range related {
					found[rel.MemoryID] = rel.Depth
				}

				So(found[b], ShouldEqual, 1)
				So(found[d], ShouldEqual, 1)
				So(found[c], ShouldEqual, 2)
			})
		})

		Convey("When the requested depth exceeds the cap", func() {
			related, err := builder.GetRelated(ctx, owner, a, 50)

			Convey("Then traversal still terminates", func() {
				So(err, ShouldBeNil)
				So(len(related), ShouldEqual, 3)
			})
		})

		Convey("When a directed edge points at the start", func() {
			related, err := builder.GetRelated(ctx, owner, c, 1)

			Convey("Then it is not followed backwards", func() {
				So(err, ShouldBeNil)
				So(len(related), ShouldEqual, 0)
			})
		})
	})
}

func TestGetRelatedViaEntities(t *testing.T) {
	Convey("Given memories sharing entity hubs", t, func() {
		store := newFakeGraph()
		builder := NewBuilder(store)
		owner := uuid.New()
		ctx := context.Background()

		source, twoShared, oneStrong, oneWeak := uuid.New(), uuid.New(), uuid.New(), uuid.New()
		hubA, hubB := uuid.New(), uuid.New()

		link := func(memoryID, entityID uuid.UUID, strength float64) {
			store.links[memoryID] = append(store.links[memoryID], &entity.Link{
				ID:       uuid.New(),
				MemoryID: memoryID,
				EntityID: entityID,
				Owner:    owner,
				Strength: strength,
			})
		}

		link(source, hubA, 1.0)
		link(source, hubB, 1.0)
		link(twoShared, hubA, 0.5)
		link(twoShared, hubB, 0.5)
		link(oneStrong, hubA, 0.9)
		link(oneWeak, hubB, 0.2)

		Convey("When neighbors are ranked", func() {
			neighbors, err := builder.GetRelatedViaEntities(ctx, owner, source, 10)

			Convey("Then shared hub count wins, then link weight", func() {
				So(err, ShouldBeNil)
				So(len(neighbors), ShouldEqual, 3)
				So(neighbors[0].MemoryID, ShouldEqual, twoShared)
				So(neighbors[0].SharedHubs, ShouldEqual, 2)
				So(neighbors[1].MemoryID, ShouldEqual, oneStrong)
				So(neighbors[2].MemoryID, ShouldEqual, oneWeak)
			})
		})

		Convey("When a limit applies", func() {
			neighbors, err := builder.GetRelatedViaEntities(ctx, owner, source, 1)

			So(err, ShouldBeNil)
			So(len(neighbors), ShouldEqual, 1)
			So(neighbors[0].MemoryID, ShouldEqual, twoShared)
		})
	})
}
