package graph

import (
	"context"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/theapemachine/lucid/pkg/entity"
	"github.com/theapemachine/lucid/pkg/errors"
)

// Store is the persistence surface the builder needs. The entity link
// lookups back the via-entity traversal.
type Store interface {
	GetEdge(
		ctx context.Context, owner, from, to uuid.UUID, edgeType EdgeType,
	) (*Edge, error)
	InsertEdge(ctx context.Context, edge *Edge) error
	UpdateEdge(ctx context.Context, edge *Edge) error
	EdgesTouching(ctx context.Context, owner, memoryID uuid.UUID) ([]*Edge, error)
	EdgesAmong(
		ctx context.Context, owner uuid.UUID, ids []uuid.UUID, types []EdgeType,
	) ([]*Edge, error)
	LinksForMemory(
		ctx context.Context, owner, memoryID uuid.UUID,
	) ([]*entity.Link, error)
	LinksForEntity(
		ctx context.Context, owner, entityID uuid.UUID,
	) ([]*entity.Link, error)
}

const maxTraversalDepth = 5

/*
Builder upserts edges and walks the resulting graph. Adding an edge that
already exists strengthens it rather than creating a duplicate, so the
same relationship observed across many consolidation runs converges to a
single row with a rising strength.
*/
type Builder struct {
	store Store
}

// NewBuilder returns a Builder backed by store.
func NewBuilder(store Store) *Builder {
	return &Builder{store: store}
}

/*
AddEdge records a relationship between two memories. If an edge with the
same owner, endpoints, and type already exists, its strength is blended
toward the incoming value and its confidence raised to the max of the
two. The returned edge reflects the stored state.
*/
func (builder *Builder) AddEdge(ctx context.Context, edge *Edge) (*Edge, error) {
	if err := edge.Validate(); err != nil {
		return nil, err
	}

	existing, err := builder.store.GetEdge(
		ctx, edge.Owner, edge.From, edge.To, edge.Type,
	)

	if err != nil && err != errors.ErrNotFound {
		return nil, err
	}

	if existing != nil {
		return builder.strengthen(ctx, existing, edge)
	}

	if edge.ID == uuid.Nil {
		edge.ID = uuid.New()
	}

	if err := builder.store.InsertEdge(ctx, edge); err != nil {
		// Lost a race against a concurrent insert of the same edge.
		if errors.IsConstraint(err) {
			existing, getErr := builder.store.GetEdge(
				ctx, edge.Owner, edge.From, edge.To, edge.Type,
			)

			if getErr != nil {
				return nil, errors.New(err, getErr)
			}

			return builder.strengthen(ctx, existing, edge)
		}

		return nil, err
	}

	return edge, nil
}

func (builder *Builder) strengthen(
	ctx context.Context, existing, incoming *Edge,
) (*Edge, error) {
	existing.Strength = existing.Strength*0.7 + incoming.Strength*0.3

	if incoming.Confidence > existing.Confidence {
		existing.Confidence = incoming.Confidence
	}

	if incoming.Reason != "" {
		existing.Reason = incoming.Reason
	}

	if err := builder.store.UpdateEdge(ctx, existing); err != nil {
		return nil, err
	}

	return existing, nil
}

// Related pairs a memory ID with the depth at which traversal found it
// and the edge that led there.
type Related struct {
	MemoryID uuid.UUID `json:"memory_id"`
	Depth    int       `json:"depth"`
	Via      *Edge     `json:"via"`
}

/*
GetRelated walks outward from a memory following directed edges (and
bidirectional edges from either end) up to depth hops. A memory is
reported once, at the shallowest depth it was reached. depth values
below 1 default to 1 and are capped at 5.
*/
func (builder *Builder) GetRelated(
	ctx context.Context, owner, start uuid.UUID, depth int,
) ([]Related, error) {
	if depth < 1 {
		depth = 1
	}

	if depth > maxTraversalDepth {
		depth = maxTraversalDepth
	}

	seen := map[uuid.UUID]bool{start: true}
	frontier := []uuid.UUID{start}
	out := []Related{}

	for level := 1; level <= depth && len(frontier) > 0; level++ {
		next := []uuid.UUID{}

		for _, id := range frontier {
			edges, err := builder.store.EdgesTouching(ctx, owner, id)

			if err != nil {
				return nil, err
			}

			for _, edge := range edges {
				target, ok := builder.follow(edge, id)

				if !ok || seen[target] {
					continue
				}

				seen[target] = true
				next = append(next, target)
				out = append(out, Related{
					MemoryID: target,
					Depth:    level,
					Via:      edge,
				})
			}
		}

		frontier = next
	}

	return out, nil
}

// follow resolves the far end of an edge from the given node, honoring
// direction unless the edge is bidirectional.
func (builder *Builder) follow(edge *Edge, from uuid.UUID) (uuid.UUID, bool) {
	if edge.From == from {
		return edge.To, true
	}

	if edge.Bidirectional && edge.To == from {
		return edge.From, true
	}

	return uuid.Nil, false
}

// EntityNeighbor is a memory that shares entity hubs with the source,
// ranked by how many hubs it shares and how strongly it is linked.
type EntityNeighbor struct {
	MemoryID    uuid.UUID `json:"memory_id"`
	SharedHubs  int       `json:"shared_hubs"`
	LinkWeight  float64   `json:"link_weight"`
	EntityNames []string  `json:"-"`
}

/*
GetRelatedViaEntities finds memories connected to the source through
shared entity hubs rather than explicit edges. Results are ordered by
shared hub count, then by summed link strength, source excluded.
*/
func (builder *Builder) GetRelatedViaEntities(
	ctx context.Context, owner, memoryID uuid.UUID, limit int,
) ([]EntityNeighbor, error) {
	links, err := builder.store.LinksForMemory(ctx, owner, memoryID)

	if err != nil {
		return nil, err
	}

	neighbors := map[uuid.UUID]*EntityNeighbor{}

	for _, link := range links {
		peers, err := builder.store.LinksForEntity(ctx, owner, link.EntityID)

		if err != nil {
			log.Warn(
				"failed to load entity links",
				"entity", link.EntityID, "error", err,
			)
			continue
		}

		for _, peer := range peers {
			if peer.MemoryID == memoryID {
				continue
			}

			neighbor, ok := neighbors[peer.MemoryID]

			if !ok {
				neighbor = &EntityNeighbor{MemoryID: peer.MemoryID}
				neighbors[peer.MemoryID] = neighbor
			}

			neighbor.SharedHubs++
			neighbor.LinkWeight += peer.Strength
		}
	}

	out := make([]EntityNeighbor, 0, len(neighbors))

	for _, neighbor := range neighbors {
		out = append(out, *neighbor)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SharedHubs != out[j].SharedHubs {
			return out[i].SharedHubs > out[j].SharedHubs
		}

		return out[i].LinkWeight > out[j].LinkWeight
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}
