/*
Package evolution reconstructs how knowledge about one entity changed
over time by walking the memories linked to its hub, including the
superseded ones.
*/
package evolution

import (
	"context"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/theapemachine/lucid/pkg/entity"
	"github.com/theapemachine/lucid/pkg/errors"
	"github.com/theapemachine/lucid/pkg/graph"
	"github.com/theapemachine/lucid/pkg/memory"
)

// ChangeType labels one step in an entity's timeline.
type ChangeType string

const (
	// ChangeIntroduced is the first memory mentioning the entity.
	ChangeIntroduced ChangeType = "introduced"
	// ChangeEvolved is a memory that superseded an earlier one.
	ChangeEvolved ChangeType = "evolved"
	// ChangeStrengthened is a mention with clearly higher confidence
	// than the one before it.
	ChangeStrengthened ChangeType = "strengthened"
	// ChangeWeakened is a mention with clearly lower confidence.
	ChangeWeakened ChangeType = "weakened"
	// ChangeMentioned is any other recurrence.
	ChangeMentioned ChangeType = "mentioned"
)

// confidenceDelta is the confidence swing below which a recurrence is
// just a mention.
const confidenceDelta = 0.05

/*
Event is one memory's appearance in the timeline. When a transition
edge points at the memory, the edge's type and reason ride along, so a
supersession surfaces with the verdict that caused it.
*/
type Event struct {
	MemoryID   uuid.UUID      `json:"memory_id"`
	Content    string         `json:"content"`
	Change     ChangeType     `json:"change"`
	Status     memory.Status  `json:"status"`
	Confidence float64        `json:"confidence"`
	Importance int            `json:"importance"`
	EdgeType   graph.EdgeType `json:"edge_type,omitempty"`
	EdgeReason string         `json:"edge_reason,omitempty"`
	Causal     bool           `json:"causal,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Timeline is the ordered history of one entity.
type Timeline struct {
	Entity string  `json:"entity"`
	Events []Event `json:"events"`
}

// Store is the lookup surface the tracker needs.
type Store interface {
	GetHubByName(
		ctx context.Context, owner uuid.UUID, name string,
	) (*entity.Hub, error)
	LinksForEntity(
		ctx context.Context, owner, hubID uuid.UUID,
	) ([]*entity.Link, error)
	GetMemory(ctx context.Context, owner, id uuid.UUID) (*memory.Memory, error)
	EdgesAmong(
		ctx context.Context, owner uuid.UUID, ids []uuid.UUID, types []graph.EdgeType,
	) ([]*graph.Edge, error)
}

// Tracker builds entity timelines.
type Tracker struct {
	store Store
}

// NewTracker returns a Tracker over store.
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

/*
Analyze returns the entity's timeline inside the window, oldest first.
A window of zero means all time. An entity the owner has never
mentioned yields an empty timeline, not an error. Superseded memories
are part of the history; their successors show up as evolved.
*/
func (tracker *Tracker) Analyze(
	ctx context.Context, owner uuid.UUID, entityName string, window time.Duration,
) (*Timeline, error) {
	name := entity.Normalize(entityName)
	timeline := &Timeline{Entity: name, Events: []Event{}}

	hub, err := tracker.store.GetHubByName(ctx, owner, name)

	if err == errors.ErrNotFound {
		return timeline, nil
	}

	if err != nil {
		return nil, err
	}

	timeline.Entity = hub.Name

	links, err := tracker.store.LinksForEntity(ctx, owner, hub.ID)

	if err != nil {
		return nil, err
	}

	var cutoff time.Time

	if window > 0 {
		cutoff = time.Now().UTC().Add(-window)
	}

	memories := make([]*memory.Memory, 0, len(links))

	for _, link := range links {
		mem, err := tracker.store.GetMemory(ctx, owner, link.MemoryID)

		if err != nil {
			log.Warn(
				"linked memory missing",
				"memory", link.MemoryID, "entity", hub.Name, "error", err,
			)
			continue
		}

		if !cutoff.IsZero() && mem.CreatedAt.Before(cutoff) {
			continue
		}

		memories = append(memories, mem)
	}

	sort.Slice(memories, func(i, j int) bool {
		return memories[i].CreatedAt.Before(memories[j].CreatedAt)
	})

	superseders := map[uuid.UUID]bool{}
	ids := make([]uuid.UUID, 0, len(memories))

	for _, mem := range memories {
		ids = append(ids, mem.ID)

		if mem.SupersededBy != nil {
			superseders[*mem.SupersededBy] = true
		}
	}

	incoming, err := tracker.transitions(ctx, owner, ids)

	if err != nil {
		return nil, err
	}

	for i, mem := range memories {
		event := Event{
			MemoryID:   mem.ID,
			Content:    mem.Content,
			Change:     classify(i, mem, memories, superseders, incoming[mem.ID]),
			Status:     mem.Status,
			Confidence: mem.Confidence,
			Importance: mem.Importance,
			OccurredAt: mem.CreatedAt,
		}

		if edge := incoming[mem.ID]; edge != nil {
			event.EdgeType = edge.Type
			event.EdgeReason = edge.Reason
			event.Causal = edge.IsCausal()
		}

		timeline.Events = append(timeline.Events, event)
	}

	return timeline, nil
}

// transitionPriority orders competing incoming edges: a supersession
// outranks a contradiction, which outranks support.
var transitionPriority = map[graph.EdgeType]int{
	graph.EdgeEvolvesInto: 3,
	graph.EdgeContradicts: 2,
	graph.EdgeSupports:    1,
}

/*
transitions fetches the evolves_into, supports and contradicts edges
among the windowed memories and indexes the strongest one pointing at
each memory.
*/
func (tracker *Tracker) transitions(
	ctx context.Context, owner uuid.UUID, ids []uuid.UUID,
) (map[uuid.UUID]*graph.Edge, error) {
	edges, err := tracker.store.EdgesAmong(ctx, owner, ids, []graph.EdgeType{
		graph.EdgeEvolvesInto, graph.EdgeSupports, graph.EdgeContradicts,
	})

	if err != nil {
		return nil, err
	}

	incoming := map[uuid.UUID]*graph.Edge{}

	for _, edge := range edges {
		current := incoming[edge.To]

		if current == nil ||
			transitionPriority[edge.Type] > transitionPriority[current.Type] {
			incoming[edge.To] = edge
		}
	}

	return incoming, nil
}

func classify(
	index int,
	mem *memory.Memory,
	memories []*memory.Memory,
	superseders map[uuid.UUID]bool,
	edge *graph.Edge,
) ChangeType {
	if index == 0 {
		return ChangeIntroduced
	}

	if superseders[mem.ID] {
		return ChangeEvolved
	}

	if edge != nil {
		switch edge.Type {
		case graph.EdgeEvolvesInto:
			return ChangeEvolved
		case graph.EdgeSupports:
			return ChangeStrengthened
		case graph.EdgeContradicts:
			return ChangeWeakened
		}
	}

	previous := memories[index-1]

	switch {
	case mem.Confidence > previous.Confidence+confidenceDelta:
		return ChangeStrengthened
	case mem.Confidence < previous.Confidence-confidenceDelta:
		return ChangeWeakened
	default:
		return ChangeMentioned
	}
}
