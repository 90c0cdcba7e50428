/*
Package recall retrieves memories for a natural-language query. The
primary signal is vector similarity; the knowledge graph then filters
out memories that evolved into newer versions, pulls in memories that
share entity hubs with the top hits, and usage patterns nudge the final
ranking toward what the owner actually comes back to.
*/
package recall

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
	"github.com/theapemachine/lucid/pkg/provider"
)

// expandedSimilarity is the score assigned to memories found through
// entity expansion rather than the vector search itself.
const expandedSimilarity = 0.5

// Filters narrows a recall query.
type Filters struct {
	Type          memory.Type
	MinImportance int
	Entity        string
	Since         time.Time
}

// Result is a ranked recall response with retrieval metadata.
type Result struct {
	Memories          []memory.Scored `json:"memories"`
	Query             string          `json:"query"`
	TotalAvailable    int             `json:"total_available"`
	SearchTimeMS      int64           `json:"search_time_ms"`
	EvolutionFiltered int             `json:"evolution_filtered"`
	EntityExpanded    int             `json:"entity_expanded"`
}

// Store is the read surface recall needs.
type Store interface {
	QuerySimilar(
		ctx context.Context,
		owner uuid.UUID,
		vec []float32,
		query memory.SimilarQuery,
	) ([]memory.Scored, error)
	GetMemory(ctx context.Context, owner, id uuid.UUID) (*memory.Memory, error)
	TouchMemories(ctx context.Context, owner uuid.UUID, ids []uuid.UUID) error
	CountMemories(
		ctx context.Context, owner uuid.UUID, status memory.Status,
	) (int, error)
	EdgesTouching(
		ctx context.Context, owner, memoryID uuid.UUID,
	) ([]*graph.Edge, error)
	GetHubByName(
		ctx context.Context, owner uuid.UUID, name string,
	) (*entity.Hub, error)
	LinksForMemory(
		ctx context.Context, owner, memoryID uuid.UUID,
	) ([]*entity.Link, error)
	LinksForEntity(
		ctx context.Context, owner, hubID uuid.UUID,
	) ([]*entity.Link, error)
}

// Config tunes the recall engine.
type Config struct {
	// Limit is the default result count when the caller passes none.
	Limit int
	// MinSimilarity drops vector hits below this score before any
	// expansion happens.
	MinSimilarity float64
}

// DefaultConfig returns the recall defaults.
func DefaultConfig() Config {
	return Config{Limit: 10, MinSimilarity: 0.3}
}

// Engine answers recall queries.
type Engine struct {
	store    Store
	embedder provider.Embedder
	config   Config
}

// NewEngine returns an Engine over store and embedder.
func NewEngine(store Store, embedder provider.Embedder, config Config) *Engine {
	if config.Limit <= 0 {
		config.Limit = 10
	}

	return &Engine{store: store, embedder: embedder, config: config}
}

/*
Recall runs the full retrieval pipeline and bumps the access counters
of everything it returns, so the ranking learns from its own output.
*/
func (engine *Engine) Recall(
	ctx context.Context, owner uuid.UUID, query string, filters Filters, limit int,
) (*Result, error) {
	start := time.Now()

	if limit <= 0 {
		limit = engine.config.Limit
	}

	vec, err := engine.embedder.Embed(ctx, query)

	if err != nil {
		return nil, err
	}

	// Overfetch so evolution filtering cannot leave the page short.
	scored, err := engine.store.QuerySimilar(ctx, owner, vec, memory.SimilarQuery{
		K:        limit * 2,
		Type:     filters.Type,
		Statuses: []memory.Status{memory.StatusActive},
	})

	if err != nil {
		return nil, err
	}

	scored = engine.applyFilters(ctx, owner, scored, filters)

	result := &Result{Query: query}

	scored, result.EvolutionFiltered = engine.filterEvolved(ctx, owner, scored)

	if len(scored) < limit {
		var expanded []memory.Scored
		expanded, result.EntityExpanded = engine.expandViaEntities(
			ctx, owner, scored, limit-len(scored),
		)
		scored = append(scored, expanded...)
	}

	scored = boostAndRank(scored)

	if len(scored) > limit {
		scored = scored[:limit]
	}

	ids := make([]uuid.UUID, len(scored))

	for i, hit := range scored {
		ids[i] = hit.Memory.ID
	}

	if err := engine.store.TouchMemories(ctx, owner, ids); err != nil {
		log.Warn("failed to update access counters", "owner", owner, "error", err)
	}

	total, err := engine.store.CountMemories(ctx, owner, memory.StatusActive)

	if err != nil {
		log.Warn("failed to count memories", "owner", owner, "error", err)
	}

	result.Memories = scored
	result.TotalAvailable = total
	result.SearchTimeMS = time.Since(start).Milliseconds()

	return result, nil
}

func (engine *Engine) applyFilters(
	ctx context.Context, owner uuid.UUID, scored []memory.Scored, filters Filters,
) []memory.Scored {
	var entityScope map[uuid.UUID]bool

	if filters.Entity != "" {
		entityScope = engine.entityScope(ctx, owner, filters.Entity)
	}

	out := scored[:0]

	for _, hit := range scored {
		if hit.Similarity < engine.config.MinSimilarity {
			continue
		}

		if filters.MinImportance > 0 && hit.Memory.Importance < filters.MinImportance {
			continue
		}

		if !filters.Since.IsZero() && hit.Memory.CreatedAt.Before(filters.Since) {
			continue
		}

		if entityScope != nil && !entityScope[hit.Memory.ID] {
			continue
		}

		out = append(out, hit)
	}

	return out
}

// entityScope returns the ids of memories linked to the named entity,
// or an empty set when the entity is unknown.
func (engine *Engine) entityScope(
	ctx context.Context, owner uuid.UUID, name string,
) map[uuid.UUID]bool {
	scope := map[uuid.UUID]bool{}

	hub, err := engine.store.GetHubByName(ctx, owner, entity.Normalize(name))

	if err != nil {
		if err != errors.ErrNotFound {
			log.Warn("entity filter lookup failed", "entity", name, "error", err)
		}

		return scope
	}

	links, err := engine.store.LinksForEntity(ctx, owner, hub.ID)

	if err != nil {
		log.Warn("entity filter links failed", "entity", name, "error", err)
		return scope
	}

	for _, link := range links {
		scope[link.MemoryID] = true
	}

	return scope
}

/*
filterEvolved drops memories that have an outgoing evolves_into edge:
their newer version is the one worth returning.
*/
func (engine *Engine) filterEvolved(
	ctx context.Context, owner uuid.UUID, scored []memory.Scored,
) ([]memory.Scored, int) {
	out := scored[:0]
	filtered := 0

	for _, hit := range scored {
		edges, err := engine.store.EdgesTouching(ctx, owner, hit.Memory.ID)

		if err != nil {
			log.Warn(
				"evolution check failed",
				"memory", hit.Memory.ID, "error", err,
			)

			out = append(out, hit)
			continue
		}

		obsolete := false

		for _, edge := range edges {
			if edge.Type == graph.EdgeEvolvesInto && edge.From == hit.Memory.ID {
				obsolete = true
				break
			}
		}

		if obsolete {
			filtered++
			continue
		}

		out = append(out, hit)
	}

	return out, filtered
}

/*
expandViaEntities pulls in active memories that share entity hubs with
the current hits. Expanded results carry a flat similarity below any
direct vector hit so they rank after them.
*/
func (engine *Engine) expandViaEntities(
	ctx context.Context, owner uuid.UUID, seeds []memory.Scored, max int,
) ([]memory.Scored, int) {
	if len(seeds) == 0 || max <= 0 {
		return nil, 0
	}

	seen := map[uuid.UUID]bool{}

	for _, seed := range seeds {
		seen[seed.Memory.ID] = true
	}

	expanded := []memory.Scored{}

	for _, seed := range seeds {
		links, err := engine.store.LinksForMemory(ctx, owner, seed.Memory.ID)

		if err != nil {
			continue
		}

		for _, link := range links {
			peers, err := engine.store.LinksForEntity(ctx, owner, link.EntityID)

			if err != nil {
				continue
			}

			for _, peer := range peers {
				if seen[peer.MemoryID] {
					continue
				}

				seen[peer.MemoryID] = true

				mem, err := engine.store.GetMemory(ctx, owner, peer.MemoryID)

				if err != nil || !mem.IsActive() {
					continue
				}

				expanded = append(expanded, memory.Scored{
					Memory:     mem,
					Similarity: expandedSimilarity,
				})

				if len(expanded) >= max {
					return expanded, len(expanded)
				}
			}
		}
	}

	return expanded, len(expanded)
}

/*
boostAndRank nudges similarity by access patterns and sorts by the
combined relevance score. Memories touched in the last day get the
biggest boost, the last week a smaller one, and anything the owner has
come back to more than ten times a little more still.
*/
func boostAndRank(scored []memory.Scored) []memory.Scored {
	now := time.Now().UTC()

	for i := range scored {
		boost := 0.0
		mem := scored[i].Memory

		if mem.LastAccessed != nil {
			age := now.Sub(*mem.LastAccessed)

			switch {
			case age < 24*time.Hour:
				boost += 0.10
			case age < 7*24*time.Hour:
				boost += 0.05
			}
		}

		if mem.AccessCount > 10 {
			boost += 0.05
		}

		scored[i].Similarity = min(scored[i].Similarity+boost, 1.0)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Relevance() > scored[j].Relevance()
	})

	return scored
}
