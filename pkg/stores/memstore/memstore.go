/*
Package memstore is a map-backed implementation of the consolidation
store. It mirrors the SQLite store's semantics, including uniqueness
constraints and snapshot rollback, without touching disk, which keeps
engine and pipeline tests fast and hermetic.
*/
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/theapemachine/lucid/pkg/consolidation"
	"github.com/theapemachine/lucid/pkg/entity"
	"github.com/theapemachine/lucid/pkg/errors"
	"github.com/theapemachine/lucid/pkg/graph"
	"github.com/theapemachine/lucid/pkg/memory"
	"github.com/theapemachine/lucid/pkg/stores/sqlite"
)

/*
Store holds everything in maps guarded by one mutex. Values are cloned
on the way in and out so callers never alias stored state. WithTx
snapshots the maps and restores them if fn fails; it assumes no
concurrent writers during a transaction, which holds for the serial
merge loop it exists to serve.
*/
type Store struct {
	mu       sync.Mutex
	memories map[uuid.UUID]*memory.Memory
	hubs     map[uuid.UUID]*entity.Hub
	byName   map[string]uuid.UUID
	links    map[uuid.UUID]*entity.Link
	edges    map[uuid.UUID]*graph.Edge
	runs     map[string]*consolidation.Run
	runOrder []string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		memories: map[uuid.UUID]*memory.Memory{},
		hubs:     map[uuid.UUID]*entity.Hub{},
		byName:   map[string]uuid.UUID{},
		links:    map[uuid.UUID]*entity.Link{},
		edges:    map[uuid.UUID]*graph.Edge{},
		runs:     map[string]*consolidation.Run{},
	}
}

func (store *Store) WithTx(
	ctx context.Context, fn func(consolidation.Store) error,
) error {
	store.mu.Lock()
	snapshot := store.snapshotLocked()
	store.mu.Unlock()

	if err := fn(store); err != nil {
		store.mu.Lock()
		store.restoreLocked(snapshot)
		store.mu.Unlock()
		return err
	}

	return nil
}

type snapshot struct {
	memories map[uuid.UUID]*memory.Memory
	hubs     map[uuid.UUID]*entity.Hub
	byName   map[string]uuid.UUID
	links    map[uuid.UUID]*entity.Link
	edges    map[uuid.UUID]*graph.Edge
	runs     map[string]*consolidation.Run
	runOrder []string
}

func (store *Store) snapshotLocked() snapshot {
	snap := snapshot{
		memories: map[uuid.UUID]*memory.Memory{},
		hubs:     map[uuid.UUID]*entity.Hub{},
		byName:   map[string]uuid.UUID{},
		links:    map[uuid.UUID]*entity.Link{},
		edges:    map[uuid.UUID]*graph.Edge{},
		runs:     map[string]*consolidation.Run{},
		runOrder: append([]string{}, store.runOrder...),
	}

	for k, v := range store.memories {
		snap.memories[k] = cloneMemory(v)
	}

	for k, v := range store.hubs {
		snap.hubs[k] = cloneHub(v)
	}

	for k, v := range store.byName {
		snap.byName[k] = v
	}

	for k, v := range store.links {
		snap.links[k] = cloneLink(v)
	}

	for k, v := range store.edges {
		snap.edges[k] = cloneEdge(v)
	}

	for k, v := range store.runs {
		run := *v
		snap.runs[k] = &run
	}

	return snap
}

func (store *Store) restoreLocked(snap snapshot) {
	store.memories = snap.memories
	store.hubs = snap.hubs
	store.byName = snap.byName
	store.links = snap.links
	store.edges = snap.edges
	store.runs = snap.runs
	store.runOrder = snap.runOrder
}

// --- memories ---

func (store *Store) InsertMemory(ctx context.Context, mem *memory.Memory) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if _, exists := store.memories[mem.ID]; exists {
		return errors.NewConstraint("memories", mem.ID.String(), nil)
	}

	store.memories[mem.ID] = cloneMemory(mem)
	return nil
}

func (store *Store) GetMemory(
	ctx context.Context, owner, id uuid.UUID,
) (*memory.Memory, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	mem, ok := store.memories[id]

	if !ok || mem.Owner != owner {
		return nil, errors.ErrNotFound
	}

	return cloneMemory(mem), nil
}

func (store *Store) UpdateMemory(ctx context.Context, mem *memory.Memory) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	existing, ok := store.memories[mem.ID]

	if !ok || existing.Owner != mem.Owner {
		return errors.ErrNotFound
	}

	mem.UpdatedAt = time.Now().UTC()
	store.memories[mem.ID] = cloneMemory(mem)
	return nil
}

func (store *Store) SetMemoryStatus(
	ctx context.Context,
	owner, id uuid.UUID,
	status memory.Status,
	supersededBy *uuid.UUID,
) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	mem, ok := store.memories[id]

	if !ok || mem.Owner != owner {
		return errors.ErrNotFound
	}

	if supersededBy != nil {
		arena := memory.Arena{
			id: {ID: id, SupersededBy: supersededBy},
		}

		current := *supersededBy

		for {
			if _, ok := arena[current]; ok {
				break
			}

			record, ok := store.memories[current]

			if !ok || record.Owner != owner {
				break
			}

			arena[current] = record

			if record.SupersededBy == nil {
				break
			}

			current = *record.SupersededBy
		}

		if err := arena.ValidateChain(id); err != nil {
			return err
		}
	}

	mem.Status = status
	mem.SupersededBy = supersededBy
	mem.UpdatedAt = time.Now().UTC()
	return nil
}

func (store *Store) ListMemories(
	ctx context.Context, owner uuid.UUID, query memory.ListQuery,
) ([]*memory.Memory, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	out := []*memory.Memory{}

	for _, mem := range store.memories {
		if mem.Owner != owner {
			continue
		}

		if len(query.Statuses) > 0 && !statusIn(mem.Status, query.Statuses) {
			continue
		}

		if query.Type != "" && mem.Type != query.Type {
			continue
		}

		if !query.Since.IsZero() && mem.CreatedAt.Before(query.Since) {
			continue
		}

		out = append(out, cloneMemory(mem))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}

	return out, nil
}

func (store *Store) TouchMemories(
	ctx context.Context, owner uuid.UUID, ids []uuid.UUID,
) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	now := time.Now().UTC()

	for _, id := range ids {
		if mem, ok := store.memories[id]; ok && mem.Owner == owner {
			mem.AccessCount++
			mem.LastAccessed = &now
		}
	}

	return nil
}

func (store *Store) QuerySimilar(
	ctx context.Context,
	owner uuid.UUID,
	vec []float32,
	query memory.SimilarQuery,
) ([]memory.Scored, error) {
	statuses := query.Statuses

	if len(statuses) == 0 {
		statuses = []memory.Status{memory.StatusActive}
	}

	candidates, err := store.ListMemories(ctx, owner, memory.ListQuery{
		Statuses: statuses,
		Type:     query.Type,
	})

	if err != nil {
		return nil, err
	}

	scored := make([]memory.Scored, 0, len(candidates))

	for _, candidate := range candidates {
		scored = append(scored, memory.Scored{
			Memory:     candidate,
			Similarity: sqlite.Cosine(vec, candidate.Embedding),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}

		if scored[i].Memory.Importance != scored[j].Memory.Importance {
			return scored[i].Memory.Importance > scored[j].Memory.Importance
		}

		return scored[i].Memory.CreatedAt.After(scored[j].Memory.CreatedAt)
	})

	k := query.K

	if k <= 0 {
		k = 10
	}

	if len(scored) > k {
		scored = scored[:k]
	}

	return scored, nil
}

func (store *Store) CountMemories(
	ctx context.Context, owner uuid.UUID, status memory.Status,
) (int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	count := 0

	for _, mem := range store.memories {
		if mem.Owner == owner && mem.Status == status {
			count++
		}
	}

	return count, nil
}

// --- entity hubs ---

func hubKey(owner uuid.UUID, name string) string {
	return owner.String() + "|" + name
}

func (store *Store) GetHub(
	ctx context.Context, owner, id uuid.UUID,
) (*entity.Hub, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	hub, ok := store.hubs[id]

	if !ok || hub.Owner != owner {
		return nil, errors.ErrNotFound
	}

	return cloneHub(hub), nil
}

func (store *Store) GetHubByName(
	ctx context.Context, owner uuid.UUID, name string,
) (*entity.Hub, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	id, ok := store.byName[hubKey(owner, name)]

	if !ok {
		return nil, errors.ErrNotFound
	}

	return cloneHub(store.hubs[id]), nil
}

func (store *Store) ListHubs(
	ctx context.Context, owner uuid.UUID, limit int,
) ([]*entity.Hub, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	out := []*entity.Hub{}

	for _, hub := range store.hubs {
		if hub.Owner == owner {
			out = append(out, cloneHub(hub))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UsageCount > out[j].UsageCount
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (store *Store) TopHubs(
	ctx context.Context, owner uuid.UUID, hubType entity.HubType, limit int,
) ([]*entity.Hub, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	out := []*entity.Hub{}

	for _, hub := range store.hubs {
		if hub.Owner != owner {
			continue
		}

		if hubType != "" && hub.Type != hubType {
			continue
		}

		out = append(out, cloneHub(hub))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].MemoryCount != out[j].MemoryCount {
			return out[i].MemoryCount > out[j].MemoryCount
		}

		return out[i].UsageCount > out[j].UsageCount
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (store *Store) InsertHub(ctx context.Context, hub *entity.Hub) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	key := hubKey(hub.Owner, hub.Name)

	if _, exists := store.byName[key]; exists {
		return errors.NewConstraint("entity_hubs", hub.Name, nil)
	}

	store.hubs[hub.ID] = cloneHub(hub)
	store.byName[key] = hub.ID
	return nil
}

func (store *Store) TouchHub(ctx context.Context, owner, id uuid.UUID) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	hub, ok := store.hubs[id]

	if !ok || hub.Owner != owner {
		return errors.ErrNotFound
	}

	hub.UsageCount++
	hub.LastUsed = time.Now().UTC()
	return nil
}

func (store *Store) LinkMemory(
	ctx context.Context, owner, memoryID uuid.UUID, links []*entity.Link,
) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, link := range links {
		if existing := store.findLinkLocked(owner, memoryID, link.EntityID); existing != nil {
			if link.Strength > existing.Strength {
				existing.Strength = link.Strength
			}

			existing.MentionCount++
			continue
		}

		stored := cloneLink(link)
		stored.MemoryID = memoryID
		stored.Owner = owner

		if stored.ID == uuid.Nil {
			stored.ID = uuid.New()
		}

		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now().UTC()
		}

		store.links[stored.ID] = stored

		if hub, ok := store.hubs[link.EntityID]; ok {
			hub.MemoryCount++
		}
	}

	return nil
}

func (store *Store) findLinkLocked(
	owner, memoryID, entityID uuid.UUID,
) *entity.Link {
	for _, link := range store.links {
		if link.Owner == owner && link.MemoryID == memoryID && link.EntityID == entityID {
			return link
		}
	}

	return nil
}

func (store *Store) LinksForMemory(
	ctx context.Context, owner, memoryID uuid.UUID,
) ([]*entity.Link, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	out := []*entity.Link{}

	for _, link := range store.links {
		if link.Owner == owner && link.MemoryID == memoryID {
			out = append(out, cloneLink(link))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPrimary != out[j].IsPrimary {
			return out[i].IsPrimary
		}

		return out[i].Strength > out[j].Strength
	})

	return out, nil
}

func (store *Store) LinksForEntity(
	ctx context.Context, owner, hubID uuid.UUID,
) ([]*entity.Link, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	out := []*entity.Link{}

	for _, link := range store.links {
		if link.Owner == owner && link.EntityID == hubID {
			out = append(out, cloneLink(link))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Strength > out[j].Strength
	})

	return out, nil
}

// --- edges ---

func (store *Store) GetEdge(
	ctx context.Context, owner, from, to uuid.UUID, edgeType graph.EdgeType,
) (*graph.Edge, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, edge := range store.edges {
		if edge.Owner == owner && edge.From == from && edge.To == to && edge.Type == edgeType {
			return cloneEdge(edge), nil
		}
	}

	return nil, errors.ErrNotFound
}

func (store *Store) InsertEdge(ctx context.Context, edge *graph.Edge) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, existing := range store.edges {
		if existing.Owner == edge.Owner && existing.From == edge.From &&
			existing.To == edge.To && existing.Type == edge.Type {
			return errors.NewConstraint("knowledge_edges", string(edge.Type), nil)
		}
	}

	stored := cloneEdge(edge)

	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
		edge.ID = stored.ID
	}

	now := time.Now().UTC()

	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}

	stored.UpdatedAt = now
	store.edges[stored.ID] = stored
	return nil
}

func (store *Store) UpdateEdge(ctx context.Context, edge *graph.Edge) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if _, ok := store.edges[edge.ID]; !ok {
		return errors.ErrNotFound
	}

	stored := cloneEdge(edge)
	stored.UpdatedAt = time.Now().UTC()
	store.edges[edge.ID] = stored
	return nil
}

func (store *Store) EdgesTouching(
	ctx context.Context, owner, memoryID uuid.UUID,
) ([]*graph.Edge, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	out := []*graph.Edge{}

	for _, edge := range store.edges {
		if edge.Owner == owner && (edge.From == memoryID || edge.To == memoryID) {
			out = append(out, cloneEdge(edge))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Strength > out[j].Strength
	})

	return out, nil
}

func (store *Store) EdgesAmong(
	ctx context.Context,
	owner uuid.UUID,
	ids []uuid.UUID,
	types []graph.EdgeType,
) ([]*graph.Edge, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	idSet := map[uuid.UUID]bool{}

	for _, id := range ids {
		idSet[id] = true
	}

	out := []*graph.Edge{}

	for _, edge := range store.edges {
		if edge.Owner != owner || !idSet[edge.From] || !idSet[edge.To] {
			continue
		}

		if len(types) > 0 && !typeIn(edge.Type, types) {
			continue
		}

		out = append(out, cloneEdge(edge))
	}

	return out, nil
}

// --- runs ---

func (store *Store) AppendRun(ctx context.Context, run *consolidation.Run) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if _, exists := store.runs[run.ID]; !exists {
		store.runOrder = append(store.runOrder, run.ID)
	}

	stored := *run
	store.runs[run.ID] = &stored
	return nil
}

func (store *Store) ListRuns(
	ctx context.Context, owner uuid.UUID, limit int,
) ([]*consolidation.Run, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	out := []*consolidation.Run{}

	for i := len(store.runOrder) - 1; i >= 0; i-- {
		run := store.runs[store.runOrder[i]]

		if run.Owner != owner {
			continue
		}

		stored := *run
		out = append(out, &stored)

		if limit > 0 && len(out) == limit {
			break
		}
	}

	return out, nil
}

// --- helpers ---

func statusIn(status memory.Status, statuses []memory.Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}

	return false
}

func typeIn(edgeType graph.EdgeType, types []graph.EdgeType) bool {
	for _, t := range types {
		if t == edgeType {
			return true
		}
	}

	return false
}

func cloneMemory(mem *memory.Memory) *memory.Memory {
	out := *mem
	out.Embedding = append([]float32{}, mem.Embedding...)
	out.Tags = append([]string{}, mem.Tags...)

	if mem.SupersededBy != nil {
		id := *mem.SupersededBy
		out.SupersededBy = &id
	}

	if mem.LastAccessed != nil {
		t := *mem.LastAccessed
		out.LastAccessed = &t
	}

	return &out
}

func cloneHub(hub *entity.Hub) *entity.Hub {
	out := *hub
	out.Aliases = append([]string{}, hub.Aliases...)
	out.Embedding = append([]float32{}, hub.Embedding...)
	return &out
}

func cloneLink(link *entity.Link) *entity.Link {
	out := *link
	return &out
}

func cloneEdge(edge *graph.Edge) *graph.Edge {
	out := *edge
	return &out
}
