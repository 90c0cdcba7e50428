package consolidation

import (
	"context"

	"github.com/google/uuid"

	"github.com/theapemachine/lucid/pkg/entity"
	"github.com/theapemachine/lucid/pkg/graph"
	"github.com/theapemachine/lucid/pkg/memory"
)

// MemoryStore is the memory persistence surface the engine needs.
type MemoryStore interface {
	InsertMemory(ctx context.Context, mem *memory.Memory) error
	GetMemory(ctx context.Context, owner, id uuid.UUID) (*memory.Memory, error)
	UpdateMemory(ctx context.Context, mem *memory.Memory) error
	SetMemoryStatus(
		ctx context.Context,
		owner, id uuid.UUID,
		status memory.Status,
		supersededBy *uuid.UUID,
	) error
	ListMemories(
		ctx context.Context, owner uuid.UUID, query memory.ListQuery,
	) ([]*memory.Memory, error)
	TouchMemories(ctx context.Context, owner uuid.UUID, ids []uuid.UUID) error
	QuerySimilar(
		ctx context.Context,
		owner uuid.UUID,
		vec []float32,
		query memory.SimilarQuery,
	) ([]memory.Scored, error)
	CountMemories(
		ctx context.Context, owner uuid.UUID, status memory.Status,
	) (int, error)
}

/*
Store is the full persistence surface of the consolidation pipeline:
memories, entity hubs, knowledge edges, and run history, plus a
transactional scope so one claim's writes land or roll back together.
*/
type Store interface {
	MemoryStore
	entity.Store
	graph.Store

	AppendRun(ctx context.Context, run *Run) error
	ListRuns(ctx context.Context, owner uuid.UUID, limit int) ([]*Run, error)

	// WithTx runs fn against a transaction-bound store. fn returning an
	// error rolls everything back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
