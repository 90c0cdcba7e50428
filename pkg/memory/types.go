/*
Package memory defines the core memory record and its lifecycle. A memory
is a single unit of knowledge owned by one user, carrying an embedding for
similarity search and a status that moves through draft, active and the
various retirement states without physical deletion.
*/
package memory

import (
	"time"

	"github.com/google/uuid"
)

/*
Type classifies memories following the cognitive-science split used by the
extraction prompts.
*/
type Type string

const (
	// TypeEpisodic captures specific events or conversations.
	TypeEpisodic Type = "episodic"
	// TypeSemantic captures facts and relationships.
	TypeSemantic Type = "semantic"
	// TypePreference captures user preferences.
	TypePreference Type = "preference"
	// TypeProcedural captures how-to knowledge.
	TypeProcedural Type = "procedural"
	// TypeMeta captures knowledge about the user's own knowledge.
	TypeMeta Type = "meta"
)

/*
Status is the lifecycle state of a memory. Memories are never physically
deleted; retirement is always a status transition so history stays
reconstructable.
*/
type Status string

const (
	StatusDraft      Status = "draft"
	StatusActive     Status = "active"
	StatusArchived   Status = "archived"
	StatusDeleted    Status = "deleted"
	StatusSuperseded Status = "superseded"
	StatusIrrelevant Status = "irrelevant"
	StatusStale      Status = "stale"
)

// Source records where a memory originated.
type Source string

const (
	SourceConversation  Source = "conversation"
	SourceDocument      Source = "document"
	SourceImport        Source = "import"
	SourceManual        Source = "manual"
	SourceConsolidation Source = "consolidation"
)

/*
Memory is the full memory record as persisted. SupersededBy is a weak
self-reference by id, never a live pointer, so chains are walked through
the store.
*/
type Memory struct {
	ID           uuid.UUID  `json:"id"`
	Owner        uuid.UUID  `json:"owner"`
	Content      string     `json:"content"`
	Embedding    []float32  `json:"-"`
	Type         Type       `json:"memory_type"`
	Domain       string     `json:"domain,omitempty"`
	Category     string     `json:"category,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	Importance   int        `json:"importance"`
	Confidence   float64    `json:"confidence"`
	Status       Status     `json:"status"`
	SupersededBy *uuid.UUID `json:"superseded_by,omitempty"`
	Source       Source     `json:"source"`
	SourceID     string     `json:"source_id,omitempty"`
	AccessCount  int        `json:"access_count"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Scored pairs a memory with a cosine similarity from a vector query.
type Scored struct {
	Memory     *Memory
	Similarity float64
}

/*
Relevance combines similarity with importance so that two equally similar
memories rank by how much they mattered when stored.
*/
func (scored Scored) Relevance() float64 {
	return scored.Similarity * (1 + float64(scored.Memory.Importance)/10)
}

// ListQuery narrows ListMemories calls.
type ListQuery struct {
	Statuses []Status
	Type     Type
	Since    time.Time
	Limit    int
}

// SimilarQuery narrows QuerySimilar calls.
type SimilarQuery struct {
	K        int
	Type     Type
	Statuses []Status
}

// IsActive reports whether the memory participates in active-scope queries.
func (m *Memory) IsActive() bool {
	return m.Status == StatusActive
}

// New returns a memory with generated id, timestamps and active status.
func New(owner uuid.UUID, content string, memType Type) *Memory {
	now := time.Now().UTC()

	return &Memory{
		ID:         uuid.New(),
		Owner:      owner,
		Content:    content,
		Type:       memType,
		Importance: DefaultImportance(memType),
		Confidence: 0.8,
		Status:     StatusActive,
		Source:     SourceConversation,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
