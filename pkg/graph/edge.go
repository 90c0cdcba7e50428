/*
Package graph maintains the typed edges between memories and answers
traversal queries over them. Edges are directed; a bidirectional edge is
followed from either end.
*/
package graph

import (
	"time"

	"github.com/google/uuid"

	"github.com/theapemachine/lucid/pkg/errors"
)

// EdgeType classifies the relationship an edge asserts.
type EdgeType string

const (
	EdgeLeadsTo     EdgeType = "leads_to"
	EdgeRelatedTo   EdgeType = "related_to"
	EdgeContradicts EdgeType = "contradicts"
	EdgeSupports    EdgeType = "supports"
	EdgeLikes       EdgeType = "likes"
	EdgeDislikes    EdgeType = "dislikes"
	EdgeDependsOn   EdgeType = "depends_on"
	EdgeEvolvesInto EdgeType = "evolves_into"
)

/*
Edge is a directed, typed relationship between two memories, unique per
(owner, from, to, type). Re-adding an existing edge strengthens it
instead of duplicating it.
*/
type Edge struct {
	ID            uuid.UUID `json:"id"`
	Owner         uuid.UUID `json:"owner"`
	From          uuid.UUID `json:"from_memory"`
	To            uuid.UUID `json:"to_memory"`
	Type          EdgeType  `json:"edge_type"`
	Strength      float64   `json:"strength"`
	Confidence    float64   `json:"confidence"`
	Causality     bool      `json:"causality"`
	Bidirectional bool      `json:"bidirectional"`
	Reason        string    `json:"reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsCausal reports whether the edge asserts causality, by flag or by type.
func (edge *Edge) IsCausal() bool {
	return edge.Causality ||
		edge.Type == EdgeLeadsTo ||
		edge.Type == EdgeEvolvesInto ||
		edge.Type == EdgeDependsOn
}

// Validate rejects self-loops and out-of-range scores before any write.
func (edge *Edge) Validate() error {
	if edge.From == edge.To {
		return errors.NewValidation("to_memory", "edge cannot reference the same memory")
	}

	if edge.Strength < 0 || edge.Strength > 1 {
		return errors.NewValidation("strength", "strength must be in [0,1]")
	}

	if edge.Confidence < 0 || edge.Confidence > 1 {
		return errors.NewValidation("confidence", "confidence must be in [0,1]")
	}

	return nil
}
