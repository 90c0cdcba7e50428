package memory

import (
	"github.com/cohesivestack/valgo"
	"github.com/google/uuid"

	"github.com/theapemachine/lucid/pkg/errors"
)

// maxContentLength mirrors the extraction prompt's transcript clamp.
const maxContentLength = 8000

/*
Validate rejects a memory before any write reaches the store. The checks
mirror the store's column constraints so invalid records never produce a
constraint error downstream.
*/
func (m *Memory) Validate() error {
	val := valgo.Is(
		valgo.String(m.Content, "content").Not().Blank(),
	).Is(
		valgo.Number(m.Importance, "importance").Between(1, 10),
	).Is(
		valgo.Number(m.Confidence, "confidence").Between(0.0, 1.0),
	)

	if !val.Valid() {
		for field, messages := range val.Errors() {
			if len(messages.Messages()) > 0 {
				return errors.NewValidation(field, messages.Messages()[0])
			}
		}

		return errors.NewValidation("", "invalid memory")
	}

	if m.Owner == uuid.Nil {
		return errors.NewValidation("owner", "owner is required")
	}

	if len(m.Content) > maxContentLength {
		return errors.NewValidation("content", "content exceeds maximum length")
	}

	switch m.Type {
	case TypeEpisodic, TypeSemantic, TypePreference, TypeProcedural, TypeMeta:
	default:
		return errors.NewValidation("memory_type", "unknown memory type")
	}

	return nil
}

/*
Arena indexes memory records by id. Supersede chains are validated by
walking ids through the arena rather than chasing pointers.
*/
type Arena map[uuid.UUID]*Memory

// maxChainWalk bounds the supersede-chain walk on write.
const maxChainWalk = 64

/*
ValidateChain walks the supersede chain starting at the given id and
returns a validation error when the chain revisits a node or exceeds the
walk bound. An id missing from the arena terminates the walk; chains may
legitimately point at archived history not loaded here.
*/
func (arena Arena) ValidateChain(start uuid.UUID) error {
	seen := map[uuid.UUID]bool{}
	current := start

	for i := 0; i < maxChainWalk; i++ {
		if seen[current] {
			return errors.NewValidation("superseded_by", "supersede chain contains a cycle")
		}

		seen[current] = true

		record, ok := arena[current]
		if !ok || record.SupersededBy == nil {
			return nil
		}

		current = *record.SupersededBy
	}

	return errors.NewValidation("superseded_by", "supersede chain exceeds walk bound")
}
