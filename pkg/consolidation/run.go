/*
Package consolidation turns raw conversation transcripts into durable
memories. A run extracts claims, embeds them, resolves their entities,
and merges each claim against the owner's existing memories, either
creating, updating, or refining records. Every run is recorded in the
history whether it succeeds or not.
*/
package consolidation

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Status is the lifecycle state of a consolidation run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

/*
Run is the audit record of one consolidation pass. IDs are ULIDs so the
history sorts chronologically by id alone.
*/
type Run struct {
	ID                 string     `json:"id"`
	Owner              uuid.UUID  `json:"owner"`
	ConversationID     string     `json:"conversation_id,omitempty"`
	Status             Status     `json:"status"`
	ClaimsExtracted    int        `json:"claims_extracted"`
	MemoriesProcessed  int        `json:"memories_processed"`
	NewMemoriesCreated int        `json:"new_memories_created"`
	MemoriesMerged     int        `json:"memories_merged"`
	ConflictsResolved  int        `json:"conflicts_resolved"`
	EdgesCreated       int        `json:"edges_created"`
	FailedClaims       int        `json:"failed_claims"`
	TranscriptLength   int        `json:"transcript_length"`
	ElapsedMS          int64      `json:"elapsed_ms"`
	EstimatedCost      float64    `json:"estimated_cost"`
	Error              string     `json:"error,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// NewRun returns a pending run for the given owner and transcript size.
func NewRun(owner uuid.UUID, conversationID string, transcriptLength int) *Run {
	return &Run{
		ID:               ulid.Make().String(),
		Owner:            owner,
		ConversationID:   conversationID,
		Status:           StatusPending,
		TranscriptLength: transcriptLength,
		StartedAt:        time.Now().UTC(),
	}
}

// Finish stamps the run with its terminal status and elapsed time.
func (run *Run) Finish(status Status, runErr error) {
	now := time.Now().UTC()
	run.Status = status
	run.CompletedAt = &now
	run.ElapsedMS = now.Sub(run.StartedAt).Milliseconds()

	if runErr != nil {
		run.Error = runErr.Error()
	}
}
