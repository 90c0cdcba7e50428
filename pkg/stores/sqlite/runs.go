package sqlite

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/theapemachine/lucid/pkg/consolidation"
)

const runColumns = `id, owner, conversation_id, status, claims_extracted, memories_processed,
	new_memories_created, memories_merged, conflicts_resolved, edges_created,
	failed_claims, transcript_length, elapsed_ms, estimated_cost, error,
	started_at, completed_at`

/*
AppendRun upserts a run record by id, so the same run can be written as
pending at the start of a pass and again with its final counters when
the pass ends.
*/
func (store *Store) AppendRun(ctx context.Context, run *consolidation.Run) error {
	_, err := store.q.ExecContext(ctx, `
		INSERT INTO consolidation_history (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			claims_extracted = excluded.claims_extracted,
			memories_processed = excluded.memories_processed,
			new_memories_created = excluded.new_memories_created,
			memories_merged = excluded.memories_merged,
			conflicts_resolved = excluded.conflicts_resolved,
			edges_created = excluded.edges_created,
			failed_claims = excluded.failed_claims,
			elapsed_ms = excluded.elapsed_ms,
			estimated_cost = excluded.estimated_cost,
			error = excluded.error,
			completed_at = excluded.completed_at`,
		run.ID, run.Owner.String(), run.ConversationID, string(run.Status), run.ClaimsExtracted,
		run.MemoriesProcessed, run.NewMemoriesCreated, run.MemoriesMerged,
		run.ConflictsResolved, run.EdgesCreated, run.FailedClaims,
		run.TranscriptLength, run.ElapsedMS, run.EstimatedCost, run.Error,
		run.StartedAt, run.CompletedAt,
	)

	return err
}

func (store *Store) ListRuns(
	ctx context.Context, owner uuid.UUID, limit int,
) ([]*consolidation.Run, error) {
	query := `SELECT ` + runColumns + ` FROM consolidation_history
		WHERE owner = ? ORDER BY id DESC`
	args := []any{owner.String()}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := store.q.QueryContext(ctx, query, args...)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	out := []*consolidation.Run{}

	for rows.Next() {
		var (
			run           consolidation.Run
			owner, status string
			completedAt   sql.NullTime
		)

		if err := rows.Scan(
			&run.ID, &owner, &run.ConversationID, &status, &run.ClaimsExtracted,
			&run.MemoriesProcessed, &run.NewMemoriesCreated,
			&run.MemoriesMerged, &run.ConflictsResolved, &run.EdgesCreated,
			&run.FailedClaims, &run.TranscriptLength, &run.ElapsedMS,
			&run.EstimatedCost, &run.Error, &run.StartedAt, &completedAt,
		); err != nil {
			return nil, err
		}

		if run.Owner, err = uuid.Parse(owner); err != nil {
			return nil, err
		}

		run.Status = consolidation.Status(status)

		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}

		out = append(out, &run)
	}

	return out, rows.Err()
}
