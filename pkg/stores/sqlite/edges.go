package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/theapemachine/lucid/pkg/errors"
	"github.com/theapemachine/lucid/pkg/graph"
)

const edgeColumns = `id, owner, from_memory, to_memory, edge_type, strength,
	confidence, causality, bidirectional, reason, created_at, updated_at`

func (store *Store) GetEdge(
	ctx context.Context, owner, from, to uuid.UUID, edgeType graph.EdgeType,
) (*graph.Edge, error) {
	row := store.q.QueryRowContext(ctx, `
		SELECT `+edgeColumns+` FROM knowledge_edges
		WHERE owner = ? AND from_memory = ? AND to_memory = ? AND edge_type = ?`,
		owner.String(), from.String(), to.String(), string(edgeType),
	)

	return scanEdge(row)
}

func (store *Store) InsertEdge(ctx context.Context, edge *graph.Edge) error {
	if edge.ID == uuid.Nil {
		edge.ID = uuid.New()
	}

	now := time.Now().UTC()

	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = now
	}

	edge.UpdatedAt = now

	_, err := store.q.ExecContext(ctx, `
		INSERT INTO knowledge_edges (`+edgeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		edge.ID.String(), edge.Owner.String(), edge.From.String(),
		edge.To.String(), string(edge.Type), edge.Strength, edge.Confidence,
		edge.Causality, edge.Bidirectional, edge.Reason,
		edge.CreatedAt, edge.UpdatedAt,
	)

	return wrapConstraint("knowledge_edges", string(edge.Type), err)
}

func (store *Store) UpdateEdge(ctx context.Context, edge *graph.Edge) error {
	edge.UpdatedAt = time.Now().UTC()

	result, err := store.q.ExecContext(ctx, `
		UPDATE knowledge_edges SET
			strength = ?, confidence = ?, causality = ?, bidirectional = ?,
			reason = ?, updated_at = ?
		WHERE owner = ? AND id = ?`,
		edge.Strength, edge.Confidence, edge.Causality, edge.Bidirectional,
		edge.Reason, edge.UpdatedAt, edge.Owner.String(), edge.ID.String(),
	)

	if err != nil {
		return err
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return errors.ErrNotFound
	}

	return nil
}

func (store *Store) EdgesTouching(
	ctx context.Context, owner, memoryID uuid.UUID,
) ([]*graph.Edge, error) {
	rows, err := store.q.QueryContext(ctx, `
		SELECT `+edgeColumns+` FROM knowledge_edges
		WHERE owner = ? AND (from_memory = ? OR to_memory = ?)
		ORDER BY strength DESC`,
		owner.String(), memoryID.String(), memoryID.String(),
	)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	return scanEdges(rows)
}

func (store *Store) EdgesAmong(
	ctx context.Context,
	owner uuid.UUID,
	ids []uuid.UUID,
	types []graph.EdgeType,
) ([]*graph.Edge, error) {
	if len(ids) == 0 {
		return []*graph.Edge{}, nil
	}

	placeholders := make([]string, len(ids))

	for i := range ids {
		placeholders[i] = "?"
	}

	in := strings.Join(placeholders, ", ")
	query := `SELECT ` + edgeColumns + ` FROM knowledge_edges
		WHERE owner = ? AND from_memory IN (` + in + `) AND to_memory IN (` + in + `)`

	args := []any{owner.String()}

	// The id list binds once for each side of the edge.
	for _, id := range ids {
		args = append(args, id.String())
	}

	for _, id := range ids {
		args = append(args, id.String())
	}

	if len(types) > 0 {
		typePlaceholders := make([]string, len(types))

		for i, edgeType := range types {
			typePlaceholders[i] = "?"
			args = append(args, string(edgeType))
		}

		query += ` AND edge_type IN (` + strings.Join(typePlaceholders, ", ") + `)`
	}

	rows, err := store.q.QueryContext(ctx, query, args...)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	return scanEdges(rows)
}

func scanEdge(row rowScanner) (*graph.Edge, error) {
	var (
		edge               graph.Edge
		id, owner          string
		from, to, edgeType string
	)

	err := row.Scan(
		&id, &owner, &from, &to, &edgeType, &edge.Strength, &edge.Confidence,
		&edge.Causality, &edge.Bidirectional, &edge.Reason,
		&edge.CreatedAt, &edge.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	if edge.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}

	if edge.Owner, err = uuid.Parse(owner); err != nil {
		return nil, err
	}

	if edge.From, err = uuid.Parse(from); err != nil {
		return nil, err
	}

	if edge.To, err = uuid.Parse(to); err != nil {
		return nil, err
	}

	edge.Type = graph.EdgeType(edgeType)

	return &edge, nil
}

func scanEdges(rows *sql.Rows) ([]*graph.Edge, error) {
	out := []*graph.Edge{}

	for rows.Next() {
		edge, err := scanEdge(rows)

		if err != nil {
			return nil, err
		}

		out = append(out, edge)
	}

	return out, rows.Err()
}
