package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/theapemachine/lucid/pkg/errors"
	"github.com/theapemachine/lucid/pkg/memory"
	"github.com/theapemachine/lucid/pkg/stores/qdrant"
)

const memoryColumns = `id, owner, content, embedding, type, domain, category,
	tags, importance, confidence, status, superseded_by, source, source_id,
	access_count, last_accessed, created_at, updated_at`

// scanLimit bounds how many candidate rows an in-process similarity scan
// will load when no ANN index is attached.
const scanLimit = 5000

func (store *Store) InsertMemory(ctx context.Context, mem *memory.Memory) error {
	tags, err := json.Marshal(mem.Tags)

	if err != nil {
		return err
	}

	_, err = store.q.ExecContext(ctx, `
		INSERT INTO memories (`+memoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mem.ID.String(), mem.Owner.String(), mem.Content,
		Float32sToBytes(mem.Embedding), string(mem.Type), mem.Domain,
		mem.Category, string(tags), mem.Importance, mem.Confidence,
		string(mem.Status), nullableID(mem.SupersededBy), string(mem.Source),
		mem.SourceID, mem.AccessCount, mem.LastAccessed,
		mem.CreatedAt, mem.UpdatedAt,
	)

	if err != nil {
		return wrapConstraint("memories", mem.ID.String(), err)
	}

	store.indexMemory(ctx, mem)
	return nil
}

func (store *Store) GetMemory(
	ctx context.Context, owner, id uuid.UUID,
) (*memory.Memory, error) {
	row := store.q.QueryRowContext(ctx, `
		SELECT `+memoryColumns+` FROM memories WHERE owner = ? AND id = ?`,
		owner.String(), id.String(),
	)

	return scanMemory(row)
}

func (store *Store) UpdateMemory(ctx context.Context, mem *memory.Memory) error {
	tags, err := json.Marshal(mem.Tags)

	if err != nil {
		return err
	}

	mem.UpdatedAt = time.Now().UTC()

	result, err := store.q.ExecContext(ctx, `
		UPDATE memories SET
			content = ?, embedding = ?, type = ?, domain = ?, category = ?,
			tags = ?, importance = ?, confidence = ?, status = ?,
			superseded_by = ?, access_count = ?, last_accessed = ?,
			updated_at = ?
		WHERE owner = ? AND id = ?`,
		mem.Content, Float32sToBytes(mem.Embedding), string(mem.Type),
		mem.Domain, mem.Category, string(tags), mem.Importance,
		mem.Confidence, string(mem.Status), nullableID(mem.SupersededBy),
		mem.AccessCount, mem.LastAccessed, mem.UpdatedAt,
		mem.Owner.String(), mem.ID.String(),
	)

	if err != nil {
		return err
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return errors.ErrNotFound
	}

	store.indexMemory(ctx, mem)
	return nil
}

/*
SetMemoryStatus transitions a memory's lifecycle status. A supersession
is rejected with a validation error when linking the successor would
close a cycle in the supersede chain.
*/
func (store *Store) SetMemoryStatus(
	ctx context.Context,
	owner, id uuid.UUID,
	status memory.Status,
	supersededBy *uuid.UUID,
) error {
	if supersededBy != nil {
		if err := store.checkSupersedeChain(ctx, owner, id, *supersededBy); err != nil {
			return err
		}
	}

	result, err := store.q.ExecContext(ctx, `
		UPDATE memories SET status = ?, superseded_by = ?, updated_at = ?
		WHERE owner = ? AND id = ?`,
		string(status), nullableID(supersededBy), time.Now().UTC(),
		owner.String(), id.String(),
	)

	if err != nil {
		return err
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return errors.ErrNotFound
	}

	return nil
}

/*
checkSupersedeChain loads the successor chain into an arena, with the
pending supersession applied, and walks it for cycles before anything
is written.
*/
func (store *Store) checkSupersedeChain(
	ctx context.Context, owner, id, successor uuid.UUID,
) error {
	arena := memory.Arena{
		id: {ID: id, SupersededBy: &successor},
	}

	current := successor

	for {
		if _, ok := arena[current]; ok {
			break
		}

		mem, err := store.GetMemory(ctx, owner, current)

		if err == errors.ErrNotFound {
			break
		}

		if err != nil {
			return err
		}

		arena[current] = mem

		if mem.SupersededBy == nil {
			break
		}

		current = *mem.SupersededBy
	}

	return arena.ValidateChain(id)
}

func (store *Store) ListMemories(
	ctx context.Context, owner uuid.UUID, query memory.ListQuery,
) ([]*memory.Memory, error) {
	clauses := []string{"owner = ?"}
	args := []any{owner.String()}

	if len(query.Statuses) > 0 {
		placeholders := make([]string, len(query.Statuses))

		for i, status := range query.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}

		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	if query.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(query.Type))
	}

	if !query.Since.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, query.Since)
	}

	sqlQuery := `SELECT ` + memoryColumns + ` FROM memories WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC`

	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)
	}

	rows, err := store.q.QueryContext(ctx, sqlQuery, args...)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	return scanMemories(rows)
}

func (store *Store) TouchMemories(
	ctx context.Context, owner uuid.UUID, ids []uuid.UUID,
) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := []any{time.Now().UTC(), owner.String()}

	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id.String())
	}

	_, err := store.q.ExecContext(ctx, `
		UPDATE memories
		SET access_count = access_count + 1, last_accessed = ?
		WHERE owner = ? AND id IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	)

	return err
}

/*
QuerySimilar returns the K nearest memories by cosine similarity. With
an ANN index attached the candidate set comes from Qdrant; otherwise
the matching rows are scanned and scored in-process.
*/
func (store *Store) QuerySimilar(
	ctx context.Context,
	owner uuid.UUID,
	vec []float32,
	query memory.SimilarQuery,
) ([]memory.Scored, error) {
	if query.K <= 0 {
		query.K = 10
	}

	if store.ann != nil {
		if scored, err := store.querySimilarANN(ctx, owner, vec, query); err == nil {
			return scored, nil
		} else {
			log.Warn("ann search failed, falling back to scan", "error", err)
		}
	}

	statuses := query.Statuses

	if len(statuses) == 0 {
		statuses = []memory.Status{memory.StatusActive}
	}

	candidates, err := store.ListMemories(ctx, owner, memory.ListQuery{
		Statuses: statuses,
		Type:     query.Type,
		Limit:    scanLimit,
	})

	if err != nil {
		return nil, err
	}

	scored := make([]memory.Scored, 0, len(candidates))

	for _, candidate := range candidates {
		scored = append(scored, memory.Scored{
			Memory:     candidate,
			Similarity: Cosine(vec, candidate.Embedding),
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

	if len(scored) > query.K {
		scored = scored[:query.K]
	}

	return scored, nil
}

func (store *Store) querySimilarANN(
	ctx context.Context,
	owner uuid.UUID,
	vec []float32,
	query memory.SimilarQuery,
) ([]memory.Scored, error) {
	hits, err := store.ann.Search(ctx, vec, query.K, qdrant.Filter{
		Owner: owner.String(),
		Type:  string(query.Type),
	})

	if err != nil {
		return nil, err
	}

	scored := make([]memory.Scored, 0, len(hits))

	for _, hit := range hits {
		id, err := uuid.Parse(hit.ID)

		if err != nil {
			continue
		}

		mem, err := store.GetMemory(ctx, owner, id)

		if err != nil {
			continue
		}

		if len(query.Statuses) > 0 && !statusIn(mem.Status, query.Statuses) {
			continue
		}

		scored = append(scored, memory.Scored{Memory: mem, Similarity: hit.Score})
	}

	return scored, nil
}

func (store *Store) CountMemories(
	ctx context.Context, owner uuid.UUID, status memory.Status,
) (int, error) {
	var count int

	err := store.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memories WHERE owner = ? AND status = ?`,
		owner.String(), string(status),
	).Scan(&count)

	return count, err
}

// indexMemory mirrors the memory into the ANN index, best effort. The
// SQLite row is the source of truth either way.
func (store *Store) indexMemory(ctx context.Context, mem *memory.Memory) {
	if store.ann == nil || len(mem.Embedding) == 0 {
		return
	}

	if err := store.ann.Upsert(ctx, qdrant.Point{
		ID:     mem.ID.String(),
		Vector: mem.Embedding,
		Payload: map[string]any{
			"owner":  mem.Owner.String(),
			"type":   string(mem.Type),
			"status": string(mem.Status),
		},
	}); err != nil {
		log.Warn("failed to index memory", "memory", mem.ID, "error", err)
	}
}

func statusIn(status memory.Status, statuses []memory.Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}

	return false
}

func nullableID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}

	return id.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*memory.Memory, error) {
	var (
		mem             memory.Memory
		id, owner       string
		memType, status string
		source, tags    string
		embedding       []byte
		supersededBy    sql.NullString
		lastAccessed    sql.NullTime
	)

	err := row.Scan(
		&id, &owner, &mem.Content, &embedding, &memType, &mem.Domain,
		&mem.Category, &tags, &mem.Importance, &mem.Confidence, &status,
		&supersededBy, &source, &mem.SourceID, &mem.AccessCount,
		&lastAccessed, &mem.CreatedAt, &mem.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	if mem.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}

	if mem.Owner, err = uuid.Parse(owner); err != nil {
		return nil, err
	}

	mem.Type = memory.Type(memType)
	mem.Status = memory.Status(status)
	mem.Source = memory.Source(source)
	mem.Embedding = BytesToFloat32s(embedding)

	if err := json.Unmarshal([]byte(tags), &mem.Tags); err != nil {
		return nil, err
	}

	if supersededBy.Valid {
		parsed, err := uuid.Parse(supersededBy.String)

		if err != nil {
			return nil, err
		}

		mem.SupersededBy = &parsed
	}

	if lastAccessed.Valid {
		mem.LastAccessed = &lastAccessed.Time
	}

	return &mem, nil
}

func scanMemories(rows *sql.Rows) ([]*memory.Memory, error) {
	out := []*memory.Memory{}

	for rows.Next() {
		mem, err := scanMemory(rows)

		if err != nil {
			return nil, err
		}

		out = append(out, mem)
	}

	return out, rows.Err()
}
