package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/theapemachine/lucid/pkg/consolidation"
	"github.com/theapemachine/lucid/pkg/entity"
	"github.com/theapemachine/lucid/pkg/errors"
)

const hubColumns = `id, owner, name, display_name, canonical_name, category,
	type, aliases, usage_count, memory_count, embedding, source, confidence,
	last_used, created_at, updated_at`

const linkColumns = `id, memory_id, entity_id, owner, strength, is_primary,
	mention_count, context_snippet, created_at`

func (store *Store) GetHub(
	ctx context.Context, owner, id uuid.UUID,
) (*entity.Hub, error) {
	row := store.q.QueryRowContext(ctx, `
		SELECT `+hubColumns+` FROM entity_hubs WHERE owner = ? AND id = ?`,
		owner.String(), id.String(),
	)

	return scanHub(row)
}

func (store *Store) GetHubByName(
	ctx context.Context, owner uuid.UUID, name string,
) (*entity.Hub, error) {
	row := store.q.QueryRowContext(ctx, `
		SELECT `+hubColumns+` FROM entity_hubs WHERE owner = ? AND name = ?`,
		owner.String(), name,
	)

	return scanHub(row)
}

func (store *Store) ListHubs(
	ctx context.Context, owner uuid.UUID, limit int,
) ([]*entity.Hub, error) {
	query := `SELECT ` + hubColumns + ` FROM entity_hubs WHERE owner = ?
		ORDER BY usage_count DESC`
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

	return scanHubs(rows)
}

func (store *Store) TopHubs(
	ctx context.Context, owner uuid.UUID, hubType entity.HubType, limit int,
) ([]*entity.Hub, error) {
	query := `SELECT ` + hubColumns + ` FROM entity_hubs WHERE owner = ?`
	args := []any{owner.String()}

	if hubType != "" {
		query += " AND type = ?"
		args = append(args, string(hubType))
	}

	query += " ORDER BY memory_count DESC, usage_count DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := store.q.QueryContext(ctx, query, args...)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	return scanHubs(rows)
}

func (store *Store) InsertHub(ctx context.Context, hub *entity.Hub) error {
	aliases, err := json.Marshal(hub.Aliases)

	if err != nil {
		return err
	}

	_, err = store.q.ExecContext(ctx, `
		INSERT INTO entity_hubs (`+hubColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hub.ID.String(), hub.Owner.String(), hub.Name, hub.DisplayName,
		hub.CanonicalName, hub.Category, string(hub.Type), string(aliases),
		hub.UsageCount, hub.MemoryCount, Float32sToBytes(hub.Embedding),
		string(hub.Source), hub.Confidence, hub.LastUsed,
		hub.CreatedAt, hub.UpdatedAt,
	)

	return wrapConstraint("entity_hubs", hub.Name, err)
}

func (store *Store) TouchHub(ctx context.Context, owner, id uuid.UUID) error {
	_, err := store.q.ExecContext(ctx, `
		UPDATE entity_hubs
		SET usage_count = usage_count + 1, last_used = ?, updated_at = ?
		WHERE owner = ? AND id = ?`,
		time.Now().UTC(), time.Now().UTC(), owner.String(), id.String(),
	)

	return err
}

/*
LinkMemory writes a batch of memory-entity links in one transaction and
keeps each hub's memory_count in step. An existing link for the same
pair is strengthened instead of duplicated: strength takes the larger
value and the mention count goes up by one.
*/
func (store *Store) LinkMemory(
	ctx context.Context, owner, memoryID uuid.UUID, links []*entity.Link,
) error {
	if len(links) == 0 {
		return nil
	}

	return store.WithTx(ctx, func(bound consolidation.Store) error {
		tx := bound.(*Store)

		for _, link := range links {
			result, err := tx.q.ExecContext(ctx, `
				UPDATE memory_entity_links
				SET strength = MAX(strength, ?), mention_count = mention_count + 1
				WHERE owner = ? AND memory_id = ? AND entity_id = ?`,
				link.Strength, owner.String(), memoryID.String(),
				link.EntityID.String(),
			)

			if err != nil {
				return err
			}

			if n, _ := result.RowsAffected(); n > 0 {
				continue
			}

			if link.ID == uuid.Nil {
				link.ID = uuid.New()
			}

			if link.CreatedAt.IsZero() {
				link.CreatedAt = time.Now().UTC()
			}

			if _, err := tx.q.ExecContext(ctx, `
				INSERT INTO memory_entity_links (`+linkColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				link.ID.String(), memoryID.String(), link.EntityID.String(),
				owner.String(), link.Strength, link.IsPrimary,
				link.MentionCount, link.ContextSnippet, link.CreatedAt,
			); err != nil {
				return wrapConstraint("memory_entity_links", link.EntityID.String(), err)
			}

			if _, err := tx.q.ExecContext(ctx, `
				UPDATE entity_hubs
				SET memory_count = memory_count + 1, updated_at = ?
				WHERE owner = ? AND id = ?`,
				time.Now().UTC(), owner.String(), link.EntityID.String(),
			); err != nil {
				return err
			}
		}

		return nil
	})
}

func (store *Store) LinksForMemory(
	ctx context.Context, owner, memoryID uuid.UUID,
) ([]*entity.Link, error) {
	rows, err := store.q.QueryContext(ctx, `
		SELECT `+linkColumns+` FROM memory_entity_links
		WHERE owner = ? AND memory_id = ?
		ORDER BY is_primary DESC, strength DESC`,
		owner.String(), memoryID.String(),
	)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	return scanLinks(rows)
}

func (store *Store) LinksForEntity(
	ctx context.Context, owner, hubID uuid.UUID,
) ([]*entity.Link, error) {
	rows, err := store.q.QueryContext(ctx, `
		SELECT `+linkColumns+` FROM memory_entity_links
		WHERE owner = ? AND entity_id = ?
		ORDER BY strength DESC`,
		owner.String(), hubID.String(),
	)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	return scanLinks(rows)
}

func scanLinks(rows *sql.Rows) ([]*entity.Link, error) {
	out := []*entity.Link{}

	for rows.Next() {
		var (
			link                          entity.Link
			id, memoryID, entityID, owner string
		)

		if err := rows.Scan(
			&id, &memoryID, &entityID, &owner, &link.Strength,
			&link.IsPrimary, &link.MentionCount, &link.ContextSnippet,
			&link.CreatedAt,
		); err != nil {
			return nil, err
		}

		var err error

		if link.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}

		if link.MemoryID, err = uuid.Parse(memoryID); err != nil {
			return nil, err
		}

		if link.EntityID, err = uuid.Parse(entityID); err != nil {
			return nil, err
		}

		if link.Owner, err = uuid.Parse(owner); err != nil {
			return nil, err
		}

		out = append(out, &link)
	}

	return out, rows.Err()
}

func scanHub(row rowScanner) (*entity.Hub, error) {
	var (
		hub             entity.Hub
		id, owner       string
		hubType, source string
		aliases         string
		embedding       []byte
		lastUsed        sql.NullTime
	)

	err := row.Scan(
		&id, &owner, &hub.Name, &hub.DisplayName, &hub.CanonicalName,
		&hub.Category, &hubType, &aliases, &hub.UsageCount, &hub.MemoryCount,
		&embedding, &source, &hub.Confidence, &lastUsed,
		&hub.CreatedAt, &hub.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	if hub.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}

	if hub.Owner, err = uuid.Parse(owner); err != nil {
		return nil, err
	}

	hub.Type = entity.HubType(hubType)
	hub.Source = entity.Source(source)
	hub.Embedding = BytesToFloat32s(embedding)

	if err := json.Unmarshal([]byte(aliases), &hub.Aliases); err != nil {
		return nil, err
	}

	if lastUsed.Valid {
		hub.LastUsed = lastUsed.Time
	}

	return &hub, nil
}

func scanHubs(rows *sql.Rows) ([]*entity.Hub, error) {
	out := []*entity.Hub{}

	for rows.Next() {
		hub, err := scanHub(rows)

		if err != nil {
			return nil, err
		}

		out = append(out, hub)
	}

	return out, rows.Err()
}
