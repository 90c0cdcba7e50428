/*
Package sqlite persists memories, entity hubs, knowledge edges, and
consolidation history in a single SQLite database. Embeddings are stored
as little-endian float32 blobs and compared in-process, which keeps the
whole store on one file with no external services.
*/
package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	"github.com/theapemachine/lucid/pkg/consolidation"
	"github.com/theapemachine/lucid/pkg/errors"
	"github.com/theapemachine/lucid/pkg/stores/qdrant"
)

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id            TEXT PRIMARY KEY,
	owner         TEXT NOT NULL,
	content       TEXT NOT NULL,
	embedding     BLOB,
	type          TEXT NOT NULL,
	domain        TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL DEFAULT '',
	tags          TEXT NOT NULL DEFAULT '[]',
	importance    INTEGER NOT NULL,
	confidence    REAL NOT NULL,
	status        TEXT NOT NULL,
	superseded_by TEXT,
	source        TEXT NOT NULL DEFAULT '',
	source_id     TEXT NOT NULL DEFAULT '',
	access_count  INTEGER NOT NULL DEFAULT 0,
	last_accessed TIMESTAMP,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_owner_status ON memories (owner, status);
CREATE INDEX IF NOT EXISTS idx_memories_owner_type   ON memories (owner, type);

CREATE TABLE IF NOT EXISTS entity_hubs (
	id             TEXT PRIMARY KEY,
	owner          TEXT NOT NULL,
	name           TEXT NOT NULL,
	display_name   TEXT NOT NULL DEFAULT '',
	canonical_name TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	type           TEXT NOT NULL,
	aliases        TEXT NOT NULL DEFAULT '[]',
	usage_count    INTEGER NOT NULL DEFAULT 0,
	memory_count   INTEGER NOT NULL DEFAULT 0,
	embedding      BLOB,
	source         TEXT NOT NULL DEFAULT '',
	confidence     REAL NOT NULL DEFAULT 0,
	last_used      TIMESTAMP,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL,
	UNIQUE (owner, name)
);

CREATE TABLE IF NOT EXISTS memory_entity_links (
	id              TEXT PRIMARY KEY,
	memory_id       TEXT NOT NULL,
	entity_id       TEXT NOT NULL,
	owner           TEXT NOT NULL,
	strength        REAL NOT NULL DEFAULT 1.0,
	is_primary      INTEGER NOT NULL DEFAULT 0,
	mention_count   INTEGER NOT NULL DEFAULT 1,
	context_snippet TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL,
	UNIQUE (owner, memory_id, entity_id)
);
CREATE INDEX IF NOT EXISTS idx_links_entity ON memory_entity_links (owner, entity_id);

CREATE TABLE IF NOT EXISTS knowledge_edges (
	id            TEXT PRIMARY KEY,
	owner         TEXT NOT NULL,
	from_memory   TEXT NOT NULL,
	to_memory     TEXT NOT NULL,
	edge_type     TEXT NOT NULL,
	strength      REAL NOT NULL,
	confidence    REAL NOT NULL,
	causality     INTEGER NOT NULL DEFAULT 0,
	bidirectional INTEGER NOT NULL DEFAULT 0,
	reason        TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL,
	UNIQUE (owner, from_memory, to_memory, edge_type)
);
CREATE INDEX IF NOT EXISTS idx_edges_from ON knowledge_edges (owner, from_memory);
CREATE INDEX IF NOT EXISTS idx_edges_to   ON knowledge_edges (owner, to_memory);

CREATE TABLE IF NOT EXISTS consolidation_history (
	id                   TEXT PRIMARY KEY,
	owner                TEXT NOT NULL,
	conversation_id      TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL,
	claims_extracted     INTEGER NOT NULL DEFAULT 0,
	memories_processed   INTEGER NOT NULL DEFAULT 0,
	new_memories_created INTEGER NOT NULL DEFAULT 0,
	memories_merged      INTEGER NOT NULL DEFAULT 0,
	conflicts_resolved   INTEGER NOT NULL DEFAULT 0,
	edges_created        INTEGER NOT NULL DEFAULT 0,
	failed_claims        INTEGER NOT NULL DEFAULT 0,
	transcript_length    INTEGER NOT NULL DEFAULT 0,
	elapsed_ms           INTEGER NOT NULL DEFAULT 0,
	estimated_cost       REAL NOT NULL DEFAULT 0,
	error                TEXT NOT NULL DEFAULT '',
	started_at           TIMESTAMP NOT NULL,
	completed_at         TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_history_owner ON consolidation_history (owner, started_at);
`

// execer is the subset of database/sql shared by *sql.DB and *sql.Tx,
// so every query method works identically inside and outside a
// transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

/*
Store is the SQLite-backed implementation of the consolidation store.
An optional Qdrant index accelerates similarity search; without it,
candidate vectors are scanned in-process.
*/
type Store struct {
	db  *sql.DB
	q   execer
	ann *qdrant.Client
}

type StoreOption func(*Store)

/*
Open opens (or creates) the database at path and applies the schema.
WAL mode keeps readers unblocked during consolidation writes.
*/
func Open(path string, options ...StoreOption) (*Store, error) {
	db, err := sql.Open(
		"sqlite",
		path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)",
	)

	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	store := &Store{db: db, q: db}

	for _, option := range options {
		option(store)
	}

	return store, nil
}

// WithANNIndex attaches a Qdrant index for approximate similarity search.
func WithANNIndex(client *qdrant.Client) StoreOption {
	return func(store *Store) {
		store.ann = client
	}
}

// Close closes the underlying database.
func (store *Store) Close() error {
	return store.db.Close()
}

/*
WithTx runs fn against a transaction-bound view of the store. The
transaction commits when fn returns nil and rolls back otherwise.
Nesting is not supported; a store already inside a transaction runs fn
directly.
*/
func (store *Store) WithTx(
	ctx context.Context, fn func(consolidation.Store) error,
) error {
	if _, nested := store.q.(*sql.Tx); nested {
		return fn(store)
	}

	tx, err := store.db.BeginTx(ctx, nil)

	if err != nil {
		return err
	}

	bound := &Store{db: store.db, q: tx, ann: store.ann}

	if err := fn(bound); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error("failed to roll back transaction", "error", rbErr)
		}

		return err
	}

	return tx.Commit()
}

// wrapConstraint converts a driver uniqueness violation into a typed
// constraint error callers can branch on.
func wrapConstraint(table, key string, err error) error {
	if err == nil {
		return nil
	}

	if strings.Contains(strings.ToLower(err.Error()), "constraint") {
		return errors.NewConstraint(table, key, err)
	}

	return err
}
