package store

import "fmt"

// migration is one schema step. Versions are applied in slice order and
// never edited once released.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "documents: text units served by vector retrieval",
		SQL: `
CREATE TABLE documents (
    id          TEXT PRIMARY KEY,
    text        TEXT NOT NULL,
    metadata    TEXT NOT NULL DEFAULT '{}',
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);

CREATE INDEX idx_documents_updated ON documents(updated_at DESC);
`,
	},
	{
		Version:     2,
		Description: "document_vectors: embeddings for semantic search",
		SQL: `
CREATE TABLE document_vectors (
    document_id TEXT PRIMARY KEY,
    embedding   BLOB NOT NULL,
    model       TEXT NOT NULL,
    dimensions  INTEGER NOT NULL,
    created_at  INTEGER NOT NULL,
    FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
);
`,
	},
	{
		Version:     3,
		Description: "knowledge graph: entities, observations, relations",
		SQL: `
CREATE TABLE entities (
    id          INTEGER PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    entity_type TEXT NOT NULL,
    created_at  INTEGER NOT NULL
);

CREATE TABLE observations (
    id          INTEGER PRIMARY KEY,
    entity_id   INTEGER NOT NULL,
    text        TEXT NOT NULL,
    created_at  INTEGER NOT NULL,
    UNIQUE (entity_id, text),
    FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE CASCADE
);

CREATE TABLE relations (
    id            INTEGER PRIMARY KEY,
    from_id       INTEGER NOT NULL,
    to_id         INTEGER NOT NULL,
    relation_type TEXT NOT NULL,
    created_at    INTEGER NOT NULL,
    UNIQUE (from_id, to_id, relation_type),
    FOREIGN KEY (from_id) REFERENCES entities(id) ON DELETE CASCADE,
    FOREIGN KEY (to_id)   REFERENCES entities(id) ON DELETE CASCADE
);

CREATE INDEX idx_entities_type     ON entities(entity_type);
CREATE INDEX idx_observations_ent  ON observations(entity_id);
CREATE INDEX idx_relations_from    ON relations(from_id);
CREATE INDEX idx_relations_to      ON relations(to_id);
CREATE INDEX idx_relations_type    ON relations(relation_type);
`,
	},
}

// migrate applies every migration newer than the recorded schema
// version, each in its own transaction.
func (db *DB) migrate() error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`); err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	current, err := db.SchemaVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := db.apply(m); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) apply(m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_versions (version, description) VALUES (?, ?)", m.Version, m.Description,
	); err != nil {
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}
	return tx.Commit()
}

// SchemaVersion returns the highest applied migration, or 0.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
