package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Document is a unit of text served by vector retrieval.
type Document struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt int64          `json:"created_at"`
	UpdatedAt int64          `json:"updated_at"`
}

func encodeMetadata(meta map[string]any) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(raw string) map[string]any {
	meta := map[string]any{}
	if raw == "" {
		return meta
	}
	// Rows are only ever written by encodeMetadata.
	_ = json.Unmarshal([]byte(raw), &meta)
	return meta
}

// UpsertDocument inserts doc or replaces the text and metadata of the
// document with the same id. It reports whether a new row was created.
// A document whose text changed loses its stale vector.
func (db *DB) UpsertDocument(doc *Document) (bool, error) {
	if doc.ID == "" {
		return false, fmt.Errorf("upsert document: empty id")
	}
	meta, err := encodeMetadata(doc.Metadata)
	if err != nil {
		return false, err
	}

	existing, err := db.GetDocument(doc.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, err
	}

	now := time.Now().UnixMilli()
	if existing == nil {
		_, err := db.Exec(`
			INSERT INTO documents (id, text, metadata, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, doc.ID, doc.Text, meta, now, now)
		if err != nil {
			return false, fmt.Errorf("insert document: %w", err)
		}
		doc.CreatedAt, doc.UpdatedAt = now, now
		return true, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin update document: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE documents SET text = ?, metadata = ?, updated_at = ? WHERE id = ?`,
		doc.Text, meta, now, doc.ID); err != nil {
		return false, fmt.Errorf("update document: %w", err)
	}
	if existing.Text != doc.Text {
		if _, err := tx.Exec(`DELETE FROM document_vectors WHERE document_id = ?`, doc.ID); err != nil {
			return false, fmt.Errorf("drop stale vector: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit document: %w", err)
	}
	doc.CreatedAt, doc.UpdatedAt = existing.CreatedAt, now
	return false, nil
}

// GetDocument returns the document with id, or ErrNotFound.
func (db *DB) GetDocument(id string) (*Document, error) {
	var d Document
	var meta string
	err := db.QueryRow(`
		SELECT id, text, metadata, created_at, updated_at FROM documents WHERE id = ?
	`, id).Scan(&d.ID, &d.Text, &meta, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	d.Metadata = decodeMetadata(meta)
	return &d, nil
}

// GetDocumentsByIDs returns the documents with the given ids, keyed by id.
// Unknown ids are skipped.
func (db *DB) GetDocumentsByIDs(ids []string) (map[string]Document, error) {
	out := make(map[string]Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := placeholderList(len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := db.Query(`
		SELECT id, text, metadata, created_at, updated_at FROM documents
		WHERE id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("get documents: %w", err)
	}
	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		out[d.ID] = d
	}
	return out, nil
}

// ListDocuments returns every document, oldest first.
func (db *DB) ListDocuments() ([]Document, error) {
	rows, err := db.Query(`
		SELECT id, text, metadata, created_at, updated_at FROM documents
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return scanDocuments(rows)
}

// DocumentsMissingVector returns documents with no vector from model.
func (db *DB) DocumentsMissingVector(model string) ([]Document, error) {
	rows, err := db.Query(`
		SELECT d.id, d.text, d.metadata, d.created_at, d.updated_at
		FROM documents d
		LEFT JOIN document_vectors v ON v.document_id = d.id AND v.model = ?
		WHERE v.document_id IS NULL
		ORDER BY d.created_at, d.id
	`, model)
	if err != nil {
		return nil, fmt.Errorf("documents missing vector: %w", err)
	}
	return scanDocuments(rows)
}

// FindNearIdentical returns an existing document whose text is
// near-identical to text, or nil.
func (db *DB) FindNearIdentical(text string) (*Document, error) {
	docs, err := db.ListDocuments()
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if textNearIdentical(docs[i].Text, text) {
			return &docs[i], nil
		}
	}
	return nil, nil
}

// DeleteDocument removes a document and its vector.
func (db *DB) DeleteDocument(id string) error {
	res, err := db.Exec("DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	return nil
}

// CountDocuments returns the number of stored documents.
func (db *DB) CountDocuments() (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&n)
	return n, err
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		var d Document
		var meta string
		if err := rows.Scan(&d.ID, &d.Text, &meta, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.Metadata = decodeMetadata(meta)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
