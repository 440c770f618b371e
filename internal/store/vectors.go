package store

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// VectorRecord is the stored embedding of one document. A document has
// at most one vector; Model names the space it lives in.
type VectorRecord struct {
	DocumentID string
	Embedding  []float64
	Model      string
	Dimensions int
	CreatedAt  int64
}

const vectorColumns = "document_id, embedding, model, dimensions, created_at"

// Embeddings are stored as little-endian float64 BLOBs.
func encodeEmbedding(vec []float64) []byte {
	buf := make([]byte, 0, len(vec)*8)
	for _, v := range vec {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float64 {
	vec := make([]float64, len(buf)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

func scanVector(row interface{ Scan(...any) error }) (VectorRecord, error) {
	var (
		v    VectorRecord
		blob []byte
	)
	if err := row.Scan(&v.DocumentID, &blob, &v.Model, &v.Dimensions, &v.CreatedAt); err != nil {
		return v, err
	}
	v.Embedding = decodeEmbedding(blob)
	return v, nil
}

// SaveVector stores the embedding of a document, replacing any previous
// one whatever its model.
func (db *DB) SaveVector(documentID string, embedding []float64, model string) error {
	_, err := db.Exec(`
		INSERT INTO document_vectors (`+vectorColumns+`)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			embedding  = excluded.embedding,
			model      = excluded.model,
			dimensions = excluded.dimensions,
			created_at = excluded.created_at
	`, documentID, encodeEmbedding(embedding), model, len(embedding), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save vector %s: %w", documentID, err)
	}
	return nil
}

// GetVector returns the embedding of a document, or nil when it has none.
func (db *DB) GetVector(documentID string) (*VectorRecord, error) {
	v, err := scanVector(db.QueryRow(
		"SELECT "+vectorColumns+" FROM document_vectors WHERE document_id = ?", documentID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vector %s: %w", documentID, err)
	}
	return &v, nil
}

// AllVectors returns the vectors of model ordered by document id, or
// every vector when model is empty. Vectors of different models must
// never be compared.
func (db *DB) AllVectors(model string) ([]VectorRecord, error) {
	rows, err := db.Query(
		"SELECT "+vectorColumns+" FROM document_vectors WHERE ? = '' OR model = ? ORDER BY document_id",
		model, model,
	)
	if err != nil {
		return nil, fmt.Errorf("all vectors: %w", err)
	}
	defer rows.Close()

	var out []VectorRecord
	for rows.Next() {
		v, err := scanVector(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DeleteVector drops the embedding of a document.
func (db *DB) DeleteVector(documentID string) error {
	if _, err := db.Exec("DELETE FROM document_vectors WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("delete vector %s: %w", documentID, err)
	}
	return nil
}
