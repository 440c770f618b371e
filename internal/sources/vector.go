package sources

import (
	"context"
	"fmt"

	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/retrieval"
	"github.com/lazypower/recall/internal/store"
)

// VectorRetriever serves semantic search over stored document vectors.
type VectorRetriever struct {
	db       *store.DB
	embedder engine.Embedder
}

// NewVectorRetriever creates a vector source.
func NewVectorRetriever(db *store.DB, embedder engine.Embedder) (*VectorRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("vector retrieval needs an embedder")
	}
	return &VectorRetriever{db: db, embedder: embedder}, nil
}

// Retrieve returns the topK documents most similar to query that match filters.
func (v *VectorRetriever) Retrieve(ctx context.Context, query string, topK int, filters retrieval.Filters) ([]retrieval.Result, error) {
	if topK <= 0 {
		return []retrieval.Result{}, nil
	}

	opts := engine.SearchOpts{Limit: topK}
	if len(filters) > 0 {
		opts.Filter = func(d store.Document) bool { return matchMetadata(d.Metadata, filters) }
	}

	found, err := engine.Find(ctx, v.db, v.embedder, query, opts)
	if err != nil {
		return nil, err
	}

	results := make([]retrieval.Result, 0, len(found))
	for _, f := range found {
		results = append(results, retrieval.Result{
			ID:       f.Document.ID,
			Text:     f.Document.Text,
			Score:    retrieval.Float(f.Similarity),
			Metadata: f.Document.Metadata,
		})
	}
	return results, nil
}
