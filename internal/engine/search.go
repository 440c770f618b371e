package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/lazypower/recall/internal/store"
)

// DefaultSearchLimit applies when SearchOpts.Limit is not positive.
const DefaultSearchLimit = 10

// SearchResult is one document matched by Find.
type SearchResult struct {
	Document   store.Document `json:"document"`
	Similarity float64        `json:"similarity"`
}

// SearchOpts narrows Find.
type SearchOpts struct {
	Limit  int
	Filter func(store.Document) bool // nil keeps every document
}

// Find ranks the documents embedded by the embedder's current model by
// cosine similarity to query. Documents scoring zero or below are dropped
// and ties keep document id order.
func Find(ctx context.Context, db *store.DB, embedder Embedder, query string, opts SearchOpts) ([]SearchResult, error) {
	if embedder == nil {
		return nil, errors.New("no embedder configured")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	model := embedder.Model()
	queryVec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	vectors, err := db.AllVectors(model)
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	scored := make([]SearchResult, 0, len(vectors))
	for _, v := range vectors {
		if sim := CosineSimilarity(queryVec, v.Embedding); sim > 0 {
			scored = append(scored, SearchResult{Document: store.Document{ID: v.DocumentID}, Similarity: sim})
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slices.SortStableFunc(scored, func(a, b SearchResult) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})

	ids := make([]string, len(scored))
	for i, r := range scored {
		ids[i] = r.Document.ID
	}
	docs, err := db.GetDocumentsByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("get documents: %w", err)
	}

	results := scored[:0]
	for _, r := range scored {
		doc, ok := docs[r.Document.ID]
		if !ok || (opts.Filter != nil && !opts.Filter(doc)) {
			continue
		}
		r.Document = doc
		results = append(results, r)
		if len(results) == limit {
			break
		}
	}
	return results, nil
}
