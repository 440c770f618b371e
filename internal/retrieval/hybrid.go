package retrieval

import (
	"context"
	"fmt"
	"math"
)

// HybridRetriever layers a local keyword rerank over a vector retriever.
// It never consults the graph.
type HybridRetriever struct {
	vector Retriever
	rerank bool
}

// NewHybridRetriever wraps vector. With rerank off it is a plain pass-through.
func NewHybridRetriever(vector Retriever, rerank bool) *HybridRetriever {
	return &HybridRetriever{vector: vector, rerank: rerank}
}

// Retrieve asks for twice the candidates when reranking, boosts those whose
// text shares terms with the query, and returns the best topK.
func (h *HybridRetriever) Retrieve(ctx context.Context, query string, topK int, filters Filters) ([]Result, error) {
	if topK <= 0 {
		return []Result{}, nil
	}

	fetch := topK
	if h.rerank {
		fetch = topK * 2
	}
	candidates, err := h.vector.Retrieve(ctx, query, fetch, filters)
	if err != nil {
		return nil, fmt.Errorf("hybrid vector search: %w", err)
	}

	out := cloneAll(candidates)
	if h.rerank {
		queryTerms := termSet(query)
		for i := range out {
			r := &out[i]
			score := r.ScoreOr(0)
			if overlap := keywordOverlap(queryTerms, r.Text); overlap > 0 {
				boost := math.Min(float64(overlap)/float64(len(queryTerms)), 1) * 0.5
				score = score*0.5 + boost
			}
			r.Score = Float(score)
		}
		sortByScore(out)
	}

	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}
