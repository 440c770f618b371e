package retrieval

import (
	"context"
	"sync"
	"time"
)

// fakeRetriever is a scripted Retriever that records how it was called.
type fakeRetriever struct {
	mu      sync.Mutex
	results []Result
	err     error
	delay   time.Duration
	panics  string

	calls       int
	lastTopK    int
	lastFilters Filters
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, topK int, filters Filters) ([]Result, error) {
	f.mu.Lock()
	f.calls++
	f.lastTopK = topK
	f.lastFilters = filters
	f.mu.Unlock()

	if f.panics != "" {
		panic(f.panics)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeRetriever) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRetriever) topK() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTopK
}

func res(id, text string, score *float64) Result {
	return Result{ID: id, Text: text, Score: score, Metadata: map[string]any{}}
}

func noRerank(vector, graph, web float64) FusionConfig {
	return FusionConfig{
		VectorWeight:   vector,
		GraphWeight:    graph,
		WebWeight:      web,
		TopKMultiplier: 3,
		Reranking:      false,
	}
}
