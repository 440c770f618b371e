package retrieval

import (
	"context"
	"sort"
)

// Filters narrows a retrieval. Keys are interpreted by each retriever;
// unknown keys are ignored.
type Filters map[string]any

// Retriever is implemented by every retrieval backend and strategy.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, filters Filters) ([]Result, error)
}

// RetrieverFunc adapts a function to the Retriever interface.
type RetrieverFunc func(ctx context.Context, query string, topK int, filters Filters) ([]Result, error)

func (f RetrieverFunc) Retrieve(ctx context.Context, query string, topK int, filters Filters) ([]Result, error) {
	return f(ctx, query, topK, filters)
}

// Source names a retrieval backend that can feed the fusion engine.
type Source string

const (
	SourceVector Source = "vector"
	SourceGraph  Source = "graph"
	SourceWeb    Source = "web"
)

// FusionOrder is the order sources are combined in. Earlier sources win
// first insertion for a shared id; later ones enrich it.
var FusionOrder = []Source{SourceVector, SourceGraph, SourceWeb}

// Registry maps source names to retrievers. It is built explicitly at
// startup and read-only afterwards.
type Registry struct {
	retrievers map[Source]Retriever
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{retrievers: make(map[Source]Retriever)}
}

// Register binds a retriever to a source. A nil retriever removes the binding.
func (r *Registry) Register(src Source, rt Retriever) *Registry {
	if rt == nil {
		delete(r.retrievers, src)
		return r
	}
	r.retrievers[src] = rt
	return r
}

// Get returns the retriever bound to src.
func (r *Registry) Get(src Source) (Retriever, bool) {
	if r == nil {
		return nil, false
	}
	rt, ok := r.retrievers[src]
	return rt, ok
}

// Sources lists the registered sources in sorted order.
func (r *Registry) Sources() []Source {
	if r == nil {
		return nil
	}
	out := make([]Source, 0, len(r.retrievers))
	for src := range r.retrievers {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
