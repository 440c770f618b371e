package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/lazypower/recall/internal/retrieval"
	"github.com/lazypower/recall/internal/store"
)

const maxObservationsPerEntity = 3

var keywordStopwords = map[string]bool{
	"what": true, "who": true, "when": true, "where": true, "how": true,
	"related": true, "connection": true,
}

// GraphRetriever answers queries from knowledge-graph relation triples.
type GraphRetriever struct {
	db *store.DB
}

// NewGraphRetriever creates a graph source.
func NewGraphRetriever(db *store.DB) *GraphRetriever {
	return &GraphRetriever{db: db}
}

// Retrieve selects up to topK triples for query and renders each as a result.
func (g *GraphRetriever) Retrieve(ctx context.Context, query string, topK int, filters retrieval.Filters) ([]retrieval.Result, error) {
	if topK <= 0 {
		return []retrieval.Result{}, nil
	}

	q := tripleQuery(query)
	q.Limit = topK
	q.EntityTypes = stringList(filters[FilterEntityTypes])
	q.RelationTypes = intersect(q.RelationTypes, stringList(filters[FilterRelationTypes]))
	if q.RelationTypes != nil && len(q.RelationTypes) == 0 {
		return []retrieval.Result{}, nil
	}

	triples, err := g.db.FindTriples(q)
	if err != nil {
		return nil, err
	}

	results := make([]retrieval.Result, 0, len(triples))
	for _, t := range triples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := g.render(t)
		if err != nil {
			return nil, err
		}
		results = append(results, retrieval.Result{
			ID:    fmt.Sprintf("%d-%d-%d", t.Source.ID, t.RelationID, t.Target.ID),
			Text:  text,
			Score: retrieval.Float(1.0),
			Metadata: map[string]any{
				"source_entity": t.Source.Name,
				"source_type":   t.Source.EntityType,
				"relation":      t.RelationType,
				"target_entity": t.Target.Name,
				"target_type":   t.Target.EntityType,
			},
		})
	}
	return results, nil
}

func (g *GraphRetriever) render(t store.Triple) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s --%s--> %s", t.Source.Name, t.RelationType, t.Target.Name)

	for _, end := range []struct {
		label  string
		entity store.Entity
	}{{"Source", t.Source}, {"Target", t.Target}} {
		obs, err := g.db.EntityObservations(end.entity.ID, maxObservationsPerEntity)
		if err != nil {
			return "", err
		}
		if len(obs) > 0 {
			fmt.Fprintf(&b, "\n%s (%s): %s", end.label, end.entity.Name, strings.Join(obs, "; "))
		}
	}
	return b.String(), nil
}

// tripleQuery picks the triple selection for a natural-language query.
func tripleQuery(query string) store.TripleQuery {
	lower := strings.ToLower(query)
	switch {
	case strings.Contains(lower, "implement") || strings.Contains(lower, "build"):
		return store.TripleQuery{RelationTypes: []string{"implements", "uses_framework"}}
	case strings.Contains(lower, "related") || strings.Contains(lower, "connection"):
		return store.TripleQuery{NameContains: relatedKeyword(lower)}
	default:
		return store.TripleQuery{NameContains: query}
	}
}

// relatedKeyword returns the first token longer than three characters
// that is not a question word, or "" to match everything.
func relatedKeyword(lower string) string {
	for _, tok := range strings.Fields(lower) {
		if len(tok) > 3 && !keywordStopwords[tok] {
			return tok
		}
	}
	return ""
}

// intersect narrows base by filter. A nil base accepts the filter as is;
// a nil filter leaves base unchanged.
func intersect(base, filter []string) []string {
	if len(filter) == 0 {
		return base
	}
	if base == nil {
		return filter
	}
	allowed := make(map[string]bool, len(filter))
	for _, f := range filter {
		allowed[f] = true
	}
	out := []string{}
	for _, b := range base {
		if allowed[b] {
			out = append(out, b)
		}
	}
	return out
}
