package sources

import (
	"fmt"

	"github.com/lazypower/recall/internal/retrieval"
)

// Filter keys understood only by the graph source.
const (
	FilterEntityTypes   = "entity_types"
	FilterRelationTypes = "relation_types"
)

func graphOnly(key string) bool {
	return key == FilterEntityTypes || key == FilterRelationTypes
}

// stringList reads a filter value as a list of strings. A single string
// becomes a one-element list; JSON arrays arrive as []any.
func stringList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprint(e))
		}
		return out
	default:
		return []string{fmt.Sprint(t)}
	}
}

// matchMetadata reports whether meta satisfies every non-graph filter.
// Values compare by their printed form; a list filter matches any member.
func matchMetadata(meta map[string]any, filters retrieval.Filters) bool {
	for key, want := range filters {
		if graphOnly(key) {
			continue
		}
		got, ok := meta[key]
		if !ok {
			return false
		}
		gotStr := fmt.Sprint(got)
		matched := false
		for _, w := range stringList(want) {
			if w == gotStr {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}
