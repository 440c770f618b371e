package retrieval

import (
	"errors"
	"fmt"
	"math"
)

// DefaultScore stands in for an absent score wherever arithmetic needs one.
const DefaultScore = 0.5

// MetaSources is the metadata key listing which sources confirmed a result.
const MetaSources = "sources"

// ErrInvalidResult marks a result a source should never have produced.
var ErrInvalidResult = errors.New("invalid retrieval result")

// Result is a scored, sourced unit of retrieved text. It is the common
// currency between every retriever, the fusion engine and the pipeline.
type Result struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Score    *float64       `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// Float returns a pointer to v, for building scores inline.
func Float(v float64) *float64 { return &v }

// ScoreOr returns the score, or def when the score is absent.
func (r Result) ScoreOr(def float64) float64 {
	if r.Score == nil {
		return def
	}
	return *r.Score
}

// Sources returns the ordered source names recorded in metadata.
func (r Result) Sources() []string {
	switch v := r.Metadata[MetaSources].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// Validate checks the fields combination depends on.
func (r Result) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidResult)
	}
	if r.Score != nil && (math.IsNaN(*r.Score) || math.IsInf(*r.Score, 0)) {
		return fmt.Errorf("%w: %s has non-finite score %v", ErrInvalidResult, r.ID, *r.Score)
	}
	return nil
}

// clone deep-copies the metadata map and the score so merges never touch
// the caller's values.
func (r Result) clone() Result {
	out := Result{ID: r.ID, Text: r.Text}
	if r.Score != nil {
		out.Score = Float(*r.Score)
	}
	out.Metadata = make(map[string]any, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		out.Metadata[k] = v
	}
	if src := r.Sources(); src != nil {
		out.Metadata[MetaSources] = append([]string(nil), src...)
	}
	return out
}

// cloneAll copies a result slice; a nil input yields an empty slice.
func cloneAll(in []Result) []Result {
	out := make([]Result, len(in))
	for i, r := range in {
		out[i] = r.clone()
	}
	return out
}
