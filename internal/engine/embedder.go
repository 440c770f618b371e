package engine

import (
	"context"
	"math"
	"strings"
	"unicode"
)

// Embedder turns text into a vector. Vectors from different Model
// values are not comparable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
	Dimensions() int
}

// Fitter is an Embedder whose vector space is derived from the corpus.
// Fit reports whether the space changed, which also changes Model.
type Fitter interface {
	Fit(texts []string) bool
}

// tokenize lowercases text and splits it on anything that is not an
// ASCII letter, digit, hyphen or underscore. One-rune tokens are dropped.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isTermRune(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func isTermRune(r rune) bool {
	if r > unicode.MaxASCII {
		return false
	}
	return r == '-' || r == '_' || ('a' <= r && r <= 'z') || ('0' <= r && r <= '9')
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// normalize scales vec to unit length in place. A zero vector is left alone.
func normalize(vec []float64) {
	n := math.Sqrt(dot(vec, vec))
	if n == 0 {
		return
	}
	for i := range vec {
		vec[i] /= n
	}
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when their lengths differ or either has zero magnitude.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	denom := math.Sqrt(dot(a, a) * dot(b, b))
	if denom == 0 {
		return 0
	}
	return dot(a, b) / denom
}
