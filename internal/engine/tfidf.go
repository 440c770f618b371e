package engine

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lazypower/recall/internal/store"
)

// DefaultVocabularySize caps the TF-IDF vocabulary when no size is given.
const DefaultVocabularySize = 512

var vocabularyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("recall:tfidf"))

// vocabulary is an immutable TF-IDF term space.
type vocabulary struct {
	terms []string       // column order
	index map[string]int // term to column
	idf   []float64      // per column
	model string
}

// buildVocabulary keeps the maxTerms terms found in the most texts,
// breaking ties alphabetically so equal corpora give equal spaces.
func buildVocabulary(texts []string, maxTerms int) *vocabulary {
	df := make(map[string]int)
	for _, text := range texts {
		seen := make(map[string]struct{})
		for _, tok := range tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	slices.SortFunc(terms, func(a, b string) int {
		if c := cmp.Compare(df[b], df[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	if len(terms) > maxTerms {
		terms = terms[:maxTerms]
	}

	v := &vocabulary{
		terms: terms,
		index: make(map[string]int, len(terms)),
		idf:   make([]float64, len(terms)),
	}
	n := float64(max(len(texts), 1))
	for i, term := range terms {
		v.index[term] = i
		v.idf[i] = 1 + math.Log(n/float64(df[term]))
	}
	v.model = "tfidf:" + uuid.NewSHA1(vocabularyNamespace, []byte(strings.Join(terms, "\n"))).String()[:8]
	return v
}

// dims is never zero so an empty corpus still yields a usable vector.
func (v *vocabulary) dims() int { return max(len(v.terms), 1) }

func (v *vocabulary) embed(text string) []float64 {
	vec := make([]float64, v.dims())
	counts := make(map[int]int)
	peak := 0
	for _, tok := range tokenize(text) {
		col, ok := v.index[tok]
		if !ok {
			continue
		}
		counts[col]++
		peak = max(peak, counts[col])
	}
	// Augmented term frequency keeps long texts from dominating.
	for col, c := range counts {
		vec[col] = (0.5 + 0.5*float64(c)/float64(peak)) * v.idf[col]
	}
	normalize(vec)
	return vec
}

// TFIDFEmbedder embeds text as a bag of words weighted by inverse
// document frequency. It needs no external service. Its Model names the
// vocabulary, so refitting on a changed corpus invalidates stored vectors.
type TFIDFEmbedder struct {
	maxTerms int

	mu    sync.RWMutex
	vocab *vocabulary
}

// NewTFIDFEmbedder fits a TF-IDF embedder to the documents in db.
func NewTFIDFEmbedder(db *store.DB, maxTerms int) (*TFIDFEmbedder, error) {
	texts, err := documentTexts(db)
	if err != nil {
		return nil, err
	}
	return NewTFIDFEmbedderFromTexts(texts, maxTerms), nil
}

// NewTFIDFEmbedderFromTexts fits a TF-IDF embedder to texts.
func NewTFIDFEmbedderFromTexts(texts []string, maxTerms int) *TFIDFEmbedder {
	if maxTerms <= 0 {
		maxTerms = DefaultVocabularySize
	}
	return &TFIDFEmbedder{maxTerms: maxTerms, vocab: buildVocabulary(texts, maxTerms)}
}

func (t *TFIDFEmbedder) current() *vocabulary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.vocab
}

func (t *TFIDFEmbedder) Model() string   { return t.current().model }
func (t *TFIDFEmbedder) Dimensions() int { return t.current().dims() }

// Terms returns the vocabulary in column order.
func (t *TFIDFEmbedder) Terms() []string { return slices.Clone(t.current().terms) }

func (t *TFIDFEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	return t.current().embed(text), nil
}

// Fit rebuilds the vocabulary from texts and reports whether its terms
// changed. Weights are refreshed either way.
func (t *TFIDFEmbedder) Fit(texts []string) bool {
	next := buildVocabulary(texts, t.maxTerms)
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := next.model != t.vocab.model
	t.vocab = next
	return changed
}

func documentTexts(db *store.DB) ([]string, error) {
	docs, err := db.ListDocuments()
	if err != nil {
		return nil, fmt.Errorf("list documents for tfidf: %w", err)
	}
	texts := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Text != "" {
			texts = append(texts, d.Text)
		}
	}
	return texts, nil
}
