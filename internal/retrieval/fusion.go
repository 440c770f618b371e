package retrieval

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// FusionConfig controls a FusionEngine. It is fixed for the life of the engine.
type FusionConfig struct {
	VectorWeight   float64
	GraphWeight    float64
	WebWeight      float64
	TopKMultiplier int  // candidate pool multiplier when reranking
	Reranking      bool // apply Rerank after weighted combination
	SourceTimeout  time.Duration
}

// DefaultFusionConfig returns the weights and pool size the pipeline uses
// when nothing is configured.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		VectorWeight:   0.4,
		GraphWeight:    0.4,
		WebWeight:      0.2,
		TopKMultiplier: 3,
		Reranking:      true,
		SourceTimeout:  10 * time.Second,
	}
}

// Weights returns the per-source weight table.
func (c FusionConfig) Weights() map[Source]float64 {
	return map[Source]float64{
		SourceVector: c.VectorWeight,
		SourceGraph:  c.GraphWeight,
		SourceWeb:    c.WebWeight,
	}
}

func (c FusionConfig) validate() error {
	for src, w := range c.Weights() {
		if w < 0 {
			return fmt.Errorf("%s weight %v is negative", src, w)
		}
	}
	if c.TopKMultiplier < 1 {
		return fmt.Errorf("top_k_multiplier %d must be at least 1", c.TopKMultiplier)
	}
	if c.SourceTimeout < 0 {
		return fmt.Errorf("source timeout %v is negative", c.SourceTimeout)
	}
	return nil
}

// SourceOutcome is what one source produced for one fusion call. A non-nil
// Err means the source contributed nothing.
type SourceOutcome struct {
	Source  Source
	Results []Result
	Err     error
	Elapsed time.Duration
}

// FusionEngine queries every weighted source concurrently and merges their
// results into one deduplicated, weighted, optionally reranked list.
type FusionEngine struct {
	cfg      FusionConfig
	registry *Registry
	logger   *slog.Logger
}

// NewFusionEngine validates cfg and binds the engine to the sources in reg.
func NewFusionEngine(cfg FusionConfig, reg *Registry, logger *slog.Logger) (*FusionEngine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("fusion config: %w", err)
	}
	if reg == nil {
		reg = NewRegistry()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FusionEngine{cfg: cfg, registry: reg, logger: logger.With("component", "fusion")}, nil
}

// Config returns the engine configuration.
func (e *FusionEngine) Config() FusionConfig { return e.cfg }

// ActiveSources returns, in fusion order, the sources that have a positive
// weight and a registered retriever. Only these are ever called.
func (e *FusionEngine) ActiveSources() []Source {
	weights := e.cfg.Weights()
	var out []Source
	for _, src := range FusionOrder {
		if weights[src] <= 0 {
			continue
		}
		if _, ok := e.registry.Get(src); !ok {
			continue
		}
		out = append(out, src)
	}
	return out
}

// Retrieve runs a fusion query. It never fails: source errors are logged and
// dropped, so the returned error is always nil.
func (e *FusionEngine) Retrieve(ctx context.Context, query string, topK int, filters Filters) ([]Result, error) {
	if topK <= 0 {
		return []Result{}, nil
	}

	initialTopK := topK
	if e.cfg.Reranking {
		initialTopK = topK * e.cfg.TopKMultiplier
	}

	outcomes := e.Gather(ctx, query, initialTopK, filters)
	results := Combine(query, outcomes, e.cfg.Weights(), e.cfg.Reranking, topK)

	e.logger.Info("fusion retrieval", "query", query, "sources", len(outcomes), "results", len(results))
	return results, nil
}

// Gather fans out to every active source and waits for all of them. The
// outcomes come back in fusion order regardless of completion order.
func (e *FusionEngine) Gather(ctx context.Context, query string, topK int, filters Filters) []SourceOutcome {
	active := e.ActiveSources()
	outcomes := make([]SourceOutcome, len(active))

	g, gCtx := errgroup.WithContext(ctx)
	for i, src := range active {
		rt, _ := e.registry.Get(src)
		g.Go(func() error {
			// Each goroutine owns its slot; errors stay in the outcome so one
			// source never cancels the others.
			outcomes[i] = e.callSource(gCtx, src, rt, query, topK, filters)
			return nil
		})
	}
	_ = g.Wait()

	for i := range outcomes {
		o := &outcomes[i]
		if o.Err != nil {
			e.logger.Warn("source failed", "source", o.Source, "query", query, "elapsed", o.Elapsed, "err", o.Err)
			continue
		}
		o.Results = e.validResults(o.Source, o.Results)
		e.logger.Debug("source done", "source", o.Source, "results", len(o.Results), "elapsed", o.Elapsed)
	}
	return outcomes
}

type sourceReply struct {
	results []Result
	err     error
}

func (e *FusionEngine) callSource(ctx context.Context, src Source, rt Retriever, query string, topK int, filters Filters) SourceOutcome {
	start := time.Now()
	if e.cfg.SourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.SourceTimeout)
		defer cancel()
	}

	ch := make(chan sourceReply, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- sourceReply{err: fmt.Errorf("%s retriever panicked: %v", src, p)}
			}
		}()
		results, err := rt.Retrieve(ctx, query, topK, filters)
		ch <- sourceReply{results: results, err: err}
	}()

	out := SourceOutcome{Source: src}
	select {
	case rep := <-ch:
		out.Results, out.Err = rep.results, rep.err
	case <-ctx.Done():
		out.Err = fmt.Errorf("%s retriever: %w", src, ctx.Err())
	}
	if out.Err != nil {
		out.Results = nil
	}
	out.Elapsed = time.Since(start)
	return out
}

func (e *FusionEngine) validResults(src Source, in []Result) []Result {
	out := in[:0:0]
	for _, r := range in {
		if err := r.Validate(); err != nil {
			e.logger.Warn("dropping result", "source", src, "err", err)
			continue
		}
		out = append(out, r)
	}
	return out
}

// Combine merges per-source results into one list keyed by result id.
// Sources are folded in FusionOrder; failed outcomes are skipped. Inputs are
// never modified, so identical inputs always give identical output.
func Combine(query string, outcomes []SourceOutcome, weights map[Source]float64, reranking bool, topK int) []Result {
	if topK <= 0 {
		return []Result{}
	}

	index := make(map[string]int)
	combined := []Result{}

	for _, src := range FusionOrder {
		w := weights[src]
		for _, o := range outcomes {
			if o.Source != src || o.Err != nil {
				continue
			}
			for _, r := range o.Results {
				contribution := r.ScoreOr(DefaultScore) * w

				i, seen := index[r.ID]
				if !seen {
					c := r.clone()
					c.Score = Float(contribution)
					c.Metadata[MetaSources] = []string{string(src)}
					index[r.ID] = len(combined)
					combined = append(combined, c)
					continue
				}

				existing := &combined[i]
				existing.Score = Float(existing.ScoreOr(0) + contribution)
				existing.Metadata[MetaSources] = appendSource(existing.Sources(), src)
				if src == SourceGraph {
					existing.Text = appendRelation(existing.Text, r.Metadata)
				}
			}
		}
	}

	sortByScore(combined)
	if reranking {
		combined = Rerank(query, combined)
	}
	if len(combined) > topK {
		combined = combined[:topK]
	}
	return combined
}

func appendSource(sources []string, src Source) []string {
	for _, s := range sources {
		if s == string(src) {
			return sources
		}
	}
	out := make([]string, 0, len(sources)+1)
	out = append(out, sources...)
	return append(out, string(src))
}

// appendRelation adds the graph relation summary to text once.
func appendRelation(text string, meta map[string]any) string {
	source, ok := meta["source_entity"]
	if !ok {
		return text
	}
	relation, ok := meta["relation"]
	if !ok {
		return text
	}
	target := meta["target_entity"]
	if target == nil {
		target = ""
	}

	line := fmt.Sprintf("\nRelated: %v --%v--> %v", source, relation, target)
	if strings.Contains(text, line) {
		return text
	}
	return text + line
}

// sortByScore orders results by descending score, absent scores last-equal
// to zero. The sort is stable so ties keep insertion order.
func sortByScore(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ScoreOr(0) > results[j].ScoreOr(0)
	})
}
