package retrieval

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Mode selects which strategy serves a pipeline call.
type Mode string

const (
	ModeVector Mode = "vector"
	ModeGraph  Mode = "graph"
	ModeHybrid Mode = "hybrid" // vector plus local keyword rerank, no graph
	ModeFusion Mode = "fusion"
)

// Modes lists every mode the pipeline understands.
var Modes = []Mode{ModeVector, ModeGraph, ModeHybrid, ModeFusion}

// ParseMode maps s onto a known mode. Unknown or empty values fall back to
// fusion rather than failing.
func ParseMode(s string) Mode {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if m.Known() {
		return m
	}
	return ModeFusion
}

// Known reports whether m is one of Modes.
func (m Mode) Known() bool {
	for _, k := range Modes {
		if m == k {
			return true
		}
	}
	return false
}

// Default result counts.
const (
	DefaultTopK       = 5
	DefaultEnrichTopK = 3
)

const relevantHeader = "Relevant information:\n"

// PipelineConfig is read at call time and never written after construction.
type PipelineConfig struct {
	DefaultMode Mode
	DefaultTopK int
	EnrichTopK  int
}

// DefaultPipelineConfig returns fusion mode with five results per call.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		DefaultMode: ModeFusion,
		DefaultTopK: DefaultTopK,
		EnrichTopK:  DefaultEnrichTopK,
	}
}

// Strategies holds one constructor per mode. Each is called at most once,
// the first time its mode is used. A nil constructor leaves that mode
// unavailable.
type Strategies struct {
	Vector func() (Retriever, error)
	Graph  func() (Retriever, error)
	Hybrid func() (Retriever, error)
	Fusion func() (Retriever, error)
}

type lazyStrategy struct {
	once  sync.Once
	build func() (Retriever, error)
	rt    Retriever
	err   error
}

func (l *lazyStrategy) get(mode Mode) (Retriever, error) {
	l.once.Do(func() {
		if l.build == nil {
			l.err = fmt.Errorf("%s retrieval is not configured", mode)
			return
		}
		l.rt, l.err = l.build()
		if l.err == nil && l.rt == nil {
			l.err = fmt.Errorf("%s retrieval constructor returned nothing", mode)
		}
	})
	return l.rt, l.err
}

// Request is one pipeline call. An empty Mode uses the configured default
// and a nil TopK the default count. An explicit TopK is honored as given,
// so zero asks for no results; negative counts are treated as zero.
type Request struct {
	Query   string
	TopK    *int
	Filters Filters
	Mode    Mode
}

// Int returns a pointer to n, for building requests inline.
func Int(n int) *int { return &n }

func countOr(n *int, def int) int {
	if n == nil {
		return def
	}
	return max(*n, 0)
}

// Response is the envelope every pipeline caller receives. Error is set
// only when the call failed, in which case Count is 0 and Results is empty.
type Response struct {
	Query   string   `json:"query"`
	Mode    Mode     `json:"mode"`
	Count   int      `json:"count"`
	Results []Result `json:"results"`
	Error   string   `json:"error,omitempty"`
}

// Failed reports whether the envelope carries an error.
func (r Response) Failed() bool { return r.Error != "" }

// Enrichment is the result of EnrichContext.
type Enrichment struct {
	Query           string  `json:"query"`
	OriginalContext *string `json:"original_context"`
	EnrichedContext string  `json:"enriched_context"`
	SourcesCount    int     `json:"sources_count"`
	Error           string  `json:"error,omitempty"`
}

// Pipeline routes retrieval calls to the strategy for the requested mode and
// wraps the outcome in a Response. It holds no per-call mutable state, so
// concurrent callers with different modes never interfere.
type Pipeline struct {
	cfg        PipelineConfig
	strategies map[Mode]*lazyStrategy
	logger     *slog.Logger
}

// NewPipeline builds a pipeline. Strategy constructors are not invoked here.
func NewPipeline(cfg PipelineConfig, s Strategies, logger *slog.Logger) *Pipeline {
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = ModeFusion
	}
	cfg.DefaultMode = ParseMode(string(cfg.DefaultMode))
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	if cfg.EnrichTopK <= 0 {
		cfg.EnrichTopK = DefaultEnrichTopK
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{
		cfg: cfg,
		strategies: map[Mode]*lazyStrategy{
			ModeVector: {build: s.Vector},
			ModeGraph:  {build: s.Graph},
			ModeHybrid: {build: s.Hybrid},
			ModeFusion: {build: s.Fusion},
		},
		logger: logger.With("component", "pipeline"),
	}
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() PipelineConfig { return p.cfg }

// Modes returns the modes that have a strategy constructor, in Modes order.
func (p *Pipeline) Modes() []Mode {
	out := make([]Mode, 0, len(Modes))
	for _, m := range Modes {
		if p.strategies[m].build != nil {
			out = append(out, m)
		}
	}
	return out
}

// Retrieve runs req through the strategy for its mode. It never panics or
// returns an error; failures are reported in the envelope.
func (p *Pipeline) Retrieve(ctx context.Context, req Request) (resp Response) {
	mode := p.cfg.DefaultMode
	if req.Mode != "" {
		mode = ParseMode(string(req.Mode))
	}
	topK := countOr(req.TopK, p.cfg.DefaultTopK)

	resp = Response{Query: req.Query, Mode: mode, Results: []Result{}}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("retrieval panicked", "mode", mode, "query", req.Query, "panic", r)
			resp.Count = 0
			resp.Results = []Result{}
			resp.Error = fmt.Sprintf("%s retrieval panicked: %v", mode, r)
		}
	}()

	rt, err := p.strategies[mode].get(mode)
	if err != nil {
		p.logger.Error("retrieval strategy unavailable", "mode", mode, "err", err)
		resp.Error = err.Error()
		return resp
	}

	if topK == 0 {
		return resp
	}

	p.logger.Info("retrieving", "mode", mode, "query", req.Query, "top_k", topK)
	results, err := rt.Retrieve(ctx, req.Query, topK, req.Filters)
	if err != nil {
		p.logger.Error("retrieval failed", "mode", mode, "query", req.Query, "err", err)
		resp.Error = err.Error()
		return resp
	}
	if results == nil {
		results = []Result{}
	}
	if len(results) > topK {
		results = results[:topK]
	}
	resp.Results = results
	resp.Count = len(results)
	return resp
}

// SearchHybrid is Retrieve forced to fusion mode.
func (p *Pipeline) SearchHybrid(ctx context.Context, query string, topK *int, filters Filters) Response {
	return p.Retrieve(ctx, Request{Query: query, TopK: topK, Filters: filters, Mode: ModeFusion})
}

// EnrichContext runs a fusion retrieval and appends the result texts, under
// a "Relevant information:" header, to the existing context. A nil topK
// uses the configured enrichment count.
func (p *Pipeline) EnrichContext(ctx context.Context, query string, existing *string, topK *int) Enrichment {
	if topK == nil {
		topK = Int(p.cfg.EnrichTopK)
	}
	out := Enrichment{Query: query, OriginalContext: existing}
	if existing != nil {
		out.EnrichedContext = *existing
	}

	resp := p.Retrieve(ctx, Request{Query: query, TopK: topK, Mode: ModeFusion})
	if resp.Failed() {
		p.logger.Error("enrich context", "query", query, "err", resp.Error)
		out.Error = resp.Error
		return out
	}

	texts := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		texts = append(texts, r.Text)
	}
	if len(texts) > 0 {
		if out.EnrichedContext != "" {
			out.EnrichedContext += "\n\n" + relevantHeader
		} else {
			out.EnrichedContext = relevantHeader
		}
		out.EnrichedContext += strings.Join(texts, "\n\n")
	}
	out.SourcesCount = len(texts)
	return out
}
