package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/logging"
	"github.com/lazypower/recall/internal/retrieval"
	"github.com/lazypower/recall/internal/sources"
	"github.com/lazypower/recall/internal/store"
)

const defaultOllamaModel = "nomic-embed-text"

// app is the wired object graph shared by the commands that run locally.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *store.DB
	engine   *engine.Engine
	pipeline *retrieval.Pipeline
}

// loadConfig resolves the config file, environment and global flags, in
// increasing precedence, and builds the logger.
func loadConfig() (config.Config, *slog.Logger, error) {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return config.Config{}, nil, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	cfg.ApplyEnv()
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}

	// Logs always go to stderr; stdout carries results and the MCP stream.
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

// newApp opens the database and wires embedder, sources, fusion engine
// and pipeline from cfg.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	emb, err := newEmbedder(ctx, cfg.Embedding, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	pipeline, err := newPipeline(cfg, db, emb, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		engine:   engine.New(db, emb, logger),
		pipeline: pipeline,
	}, nil
}

// setup is loadConfig followed by newApp.
func setup(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, logger)
}

// Close stops background work and closes the database.
func (a *app) Close() {
	a.engine.Stop()
	a.db.Close()
}

// newEmbedder picks the configured provider. "auto" probes Ollama and falls
// back to TF-IDF over the stored documents.
func newEmbedder(ctx context.Context, cfg config.EmbeddingConfig, db *store.DB, logger *slog.Logger) (engine.Embedder, error) {
	var inner engine.Embedder
	model := cfg.Model

	switch cfg.Provider {
	case "openai":
		inner = engine.NewOpenAIEmbedder(cfg.OpenAIKey, cfg.OpenAIURL, model, cfg.Dimensions)
	case "ollama":
		if model == "" {
			model = defaultOllamaModel
		}
		inner = engine.NewOllamaEmbedder(cfg.OllamaURL, model, cfg.Dimensions)
	case "tfidf":
	default:
		if model == "" {
			model = defaultOllamaModel
		}
		if engine.ProbeOllama(ctx, cfg.OllamaURL, model) {
			inner = engine.NewOllamaEmbedder(cfg.OllamaURL, model, cfg.Dimensions)
		}
	}

	if inner == nil {
		tfidf, err := engine.NewTFIDFEmbedder(db, engine.DefaultVocabularySize)
		if err != nil {
			return nil, fmt.Errorf("tfidf embedder: %w", err)
		}
		inner = tfidf
	}
	logger.Info("embedder ready", "model", inner.Model())

	cached, err := engine.NewCachedEmbedder(inner, cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return cached, nil
}

// newPipeline builds one lazily constructed strategy per mode. The fusion
// registry only carries the web source when it has credentials.
func newPipeline(cfg config.Config, db *store.DB, emb engine.Embedder, logger *slog.Logger) (*retrieval.Pipeline, error) {
	fusionCfg, err := cfg.FusionConfig()
	if err != nil {
		return nil, err
	}
	webTimeout, err := cfg.WebTimeout()
	if err != nil {
		return nil, err
	}

	vector := func() (retrieval.Retriever, error) {
		return sources.NewVectorRetriever(db, emb)
	}
	graph := func() (retrieval.Retriever, error) {
		return sources.NewGraphRetriever(db), nil
	}

	strategies := retrieval.Strategies{
		Vector: vector,
		Graph:  graph,
		Hybrid: func() (retrieval.Retriever, error) {
			v, err := vector()
			if err != nil {
				return nil, err
			}
			return retrieval.NewHybridRetriever(v, cfg.Pipeline.HybridRerank), nil
		},
		Fusion: func() (retrieval.Retriever, error) {
			v, err := vector()
			if err != nil {
				return nil, err
			}
			reg := retrieval.NewRegistry().
				Register(retrieval.SourceVector, v).
				Register(retrieval.SourceGraph, sources.NewGraphRetriever(db))
			if web := sources.NewWebRetriever(cfg.Web.Endpoint, cfg.Web.APIKey, webTimeout); web != nil {
				reg.Register(retrieval.SourceWeb, web)
			}
			fe, err := retrieval.NewFusionEngine(fusionCfg, reg, logger)
			if err != nil {
				return nil, err
			}
			logger.Info("fusion engine ready", "sources", fe.ActiveSources())
			return fe, nil
		},
	}
	return retrieval.NewPipeline(cfg.PipelineConfig(), strategies, logger), nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseFilters converts repeated --filter key=value flags into retrieval
// filters. A key given more than once becomes a list.
func parseFilters(pairs []string) (retrieval.Filters, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	lists := make(map[string][]string)
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("filter %q: want key=value", p)
		}
		lists[k] = append(lists[k], strings.TrimSpace(v))
	}

	f := make(retrieval.Filters, len(lists))
	for k, vs := range lists {
		if len(vs) > 1 {
			f[k] = vs
		} else {
			f[k] = vs[0]
		}
	}
	return f, nil
}
