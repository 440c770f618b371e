package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/lazypower/recall/internal/retrieval"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all recall configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Fusion    FusionConfig    `toml:"fusion"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Web       WebConfig       `toml:"web"`
	Index     IndexConfig     `toml:"index"`
	Log       LogConfig       `toml:"log"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type EmbeddingConfig struct {
	Provider   string `toml:"provider"` // "auto", "ollama", "openai", "tfidf"
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	OllamaURL  string `toml:"ollama_url"`
	OpenAIKey  string `toml:"openai_key"`
	OpenAIURL  string `toml:"openai_url"` // compatible gateways
	CacheSize  int    `toml:"cache_size"`
}

type FusionConfig struct {
	VectorWeight   float64 `toml:"vector_weight"`
	GraphWeight    float64 `toml:"graph_weight"`
	WebWeight      float64 `toml:"web_weight"`
	TopKMultiplier int     `toml:"top_k_multiplier"`
	Reranking      bool    `toml:"reranking"`
	SourceTimeout  string  `toml:"source_timeout"` // Go duration, "0" disables
}

type PipelineConfig struct {
	DefaultMode string `toml:"default_mode"`
	DefaultTopK int    `toml:"default_top_k"`
	EnrichTopK  int    `toml:"enrich_top_k"`
	// HybridRerank turns on the keyword rerank of the hybrid mode.
	HybridRerank bool `toml:"hybrid_rerank"`
}

type WebConfig struct {
	Endpoint string `toml:"endpoint"`
	APIKey   string `toml:"api_key"`
	Timeout  string `toml:"timeout"`
}

type IndexConfig struct {
	Schedule string `toml:"schedule"` // cron spec for re-embedding, "" disables
}

type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // pretty, text, json
}

var providers = map[string]bool{"auto": true, "ollama": true, "openai": true, "tfidf": true}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37777,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Embedding: EmbeddingConfig{
			Provider:  "auto",
			OllamaURL: "http://localhost:11434",
			CacheSize: 1024,
		},
		Fusion: FusionConfig{
			VectorWeight:   0.4,
			GraphWeight:    0.4,
			WebWeight:      0.2,
			TopKMultiplier: 3,
			Reranking:      true,
			SourceTimeout:  "10s",
		},
		Pipeline: PipelineConfig{
			DefaultMode:  string(retrieval.ModeFusion),
			DefaultTopK:  retrieval.DefaultTopK,
			EnrichTopK:   retrieval.DefaultEnrichTopK,
			HybridRerank: true,
		},
		Web: WebConfig{
			Endpoint: "https://api.bing.microsoft.com/v7.0/search",
			Timeout:  "10s",
		},
		Index: IndexConfig{
			Schedule: "@every 15m",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "pretty",
		},
	}
}

// DefaultPath returns ~/.recall/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".recall", "config.toml"), nil
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("%w: unknown key %q in %s", ErrInvalid, undecoded[0].String(), path)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("RECALL_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("RECALL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Embedding.OpenAIKey == "" {
		c.Embedding.OpenAIKey = v
	}
	if v := os.Getenv("BING_API_KEY"); v != "" && c.Web.APIKey == "" {
		c.Web.APIKey = v
	}
	if v := os.Getenv("RECALL_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalid, c.Server.Port)
	}
	if !providers[c.Embedding.Provider] {
		return fmt.Errorf("%w: unknown embedding.provider %q", ErrInvalid, c.Embedding.Provider)
	}
	if c.Embedding.Provider == "openai" && c.Embedding.OpenAIKey == "" {
		return fmt.Errorf("%w: embedding.provider openai needs openai_key or OPENAI_API_KEY", ErrInvalid)
	}
	if _, err := c.FusionConfig(); err != nil {
		return err
	}
	if !retrieval.Mode(c.Pipeline.DefaultMode).Known() {
		return fmt.Errorf("%w: unknown pipeline.default_mode %q", ErrInvalid, c.Pipeline.DefaultMode)
	}
	if c.Pipeline.DefaultTopK < 1 || c.Pipeline.EnrichTopK < 1 {
		return fmt.Errorf("%w: pipeline top_k values must be at least 1", ErrInvalid)
	}
	if _, err := c.WebTimeout(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "pretty", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log.format %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

// FusionConfig converts the [fusion] table into the engine's settings.
func (c *Config) FusionConfig() (retrieval.FusionConfig, error) {
	f := c.Fusion
	if f.VectorWeight < 0 || f.GraphWeight < 0 || f.WebWeight < 0 {
		return retrieval.FusionConfig{}, fmt.Errorf("%w: fusion weights must be non-negative", ErrInvalid)
	}
	if f.TopKMultiplier < 1 {
		return retrieval.FusionConfig{}, fmt.Errorf("%w: fusion.top_k_multiplier must be at least 1", ErrInvalid)
	}
	timeout, err := parseDuration("fusion.source_timeout", f.SourceTimeout)
	if err != nil {
		return retrieval.FusionConfig{}, err
	}
	return retrieval.FusionConfig{
		VectorWeight:   f.VectorWeight,
		GraphWeight:    f.GraphWeight,
		WebWeight:      f.WebWeight,
		TopKMultiplier: f.TopKMultiplier,
		Reranking:      f.Reranking,
		SourceTimeout:  timeout,
	}, nil
}

// PipelineConfig converts the [pipeline] table.
func (c *Config) PipelineConfig() retrieval.PipelineConfig {
	return retrieval.PipelineConfig{
		DefaultMode: retrieval.ParseMode(c.Pipeline.DefaultMode),
		DefaultTopK: c.Pipeline.DefaultTopK,
		EnrichTopK:  c.Pipeline.EnrichTopK,
	}
}

// WebTimeout parses web.timeout.
func (c *Config) WebTimeout() (time.Duration, error) {
	return parseDuration("web.timeout", c.Web.Timeout)
}

// WebEnabled reports whether the web source has credentials.
func (c *Config) WebEnabled() bool {
	return c.Web.Endpoint != "" && c.Web.APIKey != ""
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

func parseDuration(key, v string) (time.Duration, error) {
	if v == "" || v == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %s %q is not a non-negative duration", ErrInvalid, key, v)
	}
	return d, nil
}
