package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

const probeTimeout = 3 * time.Second

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaEmbedder calls the /api/embed endpoint of a local Ollama.
type OllamaEmbedder struct {
	baseURL string
	model   string
	http    *http.Client
	dims    atomic.Int64
}

// NewOllamaEmbedder targets the Ollama at baseURL. dims is a hint and is
// replaced by the length of the first embedding returned.
func NewOllamaEmbedder(baseURL, model string, dims int) *OllamaEmbedder {
	o := &OllamaEmbedder{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	o.dims.Store(int64(dims))
	return o
}

func (o *OllamaEmbedder) Model() string   { return "ollama:" + o.model }
func (o *OllamaEmbedder) Dimensions() int { return int(o.dims.Load()) }

func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vec, err := ollamaEmbed(ctx, o.http, o.baseURL, o.model, text)
	if err != nil {
		return nil, err
	}
	o.dims.Store(int64(len(vec)))
	return vec, nil
}

// ProbeOllama reports whether the Ollama at baseURL can embed with model.
func ProbeOllama(ctx context.Context, baseURL, model string) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	_, err := ollamaEmbed(ctx, http.DefaultClient, strings.TrimSuffix(baseURL, "/"), model, "probe")
	return err == nil
}

func ollamaEmbed(ctx context.Context, client *http.Client, baseURL, model, text string) ([]float64, error) {
	payload, err := json.Marshal(ollamaEmbedRequest{Model: model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("encode ollama request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama embed: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, errors.New("ollama returned no embeddings")
	}
	return out.Embeddings[0], nil
}
