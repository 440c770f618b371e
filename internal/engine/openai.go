package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// DefaultOpenAIModel is used when no embedding model is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIEmbedder uses the OpenAI embeddings API or a compatible gateway.
type OpenAIEmbedder struct {
	client      openai.Client
	model       string
	requestDims int64        // configured size; 0 keeps the model's native size
	dims        atomic.Int64 // last size seen, for Dimensions
}

// NewOpenAIEmbedder creates an embedder for the given model. An empty
// baseURL targets api.openai.com. dims of zero keeps the model's native size.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dims int) *OpenAIEmbedder {
	if model == "" {
		model = DefaultOpenAIModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(30 * time.Second),
		option.WithMaxRetries(2),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	e := &OpenAIEmbedder{
		client:      openai.NewClient(opts...),
		model:       model,
		requestDims: int64(dims),
	}
	e.dims.Store(int64(dims))
	return e
}

func (e *OpenAIEmbedder) Model() string   { return "openai:" + e.model }
func (e *OpenAIEmbedder) Dimensions() int { return int(e.dims.Load()) }

// Embed returns the embedding of text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.requestDims > 0 {
		params.Dimensions = openai.Int(e.requestDims)
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embed api: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai returned no embeddings")
	}

	vec := resp.Data[0].Embedding
	e.dims.Store(int64(len(vec)))
	return vec, nil
}
