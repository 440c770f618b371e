package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "nomic-embed-text" {
			t.Errorf("model = %v, want nomic-embed-text", req["model"])
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float64{{0.1, 0.2, 0.3}}})
	}))
	defer srv.Close()

	emb := NewOllamaEmbedder(srv.URL, "nomic-embed-text", 0)
	vec, err := emb.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || emb.Dimensions() != 3 {
		t.Errorf("vec = %v, dims = %d; want 3 values", vec, emb.Dimensions())
	}
	if emb.Model() != "ollama:nomic-embed-text" {
		t.Errorf("Model = %q", emb.Model())
	}
	if !ProbeOllama(context.Background(), srv.URL, "nomic-embed-text") {
		t.Error("ProbeOllama = false against a healthy server")
	}
}

func TestOllamaEmbedderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	emb := NewOllamaEmbedder(srv.URL, "missing", 0)
	if _, err := emb.Embed(context.Background(), "hello"); err == nil {
		t.Error("expected error for 404 response")
	}
	if ProbeOllama(context.Background(), srv.URL, "missing") {
		t.Error("ProbeOllama = true against a failing server")
	}
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "text-embedding-3-small" {
			t.Errorf("model = %v", req["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float64{0.5, -0.5}},
			},
			"usage": map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer srv.Close()

	emb := NewOpenAIEmbedder("sk-test", srv.URL, "", 0)
	vec, err := emb.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 {
		t.Errorf("vec = %v, want [0.5 -0.5]", vec)
	}
	if emb.Model() != "openai:text-embedding-3-small" || emb.Dimensions() != 2 {
		t.Errorf("Model = %q, Dimensions = %d", emb.Model(), emb.Dimensions())
	}
}

func TestOpenAIEmbedderDimensionsParam(t *testing.T) {
	var sent []any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		sent = append(sent, req["dimensions"])
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req["model"],
			"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": []float64{0.6, 0.8}}},
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer srv.Close()

	native := NewOpenAIEmbedder("sk-test", srv.URL, "text-embedding-ada-002", 0)
	for i := 0; i < 2; i++ {
		if _, err := native.Embed(context.Background(), "hello"); err != nil {
			t.Fatalf("Embed %d: %v", i, err)
		}
	}
	if len(sent) != 2 || sent[0] != nil || sent[1] != nil {
		t.Errorf("dimensions sent = %v, want none on every call", sent)
	}
	if native.Dimensions() != 2 {
		t.Errorf("Dimensions = %d, want 2 learned from the response", native.Dimensions())
	}

	sent = nil
	sized := NewOpenAIEmbedder("sk-test", srv.URL, "text-embedding-3-small", 256)
	sized.Embed(context.Background(), "hello")
	sized.Embed(context.Background(), "hello")
	if len(sent) != 2 || sent[0] != float64(256) || sent[1] != float64(256) {
		t.Errorf("dimensions sent = %v, want 256 on every call", sent)
	}
}
