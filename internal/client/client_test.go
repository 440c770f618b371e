package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/recall/internal/retrieval"
)

// recorder captures the last request body sent to the fake server.
type recorder struct {
	path string
	body map[string]any
}

func fakeServer(t *testing.T, rec *recorder, reply any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.path = r.URL.RequestURI()
		rec.body = nil
		if r.Body != nil && r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewDefaults(t *testing.T) {
	t.Setenv("RECALL_URL", "")
	assert.Equal(t, DefaultURL, New("").URL())

	t.Setenv("RECALL_URL", "http://recall.internal:9000/")
	assert.Equal(t, "http://recall.internal:9000", New("").URL())

	assert.Equal(t, "http://other:1", New("http://other:1").URL())
}

func TestRetrieve(t *testing.T) {
	rec := &recorder{}
	reply := retrieval.Response{
		Query: "chi", Mode: retrieval.ModeGraph, Count: 1,
		Results: []retrieval.Result{{ID: "1-2-3", Text: "recall --uses--> chi", Score: retrieval.Float(1)}},
	}
	srv := fakeServer(t, rec, reply)

	resp, err := New(srv.URL).Retrieve(context.Background(), "chi", retrieval.Int(4), retrieval.ModeGraph, retrieval.Filters{"entity_types": []string{"project"}})
	require.NoError(t, err)

	assert.Equal(t, "/api/retrieve", rec.path)
	assert.Equal(t, "chi", rec.body["query"])
	assert.Equal(t, float64(4), rec.body["top_k"])
	assert.Equal(t, "graph", rec.body["mode"])
	assert.Contains(t, rec.body, "filters")

	assert.Equal(t, retrieval.ModeGraph, resp.Mode)
	require.Len(t, resp.Results, 1)
	assert.InDelta(t, 1.0, *resp.Results[0].Score, 1e-9)
}

func TestRetrieveOmitsEmptyMode(t *testing.T) {
	rec := &recorder{}
	srv := fakeServer(t, rec, retrieval.Response{Results: []retrieval.Result{}})

	_, err := New(srv.URL).Retrieve(context.Background(), "q", nil, "", nil)
	require.NoError(t, err)
	assert.NotContains(t, rec.body, "mode")
	assert.NotContains(t, rec.body, "filters")
	assert.NotContains(t, rec.body, "top_k")

	_, err = New(srv.URL).Retrieve(context.Background(), "q", retrieval.Int(0), "", nil)
	require.NoError(t, err)
	assert.Equal(t, float64(0), rec.body["top_k"])
}

func TestSearchHybrid(t *testing.T) {
	rec := &recorder{}
	srv := fakeServer(t, rec, retrieval.Response{Mode: retrieval.ModeFusion, Results: []retrieval.Result{}})

	resp, err := New(srv.URL).SearchHybrid(context.Background(), "q", retrieval.Int(2), nil)
	require.NoError(t, err)
	assert.Equal(t, "/api/search/hybrid", rec.path)
	assert.Equal(t, retrieval.ModeFusion, resp.Mode)
}

func TestEnrich(t *testing.T) {
	rec := &recorder{}
	existing := "notes"
	srv := fakeServer(t, rec, retrieval.Enrichment{
		Query: "q", OriginalContext: &existing,
		EnrichedContext: "notes\n\nRelevant information:\nx", SourcesCount: 1,
	})

	out, err := New(srv.URL).Enrich(context.Background(), "q", &existing, retrieval.Int(3))
	require.NoError(t, err)
	assert.Equal(t, "/api/enrich", rec.path)
	assert.Equal(t, "notes", rec.body["context"])
	assert.Equal(t, 1, out.SourcesCount)
	require.NotNil(t, out.OriginalContext)
	assert.Equal(t, "notes", *out.OriginalContext)
}

func TestSearchNodesEscapesQuery(t *testing.T) {
	rec := &recorder{}
	srv := fakeServer(t, rec, map[string]any{"entities": []any{}, "relations": []any{}})

	raw, err := New(srv.URL).SearchNodes(context.Background(), "http router")
	require.NoError(t, err)
	assert.Equal(t, "/api/graph/search?q=http+router", rec.path)
	assert.JSONEq(t, `{"entities":[],"relations":[]}`, string(raw))
}

func TestHealth(t *testing.T) {
	rec := &recorder{}
	srv := fakeServer(t, rec, map[string]any{"status": "ok", "version": "v1", "db": true, "modes": []string{"fusion"}})

	c := New(srv.URL)
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, []retrieval.Mode{retrieval.ModeFusion}, h.Modes)
	assert.True(t, c.Healthy(context.Background()))
}

func TestErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"query required"}`))
	}))
	t.Cleanup(srv.Close)

	_, err := New(srv.URL).Retrieve(context.Background(), "", retrieval.Int(1), "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "query required")
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	assert.False(t, New(url).Healthy(context.Background()))
}
