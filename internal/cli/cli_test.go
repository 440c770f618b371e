package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/logging"
	"github.com/lazypower/recall/internal/retrieval"
	"github.com/lazypower/recall/internal/store"
)

func testApp(t *testing.T) *app {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "recall.db")
	cfg.Embedding.Provider = "tfidf"
	cfg.Index.Schedule = ""

	a, err := newApp(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestParseFilters(t *testing.T) {
	f, err := parseFilters([]string{"lang=go", "entity_types=project", "entity_types = library"})
	if err != nil {
		t.Fatalf("parseFilters: %v", err)
	}
	want := retrieval.Filters{
		"lang":         "go",
		"entity_types": []string{"project", "library"},
	}
	if !reflect.DeepEqual(f, want) {
		t.Errorf("filters = %v, want %v", f, want)
	}

	if f, err := parseFilters(nil); err != nil || f != nil {
		t.Errorf("parseFilters(nil) = %v, %v; want nil, nil", f, err)
	}
	if _, err := parseFilters([]string{"novalue"}); err == nil {
		t.Error("expected error for a filter without '='")
	}
	if _, err := parseFilters([]string{"=x"}); err == nil {
		t.Error("expected error for an empty key")
	}
}

func TestDocumentText(t *testing.T) {
	got, err := documentText(strings.NewReader("from stdin"), "-", nil)
	if err != nil || got != "from stdin" {
		t.Errorf("stdin = %q, %v", got, err)
	}
	got, err = documentText(nil, "", []string{"two", "words"})
	if err != nil || got != "two words" {
		t.Errorf("args = %q, %v", got, err)
	}
	if _, err := documentText(nil, "", nil); err == nil {
		t.Error("expected error with no text")
	}
	if _, err := documentText(nil, filepath.Join(t.TempDir(), "missing.txt"), nil); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestGraphImportExport(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	src := `
entities:
  - name: recall
    entityType: project
    observations:
      - written in Go
  - name: chi
    entityType: library
relations:
  - from: recall
    to: chi
    relationType: uses_framework
`
	entities, relations, err := importGraph(db, strings.NewReader(src))
	if err != nil {
		t.Fatalf("importGraph: %v", err)
	}
	if entities != 2 || relations != 1 {
		t.Errorf("imported %d entities, %d relations; want 2, 1", entities, relations)
	}

	var out bytes.Buffer
	if err := exportGraph(db, &out); err != nil {
		t.Fatalf("exportGraph: %v", err)
	}
	for _, want := range []string{"name: recall", "entityType: library", "- written in Go", "relationType: uses_framework"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("export missing %q:\n%s", want, out.String())
		}
	}

	// Re-importing the export is a no-op.
	entities, relations, err = importGraph(db, &out)
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if entities != 0 || relations != 0 {
		t.Errorf("re-import created %d entities, %d relations; want 0, 0", entities, relations)
	}
}

func TestGraphImportRejectsUnknownFields(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if _, _, err := importGraph(db, strings.NewReader("nodes: []\n")); err == nil {
		t.Error("expected error for unknown top-level key")
	}
	if _, _, err := importGraph(db, strings.NewReader("")); err != nil {
		t.Errorf("empty file: %v", err)
	}
}

func TestAppRetrievesAcrossModes(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()

	for _, text := range []string{
		"chi is a lightweight HTTP router for Go services",
		"sqlite stores documents and vectors on local disk",
	} {
		if _, err := a.engine.AddDocument(ctx, store.Document{Text: text}); err != nil {
			t.Fatalf("AddDocument: %v", err)
		}
	}
	if _, _, err := a.db.ImportGraph(&store.Graph{
		Entities: []store.Entity{
			{Name: "recall", EntityType: "project"},
			{Name: "chi", EntityType: "library", Observations: []string{"HTTP router"}},
		},
		Relations: []store.Relation{{From: "recall", To: "chi", RelationType: "uses_framework"}},
	}); err != nil {
		t.Fatalf("ImportGraph: %v", err)
	}

	graph := a.pipeline.Retrieve(ctx, retrieval.Request{Query: "how do we implement routing", Mode: retrieval.ModeGraph})
	if graph.Failed() || graph.Count != 1 {
		t.Fatalf("graph = %+v", graph)
	}
	if !strings.HasPrefix(graph.Results[0].Text, "recall --uses_framework--> chi") {
		t.Errorf("graph text = %q", graph.Results[0].Text)
	}

	fused := a.pipeline.SearchHybrid(ctx, "chi", retrieval.Int(5), nil)
	if fused.Failed() {
		t.Fatalf("fusion error: %s", fused.Error)
	}
	if fused.Mode != retrieval.ModeFusion || fused.Count == 0 {
		t.Errorf("fusion = %+v", fused)
	}

	if got := a.pipeline.Modes(); len(got) != len(retrieval.Modes) {
		t.Errorf("modes = %v, want all", got)
	}
}

func TestNewEmbedderAutoFallsBackToTFIDF(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	cfg := config.Default().Embedding
	cfg.OllamaURL = "http://127.0.0.1:1"
	emb, err := newEmbedder(context.Background(), cfg, db, logging.Discard())
	if err != nil {
		t.Fatalf("newEmbedder: %v", err)
	}
	if !strings.HasPrefix(emb.Model(), "tfidf:") {
		t.Errorf("model = %q, want a tfidf vocabulary", emb.Model())
	}
}

func TestNewEmbedderExplicitProviders(t *testing.T) {
	cfg := config.Default().Embedding

	cfg.Provider = "ollama"
	emb, err := newEmbedder(context.Background(), cfg, nil, logging.Discard())
	if err != nil {
		t.Fatalf("ollama: %v", err)
	}
	if emb.Model() != "ollama:"+defaultOllamaModel {
		t.Errorf("ollama model = %q", emb.Model())
	}

	cfg.Provider = "openai"
	cfg.OpenAIKey = "sk-test"
	emb, err = newEmbedder(context.Background(), cfg, nil, logging.Discard())
	if err != nil {
		t.Fatalf("openai: %v", err)
	}
	if emb.Model() != "openai:text-embedding-3-small" {
		t.Errorf("openai model = %q", emb.Model())
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "recall dev") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestTopKFlag(t *testing.T) {
	t.Cleanup(func() { queryTopK = 0 })

	tests := []struct {
		args    []string
		want    *int
		wantErr bool
	}{
		{nil, nil, false},
		{[]string{"--top-k", "0"}, retrieval.Int(0), false},
		{[]string{"-n", "3"}, retrieval.Int(3), false},
		{[]string{"--top-k=-1"}, nil, true},
	}
	for _, tt := range tests {
		queryTopK = 0
		cmd := &cobra.Command{Use: "t"}
		cmd.Flags().IntVarP(&queryTopK, "top-k", "n", 0, "")
		if err := cmd.ParseFlags(tt.args); err != nil {
			t.Fatalf("ParseFlags(%v): %v", tt.args, err)
		}
		got, err := topKFlag(cmd)
		if (err != nil) != tt.wantErr {
			t.Fatalf("topKFlag(%v) err = %v, wantErr %v", tt.args, err, tt.wantErr)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("topKFlag(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
}
