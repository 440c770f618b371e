package engine

import (
	"context"
	"testing"

	"github.com/lazypower/recall/internal/store"
)

func TestDedup(t *testing.T) {
	db := testDB(t)
	eng := New(db, newAxisEmbedder(), nil)
	ctx := context.Background()

	docs := []store.Document{
		{ID: "go-1", Text: "go prefers composition"},
		{ID: "go-2", Text: "go favours composition over inheritance"},
		{ID: "go-3", Text: "go composes small types"},
		{ID: "sqlite-1", Text: "sqlite in WAL mode"},
		{ID: "graph-1", Text: "graph of entities"},
	}
	for i := range docs {
		if _, err := db.UpsertDocument(&docs[i]); err != nil {
			t.Fatalf("UpsertDocument: %v", err)
		}
	}
	// go-2 becomes the most recently updated member of its cluster.
	db.Exec("UPDATE documents SET updated_at = updated_at + 1000 WHERE id = 'go-2'")

	removed, err := eng.Dedup(ctx, 0.9)
	if err != nil {
		t.Fatalf("Dedup: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	remaining, _ := db.ListDocuments()
	ids := map[string]bool{}
	for _, d := range remaining {
		ids[d.ID] = true
	}
	for _, want := range []string{"go-2", "sqlite-1", "graph-1"} {
		if !ids[want] {
			t.Errorf("%s was removed", want)
		}
	}
	if len(remaining) != 3 {
		t.Errorf("remaining = %d, want 3", len(remaining))
	}
}

func TestDedupNothingToMerge(t *testing.T) {
	db := testDB(t)
	eng := New(db, newAxisEmbedder(), nil)

	for _, d := range []store.Document{{ID: "a", Text: "go"}, {ID: "b", Text: "web"}} {
		doc := d
		db.UpsertDocument(&doc)
	}
	removed, err := eng.Dedup(context.Background(), 0.9)
	if err != nil {
		t.Fatalf("Dedup: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}

func TestDedupNoEmbedder(t *testing.T) {
	eng := New(testDB(t), nil, nil)
	if _, err := eng.Dedup(context.Background(), 0.85); err == nil {
		t.Error("expected error without embedder")
	}
}
