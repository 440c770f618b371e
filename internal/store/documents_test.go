package store

import (
	"errors"
	"testing"
)

func TestUpsertDocumentCreatesAndUpdates(t *testing.T) {
	db := testDB(t)

	doc := &Document{ID: "d1", Text: "SQLite in WAL mode", Metadata: map[string]any{"topic": "storage"}}
	created, err := db.UpsertDocument(doc)
	if err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	if !created {
		t.Error("first upsert should create")
	}
	if doc.CreatedAt == 0 {
		t.Error("CreatedAt not set")
	}

	got, err := db.GetDocument("d1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Text != "SQLite in WAL mode" {
		t.Errorf("Text = %q", got.Text)
	}
	if got.Metadata["topic"] != "storage" {
		t.Errorf("Metadata = %v, want topic=storage", got.Metadata)
	}

	doc.Metadata = map[string]any{"topic": "databases"}
	created, err = db.UpsertDocument(doc)
	if err != nil {
		t.Fatalf("UpsertDocument update: %v", err)
	}
	if created {
		t.Error("second upsert should update")
	}
	got, _ = db.GetDocument("d1")
	if got.Metadata["topic"] != "databases" {
		t.Errorf("Metadata = %v, want topic=databases", got.Metadata)
	}
}

func TestUpsertDocumentDropsStaleVector(t *testing.T) {
	db := testDB(t)
	seedDocument(t, db, "d1", "original text")
	if err := db.SaveVector("d1", []float64{1, 0}, "m"); err != nil {
		t.Fatalf("SaveVector: %v", err)
	}

	// Same text keeps the vector.
	if _, err := db.UpsertDocument(&Document{ID: "d1", Text: "original text", Metadata: map[string]any{"k": "v"}}); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	if v, _ := db.GetVector("d1"); v == nil {
		t.Fatal("vector dropped on metadata-only update")
	}

	if _, err := db.UpsertDocument(&Document{ID: "d1", Text: "rewritten text"}); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	if v, _ := db.GetVector("d1"); v != nil {
		t.Error("vector kept after text changed")
	}
}

func TestUpsertDocumentRequiresID(t *testing.T) {
	db := testDB(t)
	if _, err := db.UpsertDocument(&Document{Text: "orphan"}); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetDocument("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDocument err = %v, want ErrNotFound", err)
	}
}

func TestGetDocumentsByIDs(t *testing.T) {
	db := testDB(t)
	seedDocument(t, db, "a", "alpha")
	seedDocument(t, db, "b", "beta")

	got, err := db.GetDocumentsByIDs([]string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("GetDocumentsByIDs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got["b"].Text != "beta" {
		t.Errorf("b.Text = %q, want beta", got["b"].Text)
	}

	empty, err := db.GetDocumentsByIDs(nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("GetDocumentsByIDs(nil) = %v, %v", empty, err)
	}
}

func TestDocumentsMissingVector(t *testing.T) {
	db := testDB(t)
	seedDocument(t, db, "a", "alpha")
	seedDocument(t, db, "b", "beta")
	db.SaveVector("a", []float64{1}, "m1")

	missing, err := db.DocumentsMissingVector("m1")
	if err != nil {
		t.Fatalf("DocumentsMissingVector: %v", err)
	}
	if len(missing) != 1 || missing[0].ID != "b" {
		t.Errorf("missing(m1) = %+v, want [b]", missing)
	}

	missing, _ = db.DocumentsMissingVector("m2")
	if len(missing) != 2 {
		t.Errorf("missing(m2) = %d documents, want 2", len(missing))
	}
}

func TestDeleteDocument(t *testing.T) {
	db := testDB(t)
	seedDocument(t, db, "a", "alpha")
	db.SaveVector("a", []float64{1}, "m")

	if err := db.DeleteDocument("a"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if n, _ := db.CountDocuments(); n != 0 {
		t.Errorf("CountDocuments = %d, want 0", n)
	}
	if all, _ := db.AllVectors(""); len(all) != 0 {
		t.Errorf("vector survived document delete: %+v", all)
	}
	if err := db.DeleteDocument("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}
