package store

import (
	"errors"
	"testing"
)

func seedGraph(t *testing.T, db *DB) {
	t.Helper()
	_, err := db.CreateEntities([]Entity{
		{Name: "recall", EntityType: "project", Observations: []string{"written in Go", "serves MCP", "uses SQLite", "has a CLI"}},
		{Name: "chi", EntityType: "framework", Observations: []string{"HTTP router"}},
		{Name: "sqlite", EntityType: "database"},
		{Name: "Alice", EntityType: "person", Observations: []string{"maintainer"}},
	})
	if err != nil {
		t.Fatalf("CreateEntities: %v", err)
	}
	_, err = db.CreateRelations([]Relation{
		{From: "recall", To: "chi", RelationType: "uses_framework"},
		{From: "recall", To: "sqlite", RelationType: "implements"},
		{From: "Alice", To: "recall", RelationType: "maintains"},
	})
	if err != nil {
		t.Fatalf("CreateRelations: %v", err)
	}
}

func TestCreateEntitiesSkipsExisting(t *testing.T) {
	db := testDB(t)
	seedGraph(t, db)

	created, err := db.CreateEntities([]Entity{
		{Name: "recall", EntityType: "project"},
		{Name: "cobra", EntityType: "framework"},
	})
	if err != nil {
		t.Fatalf("CreateEntities: %v", err)
	}
	if len(created) != 1 || created[0].Name != "cobra" {
		t.Errorf("created = %+v, want only cobra", created)
	}
	if created[0].ID == 0 {
		t.Error("created entity has no id")
	}
}

func TestCreateEntitiesValidates(t *testing.T) {
	db := testDB(t)
	if _, err := db.CreateEntities([]Entity{{Name: "untyped"}}); err == nil {
		t.Error("expected error for entity without type")
	}
}

func TestCreateRelationsRequiresEndpoints(t *testing.T) {
	db := testDB(t)
	seedGraph(t, db)

	_, err := db.CreateRelations([]Relation{{From: "recall", To: "ghost", RelationType: "uses"}})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	created, err := db.CreateRelations([]Relation{{From: "recall", To: "chi", RelationType: "uses_framework"}})
	if err != nil {
		t.Fatalf("CreateRelations: %v", err)
	}
	if len(created) != 0 {
		t.Errorf("duplicate relation created: %+v", created)
	}
}

func TestObservations(t *testing.T) {
	db := testDB(t)
	seedGraph(t, db)

	added, err := db.AddObservations("chi", []string{"HTTP router", "lightweight"})
	if err != nil {
		t.Fatalf("AddObservations: %v", err)
	}
	if len(added) != 1 || added[0] != "lightweight" {
		t.Errorf("added = %v, want [lightweight]", added)
	}

	if _, err := db.AddObservations("ghost", []string{"x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddObservations(ghost) err = %v, want ErrNotFound", err)
	}

	if err := db.DeleteObservations("chi", []string{"HTTP router"}); err != nil {
		t.Fatalf("DeleteObservations: %v", err)
	}
	g, _ := db.OpenNodes([]string{"chi"})
	if len(g.Entities) != 1 || len(g.Entities[0].Observations) != 1 || g.Entities[0].Observations[0] != "lightweight" {
		t.Errorf("chi = %+v, want observations [lightweight]", g.Entities)
	}
}

func TestReadGraphAndDelete(t *testing.T) {
	db := testDB(t)
	seedGraph(t, db)

	g, err := db.ReadGraph()
	if err != nil {
		t.Fatalf("ReadGraph: %v", err)
	}
	if len(g.Entities) != 4 || len(g.Relations) != 3 {
		t.Fatalf("graph = %d entities, %d relations; want 4, 3", len(g.Entities), len(g.Relations))
	}

	if err := db.DeleteEntities([]string{"recall", "ghost"}); err != nil {
		t.Fatalf("DeleteEntities: %v", err)
	}
	g, _ = db.ReadGraph()
	if len(g.Entities) != 3 || len(g.Relations) != 0 {
		t.Errorf("after delete = %d entities, %d relations; want 3, 0", len(g.Entities), len(g.Relations))
	}
}

func TestDeleteRelations(t *testing.T) {
	db := testDB(t)
	seedGraph(t, db)

	if err := db.DeleteRelations([]Relation{{From: "Alice", To: "recall", RelationType: "maintains"}}); err != nil {
		t.Fatalf("DeleteRelations: %v", err)
	}
	g, _ := db.ReadGraph()
	if len(g.Relations) != 2 {
		t.Errorf("relations = %d, want 2", len(g.Relations))
	}
}

func TestSearchAndOpenNodes(t *testing.T) {
	db := testDB(t)
	seedGraph(t, db)

	g, err := db.SearchNodes("ROUTER")
	if err != nil {
		t.Fatalf("SearchNodes: %v", err)
	}
	if len(g.Entities) != 1 || g.Entities[0].Name != "chi" {
		t.Errorf("SearchNodes(ROUTER) = %+v, want chi", g.Entities)
	}

	g, err = db.OpenNodes([]string{"recall", "chi"})
	if err != nil {
		t.Fatalf("OpenNodes: %v", err)
	}
	if len(g.Entities) != 2 {
		t.Fatalf("OpenNodes entities = %d, want 2", len(g.Entities))
	}
	if len(g.Relations) != 1 || g.Relations[0].RelationType != "uses_framework" {
		t.Errorf("OpenNodes relations = %+v, want recall->chi only", g.Relations)
	}
}

func TestFindTriples(t *testing.T) {
	db := testDB(t)
	seedGraph(t, db)

	tests := []struct {
		name  string
		query TripleQuery
		want  []string
	}{
		{"all", TripleQuery{}, []string{"uses_framework", "implements", "maintains"}},
		{"relation types", TripleQuery{RelationTypes: []string{"implements", "uses_framework"}}, []string{"uses_framework", "implements"}},
		{"source entity type", TripleQuery{EntityTypes: []string{"person"}}, []string{"maintains"}},
		{"name contains target", TripleQuery{NameContains: "SQL"}, []string{"implements"}},
		{"name contains either", TripleQuery{NameContains: "alice"}, []string{"maintains"}},
		{"limit", TripleQuery{Limit: 1}, []string{"uses_framework"}},
		{"no match", TripleQuery{NameContains: "kafka"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			triples, err := db.FindTriples(tt.query)
			if err != nil {
				t.Fatalf("FindTriples: %v", err)
			}
			var got []string
			for _, tr := range triples {
				got = append(got, tr.RelationType)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("FindTriples = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("FindTriples[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFindTriplesCarriesEndpoints(t *testing.T) {
	db := testDB(t)
	seedGraph(t, db)

	triples, err := db.FindTriples(TripleQuery{RelationTypes: []string{"maintains"}})
	if err != nil || len(triples) != 1 {
		t.Fatalf("FindTriples = %v, %v", triples, err)
	}
	tr := triples[0]
	if tr.Source.Name != "Alice" || tr.Source.EntityType != "person" {
		t.Errorf("Source = %+v", tr.Source)
	}
	if tr.Target.Name != "recall" || tr.Target.EntityType != "project" {
		t.Errorf("Target = %+v", tr.Target)
	}

	obs, err := db.EntityObservations(tr.Target.ID, 3)
	if err != nil {
		t.Fatalf("EntityObservations: %v", err)
	}
	if len(obs) != 3 || obs[0] != "written in Go" {
		t.Errorf("EntityObservations = %v, want first three", obs)
	}
}

func TestImportGraph(t *testing.T) {
	db := testDB(t)
	seedGraph(t, db)

	entities, relations, err := db.ImportGraph(&Graph{
		Entities: []Entity{
			{Name: "recall", EntityType: "project", Observations: []string{"has an HTTP API"}},
			{Name: "cobra", EntityType: "framework"},
		},
		Relations: []Relation{
			{From: "recall", To: "cobra", RelationType: "uses_framework"},
			{From: "recall", To: "chi", RelationType: "uses_framework"},
		},
	})
	if err != nil {
		t.Fatalf("ImportGraph: %v", err)
	}
	if entities != 1 || relations != 1 {
		t.Errorf("ImportGraph = %d entities, %d relations; want 1, 1", entities, relations)
	}
	obs, _ := db.EntityObservations(1, 0)
	if len(obs) != 5 {
		t.Errorf("recall observations = %v, want 5 after merge", obs)
	}
}

func TestImportGraphIsAtomic(t *testing.T) {
	db := testDB(t)
	seedGraph(t, db)
	before, err := db.ReadGraph()
	if err != nil {
		t.Fatalf("ReadGraph: %v", err)
	}

	_, _, err = db.ImportGraph(&Graph{
		Entities: []Entity{
			{Name: "cobra", EntityType: "framework"},
			{Name: "recall", EntityType: "project", Observations: []string{"ships a CLI"}},
		},
		Relations: []Relation{{From: "recall", To: "ghost", RelationType: "uses"}},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ImportGraph err = %v, want ErrNotFound for the dangling relation", err)
	}

	after, err := db.ReadGraph()
	if err != nil {
		t.Fatalf("ReadGraph: %v", err)
	}
	if len(after.Entities) != len(before.Entities) || len(after.Relations) != len(before.Relations) {
		t.Errorf("graph changed by failed import: %d/%d entities, %d/%d relations",
			len(after.Entities), len(before.Entities), len(after.Relations), len(before.Relations))
	}
	for _, e := range after.Entities {
		for _, o := range e.Observations {
			if o == "ships a CLI" {
				t.Errorf("observation from failed import kept on %s", e.Name)
			}
		}
	}
}
