package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Entity is a named node in the knowledge graph.
type Entity struct {
	ID           int64    `json:"-" yaml:"-"`
	Name         string   `json:"name" yaml:"name"`
	EntityType   string   `json:"entityType" yaml:"entityType"`
	Observations []string `json:"observations" yaml:"observations,omitempty"`
}

// Relation is a directed, typed edge between two entities, addressed by name.
type Relation struct {
	From         string `json:"from" yaml:"from"`
	To           string `json:"to" yaml:"to"`
	RelationType string `json:"relationType" yaml:"relationType"`
}

// Graph is a set of entities and the relations among them.
type Graph struct {
	Entities  []Entity   `json:"entities" yaml:"entities"`
	Relations []Relation `json:"relations" yaml:"relations"`
}

// Triple is one relation joined with both endpoint entities.
type Triple struct {
	RelationID   int64
	RelationType string
	Source       Entity
	Target       Entity
}

// TripleQuery narrows FindTriples. Empty fields match everything.
type TripleQuery struct {
	// RelationTypes restricts the relation type.
	RelationTypes []string
	// EntityTypes restricts the source entity type.
	EntityTypes []string
	// NameContains matches source or target names, case-insensitively.
	NameContains string
	Limit        int
}

// withTx runs fn in a transaction committed only when fn succeeds.
func (db *DB) withTx(op string, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin %s: %w", op, err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", op, err)
	}
	return nil
}

// CreateEntities inserts entities whose names are not yet taken and
// returns the ones created. Existing names are left untouched.
func (db *DB) CreateEntities(entities []Entity) (created []Entity, err error) {
	err = db.withTx("create entities", func(tx *sql.Tx) error {
		created, err = createEntities(tx, entities, time.Now().UnixMilli())
		return err
	})
	return created, err
}

func createEntities(tx *sql.Tx, entities []Entity, now int64) ([]Entity, error) {
	var created []Entity
	for _, e := range entities {
		if e.Name == "" || e.EntityType == "" {
			return nil, fmt.Errorf("create entity: name and type are required: %w", ErrInvalid)
		}
		res, err := tx.Exec(`
			INSERT INTO entities (name, entity_type, created_at) VALUES (?, ?, ?)
			ON CONFLICT(name) DO NOTHING
		`, e.Name, e.EntityType, now)
		if err != nil {
			return nil, fmt.Errorf("insert entity %q: %w", e.Name, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("entity id: %w", err)
		}
		e.ID = id
		if _, err := insertObservations(tx, id, e.Observations, now); err != nil {
			return nil, err
		}
		created = append(created, e)
	}
	return created, nil
}

// CreateRelations inserts relations and returns the ones that were new.
// Both endpoints must already exist.
func (db *DB) CreateRelations(relations []Relation) (created []Relation, err error) {
	err = db.withTx("create relations", func(tx *sql.Tx) error {
		created, err = createRelations(tx, relations, time.Now().UnixMilli())
		return err
	})
	return created, err
}

func createRelations(tx *sql.Tx, relations []Relation, now int64) ([]Relation, error) {
	var created []Relation
	for _, r := range relations {
		if r.RelationType == "" {
			return nil, fmt.Errorf("create relation %s -> %s: type is required: %w", r.From, r.To, ErrInvalid)
		}
		fromID, err := entityID(tx, r.From)
		if err != nil {
			return nil, err
		}
		toID, err := entityID(tx, r.To)
		if err != nil {
			return nil, err
		}
		res, err := tx.Exec(`
			INSERT INTO relations (from_id, to_id, relation_type, created_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(from_id, to_id, relation_type) DO NOTHING
		`, fromID, toID, r.RelationType, now)
		if err != nil {
			return nil, fmt.Errorf("insert relation: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created = append(created, r)
		}
	}
	return created, nil
}

// AddObservations attaches observations to the named entity and returns
// the ones that were not already present.
func (db *DB) AddObservations(name string, observations []string) (added []string, err error) {
	err = db.withTx("add observations", func(tx *sql.Tx) error {
		id, err := entityID(tx, name)
		if err != nil {
			return err
		}
		added, err = insertObservations(tx, id, observations, time.Now().UnixMilli())
		return err
	})
	return added, err
}

// DeleteEntities removes entities by name along with their observations
// and every relation touching them. Unknown names are ignored.
func (db *DB) DeleteEntities(names []string) error {
	for _, name := range names {
		if _, err := db.Exec("DELETE FROM entities WHERE name = ?", name); err != nil {
			return fmt.Errorf("delete entity %q: %w", name, err)
		}
	}
	return nil
}

// DeleteObservations removes the given observations from the named entity.
func (db *DB) DeleteObservations(name string, observations []string) error {
	id, err := entityID(db, name)
	if err != nil {
		return err
	}
	for _, o := range observations {
		if _, err := db.Exec("DELETE FROM observations WHERE entity_id = ? AND text = ?", id, o); err != nil {
			return fmt.Errorf("delete observation: %w", err)
		}
	}
	return nil
}

// DeleteRelations removes the given relations. Missing ones are ignored.
func (db *DB) DeleteRelations(relations []Relation) error {
	for _, r := range relations {
		_, err := db.Exec(`
			DELETE FROM relations
			WHERE relation_type = ?
			  AND from_id = (SELECT id FROM entities WHERE name = ?)
			  AND to_id   = (SELECT id FROM entities WHERE name = ?)
		`, r.RelationType, r.From, r.To)
		if err != nil {
			return fmt.Errorf("delete relation: %w", err)
		}
	}
	return nil
}

// ReadGraph returns the whole graph.
func (db *DB) ReadGraph() (*Graph, error) {
	entities, err := db.queryEntities("SELECT id, name, entity_type FROM entities ORDER BY id")
	if err != nil {
		return nil, err
	}
	return db.graphOf(entities)
}

// SearchNodes returns entities whose name, type or any observation
// contains query, case-insensitively, plus the relations among them.
func (db *DB) SearchNodes(query string) (*Graph, error) {
	entities, err := db.queryEntities(`
		SELECT id, name, entity_type FROM entities e
		WHERE instr(lower(e.name), lower(?1)) > 0
		   OR instr(lower(e.entity_type), lower(?1)) > 0
		   OR EXISTS (
		       SELECT 1 FROM observations o
		       WHERE o.entity_id = e.id AND instr(lower(o.text), lower(?1)) > 0
		   )
		ORDER BY id
	`, query)
	if err != nil {
		return nil, err
	}
	return db.graphOf(entities)
}

// OpenNodes returns the named entities and the relations among them.
func (db *DB) OpenNodes(names []string) (*Graph, error) {
	if len(names) == 0 {
		return &Graph{Entities: []Entity{}, Relations: []Relation{}}, nil
	}
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	entities, err := db.queryEntities(
		"SELECT id, name, entity_type FROM entities WHERE name IN ("+placeholderList(len(names))+") ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	return db.graphOf(entities)
}

// FindTriples returns relations joined with their endpoints, oldest first.
func (db *DB) FindTriples(q TripleQuery) ([]Triple, error) {
	var where []string
	var args []any

	if len(q.RelationTypes) > 0 {
		where = append(where, "r.relation_type IN ("+placeholderList(len(q.RelationTypes))+")")
		for _, t := range q.RelationTypes {
			args = append(args, t)
		}
	}
	if len(q.EntityTypes) > 0 {
		where = append(where, "s.entity_type IN ("+placeholderList(len(q.EntityTypes))+")")
		for _, t := range q.EntityTypes {
			args = append(args, t)
		}
	}
	if q.NameContains != "" {
		where = append(where, "(instr(lower(s.name), lower(?)) > 0 OR instr(lower(t.name), lower(?)) > 0)")
		args = append(args, q.NameContains, q.NameContains)
	}

	query := `
		SELECT r.id, r.relation_type, s.id, s.name, s.entity_type, t.id, t.name, t.entity_type
		FROM relations r
		JOIN entities s ON s.id = r.from_id
		JOIN entities t ON t.id = r.to_id`
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY r.id"
	if q.Limit > 0 {
		query += "\nLIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("find triples: %w", err)
	}
	defer rows.Close()

	var triples []Triple
	for rows.Next() {
		var tr Triple
		if err := rows.Scan(&tr.RelationID, &tr.RelationType,
			&tr.Source.ID, &tr.Source.Name, &tr.Source.EntityType,
			&tr.Target.ID, &tr.Target.Name, &tr.Target.EntityType); err != nil {
			return nil, fmt.Errorf("scan triple: %w", err)
		}
		triples = append(triples, tr)
	}
	return triples, rows.Err()
}

// EntityObservations returns up to limit observations of an entity,
// oldest first. A limit of zero returns all of them.
func (db *DB) EntityObservations(entityID int64, limit int) ([]string, error) {
	query := "SELECT text FROM observations WHERE entity_id = ? ORDER BY id"
	args := []any{entityID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("entity observations: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ImportGraph creates every entity and relation in g, skipping ones
// that already exist, and returns how many of each were new. The import
// is all or nothing: any invalid entity or dangling relation leaves the
// graph unchanged.
func (db *DB) ImportGraph(g *Graph) (entities, relations int, err error) {
	err = db.withTx("import graph", func(tx *sql.Tx) error {
		now := time.Now().UnixMilli()
		created, err := createEntities(tx, g.Entities, now)
		if err != nil {
			return err
		}
		// Observations on pre-existing entities still merge in.
		for _, e := range g.Entities {
			id, err := entityID(tx, e.Name)
			if err != nil {
				return err
			}
			if _, err := insertObservations(tx, id, e.Observations, now); err != nil {
				return err
			}
		}
		rels, err := createRelations(tx, g.Relations, now)
		if err != nil {
			return err
		}
		entities, relations = len(created), len(rels)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return entities, relations, nil
}

type queryer interface {
	QueryRow(query string, args ...any) *sql.Row
}

func entityID(q queryer, name string) (int64, error) {
	var id int64
	err := q.QueryRow("SELECT id FROM entities WHERE name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("entity %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup entity %q: %w", name, err)
	}
	return id, nil
}

func insertObservations(tx *sql.Tx, entityID int64, observations []string, now int64) ([]string, error) {
	var added []string
	for _, o := range observations {
		if strings.TrimSpace(o) == "" {
			continue
		}
		res, err := tx.Exec(`
			INSERT INTO observations (entity_id, text, created_at) VALUES (?, ?, ?)
			ON CONFLICT(entity_id, text) DO NOTHING
		`, entityID, o, now)
		if err != nil {
			return nil, fmt.Errorf("insert observation: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added = append(added, o)
		}
	}
	return added, nil
}

func (db *DB) queryEntities(query string, args ...any) ([]Entity, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	entities := []Entity{}
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.EntityType); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// graphOf fills in observations and collects the relations whose
// endpoints are both in entities.
func (db *DB) graphOf(entities []Entity) (*Graph, error) {
	g := &Graph{Entities: entities, Relations: []Relation{}}
	if len(entities) == 0 {
		return g, nil
	}

	ids := make([]any, len(entities))
	for i := range entities {
		obs, err := db.EntityObservations(entities[i].ID, 0)
		if err != nil {
			return nil, err
		}
		entities[i].Observations = obs
		ids[i] = entities[i].ID
	}

	in := placeholderList(len(ids))
	rows, err := db.Query(`
		SELECT s.name, t.name, r.relation_type
		FROM relations r
		JOIN entities s ON s.id = r.from_id
		JOIN entities t ON t.id = r.to_id
		WHERE r.from_id IN (`+in+`) AND r.to_id IN (`+in+`)
		ORDER BY r.id
	`, append(ids, ids...)...)
	if err != nil {
		return nil, fmt.Errorf("graph relations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r Relation
		if err := rows.Scan(&r.From, &r.To, &r.RelationType); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		g.Relations = append(g.Relations, r)
	}
	return g, rows.Err()
}

func placeholderList(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
