package store

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// MemoryPath is the Path of a database opened with OpenMemory.
const MemoryPath = ":memory:"

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalid marks input missing a required field.
	ErrInvalid = errors.New("invalid input")
)

// connPragmas are applied by the driver to every pooled connection.
var connPragmas = []string{
	"foreign_keys(1)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"mmap_size(268435456)",
}

// DB is the recall SQLite database: documents, their vectors and the
// knowledge graph.
type DB struct {
	*sql.DB
	Path string
}

// DefaultDBPath returns ~/.recall/recall.db.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".recall", "recall.db"), nil
}

// Open opens or creates the database file at path and migrates it. An
// empty path means DefaultDBPath.
func Open(path string) (*DB, error) {
	if path == "" {
		var err error
		if path, err = DefaultDBPath(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return open(path, path, append([]string{"journal_mode(WAL)"}, connPragmas...), 0)
}

// OpenMemory opens a private in-memory database for tests and dry runs.
func OpenMemory() (*DB, error) {
	// Every pooled connection to :memory: would be a separate database.
	return open(MemoryPath, MemoryPath, connPragmas, 1)
}

func open(name, path string, pragmas []string, maxConns int) (*DB, error) {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	sqlDB, err := sql.Open("sqlite", name+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
	}

	db := &DB{DB: sqlDB, Path: path}
	if err := db.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connect sqlite %s: %w", path, err)
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}
