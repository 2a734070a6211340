// Package artifact stores rendered chart artifacts: PNG files under a
// directory with a sqlite index keyed by opaque handle.
package artifact

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

// Artifact is one stored artifact. The ID is the opaque handle returned
// in tool results.
type Artifact struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title,omitempty"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// Store writes artifact bytes to disk and indexes them in sqlite.
type Store struct {
	db     *sql.DB
	dir    string
	logger *slog.Logger
}

// NewStore opens (or creates) the artifact directory and index.
func NewStore(dir, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open artifact index: %w", err)
	}

	s := &Store{db: db, dir: dir, logger: logger.With("component", "artifact")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("artifact index migration: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS artifacts (
			id         TEXT NOT NULL PRIMARY KEY,
			kind       TEXT NOT NULL,
			title      TEXT NOT NULL DEFAULT '',
			path       TEXT NOT NULL,
			created_at TEXT NOT NULL
		)
	`)
	return err
}

// Save writes data to a new file and records it in the index, returning
// the stored artifact with its opaque handle.
func (s *Store) Save(data []byte, kind, title string) (*Artifact, error) {
	id := uuid.NewString()

	ext := ".bin"
	if kind == "chart/png" {
		ext = ".png"
	}
	path := filepath.Join(s.dir, id+ext)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write artifact: %w", err)
	}

	a := &Artifact{
		ID:        id,
		Kind:      kind,
		Title:     title,
		Path:      path,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(`
		INSERT INTO artifacts (id, kind, title, path, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.ID, a.Kind, a.Title, a.Path, a.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		// Keep the index authoritative: remove the orphan file.
		os.Remove(path)
		return nil, fmt.Errorf("index artifact: %w", err)
	}

	s.logger.Debug("artifact saved", "id", a.ID, "kind", kind, "bytes", len(data))
	return a, nil
}

// Get returns the indexed artifact for an opaque handle, or nil if the
// handle is unknown.
func (s *Store) Get(id string) (*Artifact, error) {
	var a Artifact
	var createdAt string

	err := s.db.QueryRow(`
		SELECT id, kind, title, path, created_at FROM artifacts WHERE id = ?
	`, id).Scan(&a.ID, &a.Kind, &a.Title, &a.Path, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}

	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &a, nil
}

// Close closes the index database.
func (s *Store) Close() error {
	return s.db.Close()
}
