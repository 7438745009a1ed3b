package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/pipevine/pipevine/pkg/errors"
	"github.com/pipevine/pipevine/pkg/workflow"
)

// Entry records one successful node execution: the materialized outputs and
// when they were produced. Entries are created on first successful execution
// of a key and invalidated only when the key's inputs change (which yields a
// different key).
type Entry struct {
	Key       Key
	NodeID    string
	Outputs   map[string]interface{}
	CreatedAt time.Time
}

// Store is the persistent hash store. It is shared mutable state across
// scheduler workers, so lookups and inserts are serialized: a mutex guards
// the single SQLite connection and each insert runs in its own transaction.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	key        TEXT PRIMARY KEY,
	node_id    TEXT NOT NULL,
	outputs    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_node_id ON entries(node_id);
`

// Open opens (or creates) the store under the given cache directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	dbPath := filepath.Join(dir, "pipevine.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the entry recorded for a key, if any.
func (s *Store) Lookup(key Key) (*Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT node_id, outputs, created_at FROM entries WHERE key = ?`, string(key))

	var nodeID, outputsJSON, createdAt string
	if err := row.Scan(&nodeID, &outputsJSON, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to look up cache entry: %w", err)
	}

	var outputs map[string]interface{}
	if err := json.Unmarshal([]byte(outputsJSON), &outputs); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached outputs: %w", err)
	}
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		created = time.Time{}
	}

	return &Entry{Key: key, NodeID: nodeID, Outputs: outputs, CreatedAt: created}, true, nil
}

// Record persists an entry, replacing any previous entry for the same key.
// INSERT OR REPLACE keeps the operation idempotent when two workers race to
// record the same key.
func (s *Store) Record(entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cannot record nil cache entry")
	}

	outputsJSON, err := json.Marshal(entry.Outputs)
	if err != nil {
		return fmt.Errorf("failed to encode outputs for caching: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin cache transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(
		`INSERT OR REPLACE INTO entries (key, node_id, outputs, created_at) VALUES (?, ?, ?, ?)`,
		string(entry.Key), entry.NodeID, string(outputsJSON), entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record cache entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache entry: %w", err)
	}
	return nil
}

// Forget removes every entry recorded for a node identity. Used by callers
// that want to force recomputation of a node regardless of provenance.
func (s *Store) Forget(nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM entries WHERE node_id = ?`, nodeID); err != nil {
		return fmt.Errorf("failed to forget cache entries for %s: %w", nodeID, err)
	}
	return nil
}

// VerifyArtifacts checks that every file artifact recorded in an entry still
// exists and is readable. A dangling entry is never trusted: callers treat
// the returned CacheCorruptionError as a miss and re-execute.
func VerifyArtifacts(entry *Entry, sig *workflow.Signature) error {
	for _, spec := range sig.Outputs() {
		if !spec.Type.IsFileType() {
			continue
		}
		value, ok := entry.Outputs[spec.Name]
		if !ok {
			return &errors.CacheCorruptionError{Key: string(entry.Key), NodeID: entry.NodeID, Path: spec.Name}
		}
		for _, path := range artifactPaths(value) {
			if _, err := os.Stat(path); err != nil {
				return &errors.CacheCorruptionError{Key: string(entry.Key), NodeID: entry.NodeID, Path: path}
			}
		}
	}
	return nil
}

// artifactPaths extracts the on-disk paths from a file or filelist value.
// JSON round-trips turn string slices into []interface{}, so both shapes are
// handled.
func artifactPaths(value interface{}) []string {
	switch v := value.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		paths := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				paths = append(paths, s)
			}
		}
		return paths
	default:
		return nil
	}
}
