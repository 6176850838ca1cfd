package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Store persists the catalog as a single JSON document on disk. Every read
// loads the whole document and every mutation rewrites it. All writes are
// serialized through one process-wide mutex, so two concurrent mutations
// cannot lose each other's updates within this process.
type Store struct {
	path string
	seed func() (Database, error)
	mu   sync.Mutex
}

// NewStore creates a store backed by the JSON file at path. When the file
// does not exist, seed is called once to produce the initial snapshot.
func NewStore(path string, seed func() (Database, error)) *Store {
	return &Store{path: path, seed: seed}
}

// Init creates the data directory and forces the initial load so that
// seeding (and any corruption of an existing file) surfaces at startup.
func (s *Store) Init() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	_, err := s.Load()
	return err
}

// Load returns the current full snapshot, seeding and persisting it first if
// no snapshot exists yet.
func (s *Store) Load() (Database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Mutate runs fn against the current snapshot and persists the result.
// Load, mutation, and save happen under the store's single critical section.
// If fn returns an error, nothing is written and the error is returned.
func (s *Store) Mutate(fn func(db *Database) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(&db); err != nil {
		return err
	}
	return s.save(db)
}

func (s *Store) load() (Database, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		db, err := s.seed()
		if err != nil {
			return Database{}, fmt.Errorf("failed to build seed data: %w", err)
		}
		if err := s.save(db); err != nil {
			return Database{}, err
		}
		slog.Info("seeded catalog database", "path", s.path,
			"users", len(db.Users), "apps", len(db.Apps))
		return db, nil
	}
	if err != nil {
		return Database{}, fmt.Errorf("failed to read database: %w", err)
	}

	var db Database
	if err := json.Unmarshal(raw, &db); err != nil {
		return Database{}, fmt.Errorf("failed to parse database: %w", err)
	}
	return db, nil
}

// save replaces the whole document. The write goes to a temp file in the same
// directory followed by a rename, so readers never observe a partial file.
func (s *Store) save(db Database) error {
	raw, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode database: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("failed to write database: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace database: %w", err)
	}
	return nil
}
