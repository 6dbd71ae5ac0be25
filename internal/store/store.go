// Package store persists workflow records as JSON files, one directory
// per workflow, with atomic replace on every write.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/decisional/workflow-orchestrator/internal/domain"
)

const recordFile = "metadata.json"

// Well-known files inside a workflow directory
const (
	TicketFile         = "ticket.md"
	PlanFile           = "plan.md"
	ImplementationFile = "implementation.md"
	ReviewFile         = "review.md"
	LogsDir            = "logs"
)

// ErrNotFound is returned when a workflow id has no record on disk
var ErrNotFound = errors.New("workflow not found")

// Store reads and writes workflow records under a root directory
type Store struct {
	root string
}

// New creates a Store rooted at dir, creating it if needed
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating workflows dir: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the workflows root directory
func (s *Store) Root() string { return s.root }

// Dir returns the directory owned by a workflow
func (s *Store) Dir(id string) string {
	return filepath.Join(s.root, id)
}

// Create allocates the workflow's directory and writes its first record
func (s *Store) Create(w *domain.Workflow) error {
	dir := s.Dir(w.ID)
	if err := os.MkdirAll(filepath.Join(dir, LogsDir), 0755); err != nil {
		return &domain.PersistenceError{Path: dir, Err: err}
	}
	w.Dir = dir
	return s.Save(w)
}

// Save atomically replaces the workflow's record. A crash mid-write never
// leaves a torn record: the data lands in a temp file first, then renames
// over the old record.
func (s *Store) Save(w *domain.Workflow) error {
	path := filepath.Join(s.Dir(w.ID), recordFile)

	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return &domain.PersistenceError{Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(s.Dir(w.ID), recordFile+".tmp-*")
	if err != nil {
		return &domain.PersistenceError{Path: path, Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &domain.PersistenceError{Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &domain.PersistenceError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &domain.PersistenceError{Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &domain.PersistenceError{Path: path, Err: err}
	}
	return nil
}

// Load reads a workflow record by id
func (s *Store) Load(id string) (*domain.Workflow, error) {
	path := filepath.Join(s.Dir(id), recordFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var w domain.Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &w, nil
}

// ListOptions filters List results
type ListOptions struct {
	Status domain.Status
}

// List returns all workflows, newest activity first
func (s *Store) List(opts ListOptions) ([]*domain.Workflow, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("reading workflows dir: %w", err)
	}

	var workflows []*domain.Workflow
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		w, err := s.Load(entry.Name())
		if err != nil {
			// Skip directories that are not workflow records
			continue
		}
		if opts.Status != "" && w.Status != opts.Status {
			continue
		}
		workflows = append(workflows, w)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].UpdatedAt.After(workflows[j].UpdatedAt)
	})
	return workflows, nil
}

// ArtifactPath returns the path of a named artifact in the workflow's directory
func (s *Store) ArtifactPath(id, name string) string {
	return filepath.Join(s.Dir(id), name)
}
