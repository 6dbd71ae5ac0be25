package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/decisional/workflow-orchestrator/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "workflows"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestStore_CreateAndLoad(t *testing.T) {
	s := newTestStore(t)

	w := domain.NewWorkflow("T-1", 3)
	w.Title = "Fix login"
	if err := s.Create(w); err != nil {
		t.Fatal(err)
	}

	// Logs dir is allocated alongside the record
	if _, err := os.Stat(filepath.Join(s.Dir(w.ID), LogsDir)); err != nil {
		t.Errorf("logs dir not created: %v", err)
	}

	got, err := s.Load(w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.WorkItemID != "T-1" {
		t.Errorf("WorkItemID = %q, want T-1", got.WorkItemID)
	}
	if got.Phase != domain.PhaseInit || got.Status != domain.StatusRunning {
		t.Errorf("loaded state = %s/%s, want init/running", got.Phase, got.Status)
	}
	if got.Dir != s.Dir(w.ID) {
		t.Errorf("Dir = %q, want %q", got.Dir, s.Dir(w.ID))
	}
}

func TestStore_LoadMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load("wf_deadbeef")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestStore_SaveLeavesNoTempFiles(t *testing.T) {
	s := newTestStore(t)

	w := domain.NewWorkflow("T-1", 3)
	if err := s.Create(w); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		w.Transition(domain.PhasePlanning, domain.StatusRunning)
		if err := s.Save(w); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(s.Dir(w.ID))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestStore_SaveRoundTripsBlockState(t *testing.T) {
	s := newTestStore(t)

	w := domain.NewWorkflow("T-1", 3)
	if err := s.Create(w); err != nil {
		t.Fatal(err)
	}
	w.Transition(domain.PhasePlanning, domain.StatusRunning)
	w.Block("Which schema?", []string{"a", "b"})
	if err := s.Save(w); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusBlocked {
		t.Errorf("Status = %q, want blocked", got.Status)
	}
	if got.Question != "Which schema?" || len(got.Options) != 2 {
		t.Errorf("block info lost: %q %v", got.Question, got.Options)
	}
}

func TestStore_List(t *testing.T) {
	s := newTestStore(t)

	a := domain.NewWorkflow("T-1", 3)
	b := domain.NewWorkflow("T-2", 3)
	for _, w := range []*domain.Workflow{a, b} {
		if err := s.Create(w); err != nil {
			t.Fatal(err)
		}
	}

	b.Pause(&domain.PRError{Err: errors.New("push rejected")})
	b.UpdatedAt = time.Now().UTC().Add(time.Minute)
	if err := s.Save(b); err != nil {
		t.Fatal(err)
	}

	all, err := s.List(ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("List() count = %d, want 2", len(all))
	}
	if all[0].ID != b.ID {
		t.Errorf("List() order: first = %s, want most recently updated %s", all[0].ID, b.ID)
	}

	paused, err := s.List(ListOptions{Status: domain.StatusPaused})
	if err != nil {
		t.Fatal(err)
	}
	if len(paused) != 1 || paused[0].ID != b.ID {
		t.Errorf("List(paused) = %v, want just %s", paused, b.ID)
	}
}

func TestStore_PersistenceErrorType(t *testing.T) {
	s := newTestStore(t)

	// Saving a workflow whose directory was never created fails with a
	// PersistenceError, which callers must treat as fatal.
	w := domain.NewWorkflow("T-1", 3)
	err := s.Save(w)
	var perr *domain.PersistenceError
	if !errors.As(err, &perr) {
		t.Errorf("Save() error = %v, want *domain.PersistenceError", err)
	}
}
