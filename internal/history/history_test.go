package history

import (
	"testing"

	"github.com/decisional/workflow-orchestrator/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_BeginAndFinish(t *testing.T) {
	s := newTestStore(t)

	w := domain.NewWorkflow("T-1", 3)
	w.Transition(domain.PhasePlanning, domain.StatusRunning)

	id, err := s.Begin(w, domain.RolePlanner, "/logs/planning.log")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Finish(id, "completed", "plan.md"); err != nil {
		t.Fatal(err)
	}

	invs, err := s.ForWorkflow(w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(invs) != 1 {
		t.Fatalf("invocation count = %d, want 1", len(invs))
	}
	inv := invs[0]
	if inv.Role != domain.RolePlanner || inv.Phase != domain.PhasePlanning {
		t.Errorf("role/phase = %s/%s", inv.Role, inv.Phase)
	}
	if inv.Outcome != "completed" || inv.Detail != "plan.md" {
		t.Errorf("outcome = %q detail = %q", inv.Outcome, inv.Detail)
	}
	if inv.FinishedAt == nil {
		t.Error("FinishedAt not set after Finish")
	}
}

func TestStore_CountByRole(t *testing.T) {
	s := newTestStore(t)

	w := domain.NewWorkflow("T-1", 3)
	w.Transition(domain.PhasePlanning, domain.StatusRunning)
	if _, err := s.Begin(w, domain.RolePlanner, ""); err != nil {
		t.Fatal(err)
	}

	w.Transition(domain.PhaseExecuting, domain.StatusRunning)
	for i := 0; i < 2; i++ {
		if _, err := s.Begin(w, domain.RoleExecutor, ""); err != nil {
			t.Fatal(err)
		}
	}

	counts, err := s.CountByRole(w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if counts[domain.RolePlanner] != 1 || counts[domain.RoleExecutor] != 2 {
		t.Errorf("counts = %v, want planner:1 executor:2", counts)
	}
}

func TestStore_ForWorkflowScopesByID(t *testing.T) {
	s := newTestStore(t)

	a := domain.NewWorkflow("T-1", 3)
	a.Transition(domain.PhasePlanning, domain.StatusRunning)
	b := domain.NewWorkflow("T-2", 3)
	b.Transition(domain.PhasePlanning, domain.StatusRunning)

	if _, err := s.Begin(a, domain.RolePlanner, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Begin(b, domain.RolePlanner, ""); err != nil {
		t.Fatal(err)
	}

	invs, err := s.ForWorkflow(a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(invs) != 1 || invs[0].WorkflowID != a.ID {
		t.Errorf("ForWorkflow leaked rows: %v", invs)
	}
}
