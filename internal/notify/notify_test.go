package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/decisional/workflow-orchestrator/internal/domain"
)

func TestSlackNotifier_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(Notification{
		Title:   "Test",
		Message: "Test message",
		Kind:    KindInfo,
	})

	if err != nil {
		t.Errorf("Send failed: %v", err)
	}
}

func TestSlackNotifier_EmptyWebhookDisabled(t *testing.T) {
	notifier := NewSlackNotifier("")
	if err := notifier.Send(Notification{Title: "Test"}); err != nil {
		t.Errorf("disabled notifier returned error: %v", err)
	}
}

func TestKindColors(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindSuccess, "good"},
		{KindWarning, "warning"},
		{KindError, "danger"},
		{KindInfo, "#439FE0"},
	}

	for _, tt := range tests {
		got := SlackColor(tt.kind)
		if got != tt.want {
			t.Errorf("SlackColor(%v) = %s, want %s", tt.kind, got, tt.want)
		}
	}
}

func TestMulti(t *testing.T) {
	var called []string

	mock1 := &mockNotifier{name: "mock1", calls: &called}
	mock2 := &mockNotifier{name: "mock2", calls: &called}

	multi := NewMulti(mock1, mock2)
	multi.Send(Notification{Title: "Test"})

	if len(called) != 2 {
		t.Errorf("Expected 2 calls, got %d", len(called))
	}
}

func TestWorkflowBlocked(t *testing.T) {
	w := domain.NewWorkflow("T-1", 3)
	w.Transition(domain.PhasePlanning, domain.StatusRunning)
	w.Block("Which database?", []string{"postgres", "sqlite"})

	n := WorkflowBlocked(w)
	if n.Kind != KindWarning {
		t.Errorf("Kind = %v, want KindWarning", n.Kind)
	}
	if !strings.Contains(n.Message, "Which database?") || !strings.Contains(n.Message, "postgres") {
		t.Errorf("Message missing question or options: %q", n.Message)
	}
	if n.WorkflowID != w.ID {
		t.Errorf("WorkflowID = %s, want %s", n.WorkflowID, w.ID)
	}
}

func TestWorkflowCompletedCarriesPRURL(t *testing.T) {
	w := domain.NewWorkflow("T-1", 3)
	w.PRURL = "https://github.com/acme/repo/pull/7"

	n := WorkflowCompleted(w)
	if n.Kind != KindSuccess {
		t.Errorf("Kind = %v, want KindSuccess", n.Kind)
	}
	if n.PRURL != w.PRURL {
		t.Errorf("PRURL = %s, want %s", n.PRURL, w.PRURL)
	}
}

type mockNotifier struct {
	name  string
	calls *[]string
}

func (m *mockNotifier) Send(n Notification) error {
	*m.calls = append(*m.calls, m.name)
	return nil
}
