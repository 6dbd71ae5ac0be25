package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxIterations bounds the execute-review rework loop
const DefaultMaxIterations = 3

// Workflow tracks a single work item from ticket to pull request
type Workflow struct {
	ID         string `json:"id"`
	WorkItemID string `json:"workItemId"`

	Phase     Phase  `json:"phase"`
	Status    Status `json:"status"`
	Iteration int    `json:"iteration"`

	MaxIterations int `json:"maxIterations"`

	Error    string   `json:"error,omitempty"`
	Question string   `json:"question,omitempty"`
	Options  []string `json:"options,omitempty"`

	Title    string `json:"title,omitempty"`
	Branch   string `json:"branch,omitempty"`
	PRURL    string `json:"prUrl,omitempty"`
	PRNumber int    `json:"prNumber,omitempty"`

	// AgentPID is the last started agent process, for cancellation
	AgentPID int `json:"agentPid,omitempty"`

	Dir string `json:"dir"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewWorkflow creates a workflow in its initial phase
func NewWorkflow(workItemID string, maxIterations int) *Workflow {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	now := time.Now().UTC()
	return &Workflow{
		ID:            NewWorkflowID(),
		WorkItemID:    workItemID,
		Phase:         PhaseInit,
		Status:        StatusRunning,
		MaxIterations: maxIterations,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewWorkflowID generates a workflow identifier like wf_1a2b3c4d
func NewWorkflowID() string {
	return "wf_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// Transition moves the workflow to a new phase and status.
// A successfully starting phase clears any previous error.
func (w *Workflow) Transition(phase Phase, status Status) {
	w.Phase = phase
	w.Status = status
	if status == StatusRunning {
		w.Error = ""
	}
	w.UpdatedAt = time.Now().UTC()
}

// Pause records an error and suspends the workflow for operator action
func (w *Workflow) Pause(err error) {
	w.Status = StatusPaused
	w.Error = err.Error()
	w.UpdatedAt = time.Now().UTC()
}

// Fail moves the workflow to its terminal failed state
func (w *Workflow) Fail(reason string) {
	w.Phase = PhaseFailed
	w.Status = StatusFailed
	w.Error = reason
	w.UpdatedAt = time.Now().UTC()
}

// Block suspends the workflow on a question that needs a human answer
func (w *Workflow) Block(question string, options []string) {
	w.Status = StatusBlocked
	w.Question = question
	w.Options = options
	w.UpdatedAt = time.Now().UTC()
}

// Unblock clears the pending question after a response has been applied
func (w *Workflow) Unblock() {
	w.Status = StatusRunning
	w.Question = ""
	w.Options = nil
	w.UpdatedAt = time.Now().UTC()
}

// Blocked returns true while the workflow awaits a human response
func (w *Workflow) Blocked() bool {
	return w.Status == StatusBlocked
}

// Terminal returns true once the workflow can no longer make progress
func (w *Workflow) Terminal() bool {
	return w.Status == StatusCompleted || w.Status == StatusFailed
}

// AtIterationBound reports whether the workflow sits at its review
// iteration limit. Such a workflow needs an explicit override to run
// another review round.
func (w *Workflow) AtIterationBound() bool {
	return w.Phase == PhaseReviewing && w.Iteration >= w.MaxIterations
}

// Validate checks the record for fields no reachable state produces
func (w *Workflow) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("workflow has no id")
	}
	if w.Status == StatusBlocked && !w.Phase.AgentPhase() {
		return fmt.Errorf("workflow %s: blocked in non-agent phase %s", w.ID, w.Phase)
	}
	if w.Iteration > w.MaxIterations {
		return fmt.Errorf("workflow %s: iteration %d exceeds bound %d", w.ID, w.Iteration, w.MaxIterations)
	}
	return nil
}
