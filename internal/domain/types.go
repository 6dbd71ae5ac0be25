package domain

// Phase is a stage in a workflow's fixed sequence
type Phase string

const (
	PhaseInit      Phase = "init"
	PhasePlanning  Phase = "planning"
	PhaseExecuting Phase = "executing"
	PhasePR        Phase = "pr"
	PhaseReviewing Phase = "reviewing"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// Status represents the execution state of a workflow
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusBlocked   Status = "blocked"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Role identifies which agent a phase delegates to
type Role string

const (
	RolePlanner  Role = "planner"
	RoleExecutor Role = "executor"
	RoleReviewer Role = "reviewer"
)

// AgentPhase returns true if the phase delegates to an external agent
func (p Phase) AgentPhase() bool {
	switch p {
	case PhasePlanning, PhaseExecuting, PhaseReviewing:
		return true
	}
	return false
}

// Role returns the agent role for an agent phase
func (p Phase) Role() Role {
	switch p {
	case PhasePlanning:
		return RolePlanner
	case PhaseExecuting:
		return RoleExecutor
	case PhaseReviewing:
		return RoleReviewer
	}
	return ""
}

// Terminal returns true for phases that end a workflow
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}
