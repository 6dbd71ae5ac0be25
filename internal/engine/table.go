package engine

import "github.com/decisional/workflow-orchestrator/internal/domain"

// Outcome is the engine-level result of running one phase. Agent phases
// produce completed/blocked/errored/timed_out; the review phase refines a
// completed reviewer run into approved, changes_requested, or
// iteration_limit after reading the verdict artifact.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeBlocked          Outcome = "blocked"
	OutcomeErrored          Outcome = "errored"
	OutcomeTimedOut         Outcome = "timed_out"
	OutcomeApproved         Outcome = "approved"
	OutcomeChangesRequested Outcome = "changes_requested"
	OutcomeIterationLimit   Outcome = "iteration_limit"
)

// Transition is the state a workflow moves to after a phase outcome
type Transition struct {
	Phase  domain.Phase
	Status domain.Status
}

// transitions is the full state machine, keyed by (phase, outcome). A pair
// absent from the table is unreachable; hitting one is a bug, not an input
// error.
var transitions = map[domain.Phase]map[Outcome]Transition{
	domain.PhaseInit: {
		OutcomeCompleted: {domain.PhasePlanning, domain.StatusRunning},
		OutcomeErrored:   {domain.PhaseFailed, domain.StatusFailed},
	},
	domain.PhasePlanning: {
		OutcomeCompleted: {domain.PhaseExecuting, domain.StatusRunning},
		OutcomeBlocked:   {domain.PhasePlanning, domain.StatusBlocked},
		OutcomeErrored:   {domain.PhasePlanning, domain.StatusPaused},
		OutcomeTimedOut:  {domain.PhasePlanning, domain.StatusPaused},
	},
	domain.PhaseExecuting: {
		OutcomeCompleted: {domain.PhasePR, domain.StatusRunning},
		OutcomeBlocked:   {domain.PhaseExecuting, domain.StatusBlocked},
		OutcomeErrored:   {domain.PhaseExecuting, domain.StatusPaused},
		OutcomeTimedOut:  {domain.PhaseExecuting, domain.StatusPaused},
	},
	domain.PhasePR: {
		OutcomeCompleted: {domain.PhaseReviewing, domain.StatusRunning},
		OutcomeErrored:   {domain.PhasePR, domain.StatusPaused},
	},
	domain.PhaseReviewing: {
		OutcomeApproved:         {domain.PhaseCompleted, domain.StatusCompleted},
		OutcomeChangesRequested: {domain.PhaseExecuting, domain.StatusRunning},
		OutcomeIterationLimit:   {domain.PhaseReviewing, domain.StatusPaused},
		OutcomeBlocked:          {domain.PhaseReviewing, domain.StatusBlocked},
		OutcomeErrored:          {domain.PhaseReviewing, domain.StatusPaused},
		OutcomeTimedOut:         {domain.PhaseReviewing, domain.StatusPaused},
	},
}

// Next looks up the transition for a (phase, outcome) pair
func Next(phase domain.Phase, out Outcome) (Transition, bool) {
	next, ok := transitions[phase][out]
	return next, ok
}
