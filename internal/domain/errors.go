package domain

import (
	"fmt"
	"time"
)

// FetchError indicates the work item could not be retrieved during init
type FetchError struct {
	WorkItemID string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching work item %s: %v", e.WorkItemID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ProtocolError indicates a malformed status file or unparseable verdict
type ProtocolError struct {
	Role   Role
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s protocol violation: %s", e.Role, e.Reason)
}

// TimeoutError indicates an agent produced no status file within the phase timeout
type TimeoutError struct {
	Role    Role
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s agent timed out after %s", e.Role, e.Timeout)
}

// IterationLimitError indicates the rework loop hit its configured bound
type IterationLimitError struct {
	Iterations int
}

func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("max iterations reached (%d), needs human decision", e.Iterations)
}

// PersistenceError indicates a state store write failed. The orchestrator
// must not continue past one of these with in-memory state.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// PRError indicates the pull request collaborator failed
type PRError struct {
	Err error
}

func (e *PRError) Error() string { return fmt.Sprintf("pull request: %v", e.Err) }

func (e *PRError) Unwrap() error { return e.Err }

// AgentError wraps an unrecoverable failure reported by an agent
type AgentError struct {
	Role    Role
	Message string
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("%s agent error: %s", e.Role, e.Message)
}
