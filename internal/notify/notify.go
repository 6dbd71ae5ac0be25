// Package notify pushes workflow lifecycle events to humans. The engine
// reports blocks, pauses, and completions through a Notifier so an operator
// does not have to poll the CLI.
package notify

import (
	"fmt"
	"strings"

	"github.com/decisional/workflow-orchestrator/internal/domain"
)

// Kind classifies a notification for channel-specific rendering
type Kind int

const (
	KindInfo Kind = iota
	KindSuccess
	KindWarning
	KindError
)

// Notification is one human-facing event
type Notification struct {
	Title      string
	Message    string
	Kind       Kind
	WorkflowID string
	PRURL      string
}

// Notifier delivers notifications over one channel
type Notifier interface {
	Send(n Notification) error
}

// Multi fans a notification out to several channels. A failing channel does
// not stop the others; the last error is returned.
type Multi struct {
	notifiers []Notifier
}

// NewMulti creates a notifier that sends to all provided notifiers
func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *Multi) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Noop discards notifications (disabled config or tests)
type Noop struct{}

func (Noop) Send(n Notification) error { return nil }

// WorkflowBlocked builds the notification for a workflow waiting on a human
// answer
func WorkflowBlocked(w *domain.Workflow) Notification {
	msg := w.Question
	if len(w.Options) > 0 {
		msg = fmt.Sprintf("%s\nOptions: %s", w.Question, strings.Join(w.Options, ", "))
	}
	return Notification{
		Title:      fmt.Sprintf("Workflow %s blocked in %s", w.ID, w.Phase),
		Message:    msg,
		Kind:       KindWarning,
		WorkflowID: w.ID,
	}
}

// WorkflowPaused builds the notification for a workflow stopped by an error
func WorkflowPaused(w *domain.Workflow) Notification {
	return Notification{
		Title:      fmt.Sprintf("Workflow %s paused in %s", w.ID, w.Phase),
		Message:    w.Error,
		Kind:       KindError,
		WorkflowID: w.ID,
	}
}

// WorkflowCompleted builds the notification for a finished workflow
func WorkflowCompleted(w *domain.Workflow) Notification {
	return Notification{
		Title:      fmt.Sprintf("Workflow %s completed", w.ID),
		Message:    fmt.Sprintf("%s approved after %d rework cycle(s)", w.WorkItemID, w.Iteration),
		Kind:       KindSuccess,
		WorkflowID: w.ID,
		PRURL:      w.PRURL,
	}
}

// WorkflowFailed builds the notification for a terminally failed workflow
func WorkflowFailed(w *domain.Workflow) Notification {
	return Notification{
		Title:      fmt.Sprintf("Workflow %s failed", w.ID),
		Message:    w.Error,
		Kind:       KindError,
		WorkflowID: w.ID,
	}
}
