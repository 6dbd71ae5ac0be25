// Package watch periodically sweeps the workflow store and notifies about
// workflows that newly need operator attention. It never mutates workflow
// state; a paused workflow stays paused until an explicit resume.
package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/decisional/workflow-orchestrator/internal/domain"
	"github.com/decisional/workflow-orchestrator/internal/notify"
	"github.com/decisional/workflow-orchestrator/internal/store"
)

// Watcher sweeps all workflows on a cron schedule
type Watcher struct {
	store    *store.Store
	notifier notify.Notifier
	schedule cron.Schedule

	mu   sync.Mutex
	seen map[string]domain.Status // last status notified per workflow
}

// New creates a Watcher. cronExpr uses the standard five-field syntax.
func New(s *store.Store, n notify.Notifier, cronExpr string) (*Watcher, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", cronExpr, err)
	}
	return &Watcher{
		store:    s,
		notifier: n,
		schedule: sched,
		seen:     make(map[string]domain.Status),
	}, nil
}

// Sweep scans the store once and notifies for every workflow whose status
// changed to an attention state since the previous sweep. It returns the
// number of notifications sent.
func (w *Watcher) Sweep() (int, error) {
	workflows, err := w.store.List(store.ListOptions{})
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	sent := 0
	for _, wf := range workflows {
		prev, known := w.seen[wf.ID]
		w.seen[wf.ID] = wf.Status
		if known && prev == wf.Status {
			continue
		}

		var n notify.Notification
		switch wf.Status {
		case domain.StatusBlocked:
			n = notify.WorkflowBlocked(wf)
		case domain.StatusPaused:
			n = notify.WorkflowPaused(wf)
		case domain.StatusCompleted:
			n = notify.WorkflowCompleted(wf)
		case domain.StatusFailed:
			n = notify.WorkflowFailed(wf)
		default:
			continue
		}

		if err := w.notifier.Send(n); err != nil {
			fmt.Printf("Warning: notification failed for %s: %v\n", wf.ID, err)
			continue
		}
		sent++
	}
	return sent, nil
}

// NextRun returns the next scheduled sweep time
func (w *Watcher) NextRun() time.Time {
	return w.schedule.Next(time.Now())
}

// Run sweeps on the schedule until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	for {
		next := w.schedule.Next(time.Now())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(next)):
			if _, err := w.Sweep(); err != nil {
				fmt.Printf("Warning: sweep failed: %v\n", err)
			}
		}
	}
}
