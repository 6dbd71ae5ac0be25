package protocol

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrTimeout reports that no final status appeared within the deadline
type ErrTimeout struct {
	Waited time.Duration
	// Malformed is set when a status file existed at the deadline but
	// never parsed, pointing at an agent-side protocol bug.
	Malformed bool
}

func (e *ErrTimeout) Error() string {
	if e.Malformed {
		return "status file present but unparseable at timeout"
	}
	return "no status file within " + e.Waited.String()
}

// Await blocks until the agent writes a final status file in dir, the
// timeout elapses, or ctx is cancelled. It watches the directory for
// changes and additionally polls at interval as a safety net, since the
// agent may run in a container whose mount does not propagate events.
// The consumed status file is archived before returning.
func Await(ctx context.Context, dir string, timeout, interval time.Duration) (*AgentStatus, error) {
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var events chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if err := watcher.Add(dir); err == nil {
			events = watcher.Events
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var sawMalformed bool
	check := func() (*AgentStatus, bool) {
		status, err := ReadStatus(dir)
		if err != nil {
			// Possibly a partial write; keep waiting
			sawMalformed = true
			return nil, false
		}
		sawMalformed = false
		if status == nil || !status.Final() {
			return nil, false
		}
		return status, true
	}

	// The file may already exist from an agent that finished quickly
	if status, ok := check(); ok {
		return status, ArchiveStatus(dir)
	}

	for {
		select {
		case <-ctx.Done():
			// A cancelled caller is not an agent timeout
			if err := parent.Err(); err != nil {
				return nil, err
			}
			return nil, &ErrTimeout{Waited: timeout, Malformed: sawMalformed}
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Base(event.Name) != StatusFile {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if status, ok := check(); ok {
				return status, ArchiveStatus(dir)
			}
		case <-ticker.C:
			if status, ok := check(); ok {
				return status, ArchiveStatus(dir)
			}
		}
	}
}

// AwaitResponse blocks until a human response file appears in dir. Unlike
// Await there is no timeout: a blocked workflow can stay blocked
// indefinitely. Cancellation comes only from ctx.
func AwaitResponse(ctx context.Context, dir string, interval time.Duration) (*Response, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if resp, err := ReadResponse(dir); err == nil && resp != nil {
			return resp, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
