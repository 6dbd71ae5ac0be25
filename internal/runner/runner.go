// Package runner launches external agent processes and converts their
// status-protocol output into a typed outcome. It owns process lifecycle
// and log capture; interpreting artifacts is the engine's job.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/decisional/workflow-orchestrator/internal/domain"
	"github.com/decisional/workflow-orchestrator/internal/protocol"
)

// OutcomeKind tags the result of one agent invocation
type OutcomeKind string

const (
	Completed OutcomeKind = "completed"
	Blocked   OutcomeKind = "blocked"
	Errored   OutcomeKind = "errored"
	TimedOut  OutcomeKind = "timed_out"
	Canceled  OutcomeKind = "canceled"
)

// Outcome is the tagged result of one agent invocation
type Outcome struct {
	Kind        OutcomeKind
	ArtifactRef string   // output file reported on completion
	Message     string   // free-text message from the agent
	Question    string   // set when Kind is Blocked
	Options     []string // set when Kind is Blocked
	Reason      string   // set when Kind is Errored or TimedOut
}

// Command is the program an agent role maps to
type Command struct {
	Program string
	Args    []string
}

// Invocation describes one agent run. The working directory is exclusively
// owned by this invocation until Run returns.
type Invocation struct {
	Role    domain.Role
	WorkDir string
	Prompt  string
	LogPath string
	Timeout time.Duration

	// OnStart is called with the agent's PID once the process is up,
	// so callers can persist it for out-of-band cancellation.
	OnStart func(pid int)
}

// Runner starts agent processes per an explicit role-to-command mapping
type Runner struct {
	commands map[domain.Role]Command
	interval time.Duration
}

// New creates a Runner. interval is the status-file poll interval.
func New(commands map[domain.Role]Command, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Runner{commands: commands, interval: interval}
}

// Run starts the agent for inv.Role in inv.WorkDir and blocks until it
// reports a final status, times out, or exits without one. The status file
// from any previous attempt is cleared first and the consumed one is
// archived, so a retry can never act on stale output.
func (r *Runner) Run(ctx context.Context, inv Invocation) (Outcome, error) {
	command, ok := r.commands[inv.Role]
	if !ok {
		return Outcome{}, fmt.Errorf("no command configured for role %s", inv.Role)
	}

	if err := protocol.ClearStatus(inv.WorkDir); err != nil {
		return Outcome{}, fmt.Errorf("clearing stale status: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	args := append(append([]string{}, command.Args...), inv.Prompt)
	cmd := exec.CommandContext(ctx, command.Program, args...)
	cmd.Dir = inv.WorkDir
	// The agent leads its own process group so that helpers it spawns can
	// be killed with it; otherwise they hold the log pipes open and the
	// copier goroutines never finish
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	logFile, err := os.OpenFile(inv.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return Outcome{}, fmt.Errorf("opening agent log: %w", err)
	}
	defer logFile.Close()
	fmt.Fprintf(logFile, "=== %s started at %s ===\n", inv.Role, time.Now().UTC().Format(time.RFC3339))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Outcome{}, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Outcome{}, err
	}

	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("starting %s agent: %w", inv.Role, err)
	}
	if inv.OnStart != nil {
		inv.OnStart(cmd.Process.Pid)
	}

	tail := newLogStreamer(logFile)
	var wg sync.WaitGroup
	wg.Add(2)
	go tail.copy(&wg, stdout)
	go tail.copy(&wg, stderr)

	exited := make(chan error, 1)
	go func() {
		wg.Wait()
		exited <- cmd.Wait()
	}()

	status, waitErr := protocol.Await(ctx, inv.WorkDir, inv.Timeout, r.interval)

	// The agent has signalled (or never will); stop its whole process
	// group so lingering children release the pipes
	cancel()
	if cmd.Process != nil {
		syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	exitErr := <-exited

	if waitErr != nil {
		if errors.Is(waitErr, context.Canceled) {
			return Outcome{Kind: Canceled, Reason: waitErr.Error()}, waitErr
		}
		var timeout *protocol.ErrTimeout
		if errors.As(waitErr, &timeout) && timeout.Malformed {
			return Outcome{Kind: Errored, Reason: "unparseable status file"},
				&domain.ProtocolError{Role: inv.Role, Reason: "status file never parsed"}
		}
		// The process exiting without a status file is a protocol
		// violation, not a timeout
		if exitErr != nil && !isKilled(exitErr) {
			reason := fmt.Sprintf("agent exited without status file: %v (last output: %s)", exitErr, tail.lastLine())
			return Outcome{Kind: Errored, Reason: reason}, nil
		}
		return Outcome{Kind: TimedOut, Reason: waitErr.Error()},
			&domain.TimeoutError{Role: inv.Role, Timeout: inv.Timeout}
	}

	switch status.Status {
	case protocol.StatusComplete:
		return Outcome{Kind: Completed, ArtifactRef: status.OutputFile, Message: status.Message}, nil
	case protocol.StatusBlocked:
		if status.Question == "" {
			return Outcome{Kind: Errored, Reason: "blocked status without question"},
				&domain.ProtocolError{Role: inv.Role, Reason: "blocked status without question"}
		}
		return Outcome{Kind: Blocked, Question: status.Question, Options: status.Options, Message: status.Message}, nil
	case protocol.StatusError:
		return Outcome{Kind: Errored, Reason: status.Message, Message: status.Message}, nil
	default:
		return Outcome{Kind: Errored, Reason: fmt.Sprintf("unknown status %q", status.Status)},
			&domain.ProtocolError{Role: inv.Role, Reason: fmt.Sprintf("unknown status %q", status.Status)}
	}
}

func isKilled(err error) bool {
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		return exit.ExitCode() == -1
	}
	return false
}

// logStreamer copies agent output to the log file, remembering the last
// line for error reporting
type logStreamer struct {
	mu   sync.Mutex
	w    io.Writer
	last string
}

func newLogStreamer(w io.Writer) *logStreamer {
	return &logStreamer{w: w}
}

func (l *logStreamer) copy(wg *sync.WaitGroup, r io.Reader) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		l.mu.Lock()
		l.last = line
		fmt.Fprintln(l.w, line)
		l.mu.Unlock()
	}
}

func (l *logStreamer) lastLine() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// ProcessRunning reports whether a previously recorded agent PID is alive
func ProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// KillProcess stops a recorded agent process, for workflow cancellation.
// The agent is its process group's leader, so the whole group goes with it.
func KillProcess(pid int) error {
	if !ProcessRunning(pid) {
		return nil
	}
	if err := syscall.Kill(-pid, syscall.SIGKILL); err == nil {
		return nil
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return process.Kill()
}
