package runner

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/decisional/workflow-orchestrator/internal/domain"
	"github.com/decisional/workflow-orchestrator/internal/protocol"
)

// shellRunner returns a Runner whose planner role runs the given shell
// script, standing in for a real agent process.
func shellRunner(script string) *Runner {
	return New(map[domain.Role]Command{
		domain.RolePlanner: {Program: "sh", Args: []string{"-c", script}},
	}, 20*time.Millisecond)
}

func invocation(t *testing.T, timeout time.Duration) Invocation {
	t.Helper()
	dir := t.TempDir()
	return Invocation{
		Role:    domain.RolePlanner,
		WorkDir: dir,
		Prompt:  "make a plan",
		LogPath: filepath.Join(dir, "agent.log"),
		Timeout: timeout,
	}
}

func TestRunner_Complete(t *testing.T) {
	r := shellRunner(`echo working; echo '{"status":"complete","output_file":"plan.md","message":"done"}' > .workflow-status.json`)
	inv := invocation(t, 5*time.Second)

	outcome, err := r.Run(context.Background(), inv)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Kind != Completed {
		t.Fatalf("Kind = %q, want completed (reason: %s)", outcome.Kind, outcome.Reason)
	}
	if outcome.ArtifactRef != "plan.md" {
		t.Errorf("ArtifactRef = %q, want plan.md", outcome.ArtifactRef)
	}

	// Output was captured to the log
	log, err := os.ReadFile(inv.LogPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(log), "working") {
		t.Errorf("log missing agent output: %q", log)
	}

	// Status file archived, never rereadable
	if _, err := os.Stat(filepath.Join(inv.WorkDir, protocol.StatusFile)); !os.IsNotExist(err) {
		t.Error("status file not archived after run")
	}
}

func TestRunner_Blocked(t *testing.T) {
	r := shellRunner(`echo '{"status":"blocked","question":"Which API version?","options":["v1","v2"]}' > .workflow-status.json; sleep 30`)
	inv := invocation(t, 5*time.Second)

	outcome, err := r.Run(context.Background(), inv)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Kind != Blocked {
		t.Fatalf("Kind = %q, want blocked", outcome.Kind)
	}
	if outcome.Question != "Which API version?" || len(outcome.Options) != 2 {
		t.Errorf("block info = %q %v", outcome.Question, outcome.Options)
	}
}

func TestRunner_AgentError(t *testing.T) {
	r := shellRunner(`echo '{"status":"error","message":"cannot clone repo"}' > .workflow-status.json`)
	inv := invocation(t, 5*time.Second)

	outcome, err := r.Run(context.Background(), inv)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Kind != Errored {
		t.Fatalf("Kind = %q, want errored", outcome.Kind)
	}
	if outcome.Reason != "cannot clone repo" {
		t.Errorf("Reason = %q", outcome.Reason)
	}
}

func TestRunner_Timeout(t *testing.T) {
	r := shellRunner(`sleep 30`)
	inv := invocation(t, 200*time.Millisecond)

	outcome, err := r.Run(context.Background(), inv)
	var timeout *domain.TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("error = %v, want *domain.TimeoutError", err)
	}
	if outcome.Kind != TimedOut {
		t.Errorf("Kind = %q, want timed_out", outcome.Kind)
	}
}

func TestRunner_ExitWithoutStatus(t *testing.T) {
	r := shellRunner(`echo about to crash; exit 3`)
	inv := invocation(t, 2*time.Second)

	outcome, err := r.Run(context.Background(), inv)
	if err != nil {
		t.Fatalf("unexpected hard error: %v", err)
	}
	if outcome.Kind != Errored {
		t.Fatalf("Kind = %q, want errored", outcome.Kind)
	}
	if !strings.Contains(outcome.Reason, "without status file") {
		t.Errorf("Reason = %q", outcome.Reason)
	}
}

func TestRunner_ClearsStaleStatus(t *testing.T) {
	// A leftover status file from the previous attempt must not be reread
	r := shellRunner(`sleep 30`)
	inv := invocation(t, 200*time.Millisecond)

	stale := []byte(`{"status":"complete","output_file":"plan.md"}`)
	if err := os.WriteFile(filepath.Join(inv.WorkDir, protocol.StatusFile), stale, 0644); err != nil {
		t.Fatal(err)
	}

	outcome, _ := r.Run(context.Background(), inv)
	if outcome.Kind == Completed {
		t.Error("runner acted on stale status file from a previous attempt")
	}
}

func TestRunner_ReturnsPromptlyWithLingeringChildren(t *testing.T) {
	// Helper processes the agent leaves behind hold the log pipes open;
	// the runner must not wait for them once the status is in
	r := shellRunner(`sleep 30 & echo '{"status":"blocked","question":"Which API version?"}' > .workflow-status.json; sleep 30`)
	inv := invocation(t, 20*time.Second)

	start := time.Now()
	outcome, err := r.Run(context.Background(), inv)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Kind != Blocked {
		t.Fatalf("Kind = %q, want blocked", outcome.Kind)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("Run took %s after the status was written", elapsed)
	}
}

func TestRunner_CallerCancellation(t *testing.T) {
	r := shellRunner(`sleep 30`)
	inv := invocation(t, 20*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	outcome, err := r.Run(ctx, inv)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if outcome.Kind != Canceled {
		t.Errorf("Kind = %q, want canceled", outcome.Kind)
	}
	var timeout *domain.TimeoutError
	if errors.As(err, &timeout) {
		t.Error("caller cancellation misreported as an agent timeout")
	}
}

func TestRunner_UnknownRole(t *testing.T) {
	r := shellRunner(`true`)
	inv := invocation(t, time.Second)
	inv.Role = domain.RoleReviewer

	if _, err := r.Run(context.Background(), inv); err == nil {
		t.Error("Run() accepted a role with no configured command")
	}
}

func TestRunner_OnStartReportsPID(t *testing.T) {
	r := shellRunner(`echo '{"status":"complete"}' > .workflow-status.json`)
	var pid int
	inv := invocation(t, 5*time.Second)
	inv.OnStart = func(p int) { pid = p }

	if _, err := r.Run(context.Background(), inv); err != nil {
		t.Fatal(err)
	}
	if pid == 0 {
		t.Error("OnStart never called with a PID")
	}
}

func TestProcessRunning(t *testing.T) {
	if !ProcessRunning(os.Getpid()) {
		t.Error("ProcessRunning(self) = false")
	}
	if ProcessRunning(0) {
		t.Error("ProcessRunning(0) = true")
	}
}

func TestKillProcess(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	pid := cmd.Process.Pid

	if !ProcessRunning(pid) {
		t.Fatal("ProcessRunning(live child) = false")
	}
	if err := KillProcess(pid); err != nil {
		t.Fatal(err)
	}
	cmd.Wait()
	if ProcessRunning(pid) {
		t.Error("process still running after KillProcess")
	}

	// Killing an already dead process is a no-op
	if err := KillProcess(pid); err != nil {
		t.Errorf("KillProcess(dead) = %v", err)
	}
}
