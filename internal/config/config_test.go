package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/decisional/workflow-orchestrator/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.Review.MaxIterations != 3 {
		t.Errorf("MaxIterations = %d, want 3", cfg.Review.MaxIterations)
	}
	if cfg.Git.BaseBranch != "main" {
		t.Errorf("BaseBranch = %q, want main", cfg.Git.BaseBranch)
	}
	if !cfg.Notifications.Desktop {
		t.Error("Desktop notifications should default on")
	}
	if cfg.PollInterval() != 2*time.Second {
		t.Errorf("PollInterval = %s, want 2s", cfg.PollInterval())
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
[general]
workflows_dir = "/data/workflows"
poll_interval_seconds = 5

[git]
repo = "acme/backend"
base_branch = "develop"

[review]
max_iterations = 5

[agents.executor]
command = "claude"
args = ["-p", "--dangerously-skip-permissions"]
timeout_minutes = 90
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.WorkflowsDir != "/data/workflows" {
		t.Errorf("WorkflowsDir = %q", cfg.General.WorkflowsDir)
	}
	if cfg.Git.Repo != "acme/backend" || cfg.Git.BaseBranch != "develop" {
		t.Errorf("Git = %+v", cfg.Git)
	}
	if cfg.Review.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d, want 5", cfg.Review.MaxIterations)
	}
	if cfg.Timeout(domain.RoleExecutor) != 90*time.Minute {
		t.Errorf("executor timeout = %s, want 90m", cfg.Timeout(domain.RoleExecutor))
	}
	if cfg.PollInterval() != 5*time.Second {
		t.Errorf("PollInterval = %s, want 5s", cfg.PollInterval())
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Review.MaxIterations != 3 {
		t.Errorf("MaxIterations = %d, want default 3", cfg.Review.MaxIterations)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("not = [valid"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() accepted malformed TOML")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/workflows", filepath.Join(home, "workflows")},
		{"/abs/path", "/abs/path"},
		{"relative", "relative"},
	}

	for _, tt := range tests {
		if got := ExpandPath(tt.input); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTimeouts(t *testing.T) {
	cfg := Default()
	timeouts := cfg.Timeouts()

	if timeouts[domain.RoleExecutor] != 60*time.Minute {
		t.Errorf("executor timeout = %s, want 60m", timeouts[domain.RoleExecutor])
	}
	if timeouts[domain.RolePlanner] != 30*time.Minute {
		t.Errorf("planner timeout = %s, want 30m", timeouts[domain.RolePlanner])
	}
}
