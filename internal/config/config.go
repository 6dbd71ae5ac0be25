// Package config loads orchestrator configuration from a TOML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/decisional/workflow-orchestrator/internal/domain"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig          `toml:"general"`
	Git           GitConfig              `toml:"git"`
	Agents        map[string]AgentConfig `toml:"agents"`
	Review        ReviewConfig           `toml:"review"`
	Notifications NotificationsConfig    `toml:"notifications"`
	Watch         WatchConfig            `toml:"watch"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	WorkflowsDir        string `toml:"workflows_dir"`
	DatabasePath        string `toml:"database_path"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
}

// GitConfig identifies the repository workflows operate on
type GitConfig struct {
	Repo       string `toml:"repo"` // owner/repo, for gh
	BaseBranch string `toml:"base_branch"`
}

// AgentConfig maps one role to its external command
type AgentConfig struct {
	Command        string   `toml:"command"`
	Args           []string `toml:"args"`
	TimeoutMinutes int      `toml:"timeout_minutes"`
}

// ReviewConfig bounds the execute-review rework loop
type ReviewConfig struct {
	MaxIterations int `toml:"max_iterations"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// WatchConfig holds the watch command's sweep schedule
type WatchConfig struct {
	Cron string `toml:"cron"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".workflow-orchestrator")
	return &Config{
		General: GeneralConfig{
			WorkflowsDir:        filepath.Join(base, "workflows"),
			DatabasePath:        filepath.Join(base, "history.db"),
			PollIntervalSeconds: 2,
		},
		Git: GitConfig{
			BaseBranch: "main",
		},
		Agents: map[string]AgentConfig{
			string(domain.RolePlanner):  {Command: "claude", Args: []string{"-p"}, TimeoutMinutes: 30},
			string(domain.RoleExecutor): {Command: "claude", Args: []string{"-p"}, TimeoutMinutes: 60},
			string(domain.RoleReviewer): {Command: "claude", Args: []string{"-p"}, TimeoutMinutes: 30},
		},
		Review: ReviewConfig{
			MaxIterations: domain.DefaultMaxIterations,
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
		Watch: WatchConfig{
			Cron: "*/5 * * * *",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults.
// A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.General.WorkflowsDir = ExpandPath(cfg.General.WorkflowsDir)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)

	return cfg, nil
}

// Timeout returns the configured timeout for a role, or zero when the role
// has no entry
func (c *Config) Timeout(role domain.Role) time.Duration {
	if a, ok := c.Agents[string(role)]; ok && a.TimeoutMinutes > 0 {
		return time.Duration(a.TimeoutMinutes) * time.Minute
	}
	return 0
}

// Timeouts returns the per-role timeout map for the engine
func (c *Config) Timeouts() map[domain.Role]time.Duration {
	out := make(map[domain.Role]time.Duration, len(c.Agents))
	for name := range c.Agents {
		role := domain.Role(name)
		if t := c.Timeout(role); t > 0 {
			out[role] = t
		}
	}
	return out
}

// PollInterval returns the status-file poll interval
func (c *Config) PollInterval() time.Duration {
	if c.General.PollIntervalSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.General.PollIntervalSeconds) * time.Second
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "workflow-orchestrator", "config.toml")
}
