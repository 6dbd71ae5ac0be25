// Package pr creates and updates pull requests via the gh CLI. The create
// versus update decision belongs to the engine; this package just executes
// it, which is what keeps exactly one PR per workflow.
package pr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/decisional/workflow-orchestrator/internal/engine"
)

var prURLPattern = regexp.MustCompile(`https://github\.com/[^/\s]+/[^/\s]+/pull/(\d+)`)

// ParseURL extracts the PR reference from gh output
func ParseURL(s string) (engine.PR, bool) {
	match := prURLPattern.FindStringSubmatch(s)
	if match == nil {
		return engine.PR{}, false
	}
	number, err := strconv.Atoi(match[1])
	if err != nil {
		return engine.PR{}, false
	}
	return engine.PR{URL: match[0], Number: number}, true
}

// GH creates PRs with the gh CLI
type GH struct {
	baseBranch string
}

// NewGH creates a GH PR collaborator targeting baseBranch
func NewGH(baseBranch string) *GH {
	if baseBranch == "" {
		baseBranch = "main"
	}
	return &GH{baseBranch: baseBranch}
}

// CreateOrUpdate pushes the branch, then creates the PR on the first pass
// or refreshes its body on rework passes.
func (g *GH) CreateOrUpdate(ctx context.Context, req engine.PRRequest) (engine.PR, error) {
	if err := g.push(ctx, req); err != nil {
		return engine.PR{}, err
	}

	body := readBody(req.BodyFile)

	if req.Existing == "" {
		return g.create(ctx, req, body)
	}
	return g.update(ctx, req, body)
}

func (g *GH) push(ctx context.Context, req engine.PRRequest) error {
	cmd := exec.CommandContext(ctx, "git", "push", "-u", "origin", req.Branch)
	cmd.Dir = req.WorkDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git push: %s: %w", out, err)
	}
	return nil
}

func (g *GH) create(ctx context.Context, req engine.PRRequest, body string) (engine.PR, error) {
	cmd := exec.CommandContext(ctx, "gh", "pr", "create",
		"--title", req.Title,
		"--body", body,
		"--head", req.Branch,
		"--base", g.baseBranch,
	)
	cmd.Dir = req.WorkDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return engine.PR{}, fmt.Errorf("gh pr create: %s: %w", out, err)
	}

	// gh prints the PR URL as the last output line
	ref, ok := ParseURL(string(out))
	if !ok {
		return engine.PR{}, fmt.Errorf("no PR URL in gh output: %s", strings.TrimSpace(string(out)))
	}
	return ref, nil
}

func (g *GH) update(ctx context.Context, req engine.PRRequest, body string) (engine.PR, error) {
	ref, ok := ParseURL(req.Existing)
	if !ok {
		return engine.PR{}, fmt.Errorf("invalid existing PR reference %q", req.Existing)
	}

	cmd := exec.CommandContext(ctx, "gh", "pr", "edit", strconv.Itoa(ref.Number), "--body", body)
	cmd.Dir = req.WorkDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return engine.PR{}, fmt.Errorf("gh pr edit: %s: %w", out, err)
	}
	return ref, nil
}

// readBody reads the implementation summary for the PR body. A missing
// artifact degrades to a stub body rather than failing the phase.
func readBody(path string) string {
	data, err := os.ReadFile(path)
	if err != nil || len(strings.TrimSpace(string(data))) == 0 {
		return "Automated implementation; see commits for details."
	}
	return string(data)
}
