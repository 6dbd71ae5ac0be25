// Package ticket fetches work item content from the issue tracker via the
// gh CLI and snapshots it into the workflow directory.
package ticket

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Issue is the subset of tracker fields the workflow needs
type Issue struct {
	Number int
	Title  string
	Body   string
	Labels []string
}

type ghIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

func parseIssue(data []byte) (*Issue, error) {
	var gh ghIssue
	if err := json.Unmarshal(data, &gh); err != nil {
		return nil, fmt.Errorf("parse gh output: %w", err)
	}

	labels := make([]string, len(gh.Labels))
	for i, l := range gh.Labels {
		labels[i] = l.Name
	}
	return &Issue{Number: gh.Number, Title: gh.Title, Body: gh.Body, Labels: labels}, nil
}

// renderTicket produces the markdown snapshot agents read
func renderTicket(workItemID string, issue *Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", issue.Title)
	fmt.Fprintf(&b, "Ticket: %s\n", workItemID)
	if len(issue.Labels) > 0 {
		fmt.Fprintf(&b, "Labels: %s\n", strings.Join(issue.Labels, ", "))
	}
	fmt.Fprintf(&b, "\n%s\n", strings.TrimSpace(issue.Body))
	return b.String()
}

// Fetcher pulls issues from a GitHub repository via gh CLI
type Fetcher struct {
	repo string // owner/repo
}

// NewFetcher creates a Fetcher for a repository
func NewFetcher(repo string) *Fetcher {
	return &Fetcher{repo: repo}
}

// Fetch retrieves the issue and writes its markdown snapshot to destPath.
// It returns the issue title.
func (f *Fetcher) Fetch(ctx context.Context, workItemID, destPath string) (string, error) {
	num := strings.TrimPrefix(workItemID, "#")

	// gh issue view 123 --repo owner/repo --json number,title,body,labels
	args := []string{"issue", "view", num, "--json", "number,title,body,labels"}
	if f.repo != "" {
		args = append(args, "--repo", f.repo)
	}
	cmd := exec.CommandContext(ctx, "gh", args...)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("gh issue view %s: %w", workItemID, err)
	}

	issue, err := parseIssue(output)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(destPath, []byte(renderTicket(workItemID, issue)), 0644); err != nil {
		return "", fmt.Errorf("writing ticket snapshot: %w", err)
	}
	return issue.Title, nil
}
