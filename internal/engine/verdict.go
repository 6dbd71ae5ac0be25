package engine

import (
	"fmt"
	"strings"

	"github.com/decisional/workflow-orchestrator/internal/domain"
)

// Verdict is the reviewer's decision about an implementation
type Verdict string

const (
	VerdictApprove        Verdict = "approve"
	VerdictRequestChanges Verdict = "request_changes"
)

// ParseVerdict reads the leading token of a review artifact,
// case-insensitively. Anything other than the known keywords is a protocol
// violation: defaulting to approve or reject here would hide a reviewer bug.
func ParseVerdict(content string) (Verdict, error) {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return "", &domain.ProtocolError{Role: domain.RoleReviewer, Reason: "empty verdict artifact"}
	}

	token := strings.ToLower(strings.Trim(fields[0], ":.,!"))
	switch token {
	case "approve":
		return VerdictApprove, nil
	case "request_changes", "needs_rework":
		return VerdictRequestChanges, nil
	}
	return "", &domain.ProtocolError{
		Role:   domain.RoleReviewer,
		Reason: fmt.Sprintf("unrecognized verdict %q", fields[0]),
	}
}
