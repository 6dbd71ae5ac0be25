package domain

import (
	"fmt"
	"strings"
	"unicode"
)

const branchSlugMax = 50

// BranchName derives a git branch name from a work item's identifier and title
func BranchName(workItemID, title string) string {
	slug := slugify(title)
	if slug == "" {
		return fmt.Sprintf("feature/%s", workItemID)
	}
	return fmt.Sprintf("feature/%s-%s", workItemID, slug)
}

func slugify(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' {
			b.WriteRune(r)
		}
	}
	slug := strings.Join(strings.Fields(b.String()), "-")
	if len(slug) > branchSlugMax {
		slug = slug[:branchSlugMax]
		slug = strings.TrimRight(slug, "-")
	}
	return slug
}
