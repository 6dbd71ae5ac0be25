// Package prompts provides the role prompt templates handed to agents,
// embedded with override support.
package prompts

import "embed"

//go:embed roles/*.md
var embeddedFS embed.FS
