package prompts

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/decisional/workflow-orchestrator/internal/domain"
)

// Loader manages role prompt templates with override support.
type Loader struct {
	overrideDirs []string // checked in priority order; first match wins
	cache        map[string]*template.Template
	metaCache    map[string]*TemplateMeta
	mu           sync.RWMutex
}

// TemplateMeta holds frontmatter metadata for a role template.
type TemplateMeta struct {
	Role        string `yaml:"role"`
	Description string `yaml:"description"`
}

// NewLoader creates a loader with the given override directories.
func NewLoader(overrideDirs ...string) *Loader {
	return &Loader{
		overrideDirs: overrideDirs,
		cache:        make(map[string]*template.Template),
		metaCache:    make(map[string]*TemplateMeta),
	}
}

// DefaultLoader creates a loader with the standard override path
// ~/.config/workflow-orchestrator/prompts/.
func DefaultLoader() *Loader {
	home, _ := os.UserHomeDir()
	return NewLoader(filepath.Join(home, ".config", "workflow-orchestrator", "prompts"))
}

func (l *Loader) loadContent(path string) ([]byte, error) {
	for _, dir := range l.overrideDirs {
		if data, err := os.ReadFile(filepath.Join(dir, path)); err == nil {
			return data, nil
		}
	}
	return fs.ReadFile(embeddedFS, path)
}

// parseFrontmatter splits content into frontmatter and body.
func parseFrontmatter(content []byte) (*TemplateMeta, string, error) {
	str := string(content)
	if !strings.HasPrefix(str, "---\n") {
		return nil, str, nil
	}

	end := strings.Index(str[4:], "\n---\n")
	if end == -1 {
		return nil, str, nil
	}

	var meta TemplateMeta
	if err := yaml.Unmarshal([]byte(str[4:4+end]), &meta); err != nil {
		return nil, "", fmt.Errorf("parse frontmatter: %w", err)
	}
	return &meta, str[4+end+5:], nil
}

// LoadTemplate loads and parses a template by path (e.g. "roles/planner.md").
func (l *Loader) LoadTemplate(path string) (*template.Template, *TemplateMeta, error) {
	l.mu.RLock()
	if tmpl, ok := l.cache[path]; ok {
		meta := l.metaCache[path]
		l.mu.RUnlock()
		return tmpl, meta, nil
	}
	l.mu.RUnlock()

	content, err := l.loadContent(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", path, err)
	}

	meta, body, err := parseFrontmatter(content)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}

	tmpl, err := template.New(path).Parse(body)
	if err != nil {
		return nil, nil, fmt.Errorf("compile template %s: %w", path, err)
	}

	l.mu.Lock()
	l.cache[path] = tmpl
	l.metaCache[path] = meta
	l.mu.Unlock()

	return tmpl, meta, nil
}

// RoleData holds the template variables for role prompts.
type RoleData struct {
	TicketFile    string
	PlanFile      string
	OutputFile    string
	FeedbackFile  string
	StatusFile    string
	ResponseFile  string
	Iteration     int
	MaxIterations int
	Response      string
}

// BuildRolePrompt loads and executes the prompt template for a role.
func (l *Loader) BuildRolePrompt(role domain.Role, data RoleData) (string, error) {
	path := filepath.Join("roles", string(role)+".md")
	tmpl, _, err := l.LoadTemplate(path)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute %s: %w", path, err)
	}
	return buf.String(), nil
}

// Meta returns the frontmatter metadata for a role's template.
func (l *Loader) Meta(role domain.Role) (*TemplateMeta, error) {
	_, meta, err := l.LoadTemplate(filepath.Join("roles", string(role)+".md"))
	return meta, err
}

// ClearCache clears the template cache.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	l.cache = make(map[string]*template.Template)
	l.metaCache = make(map[string]*TemplateMeta)
	l.mu.Unlock()
}
