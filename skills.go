package axon

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// Skill is the indexed metadata of one on-disk skill package. Skills are
// knowledge packages, not tool bundles: the planner only tells the model that
// the skill exists and where to read it. Content stays on disk.
type Skill struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Path        string `json:"path"`
	Enabled     bool   `json:"enabled"`
	// DependenciesInstalled reports whether the package's declared binary
	// dependencies were found on PATH at discovery time.
	DependenciesInstalled bool `json:"dependencies_installed"`
}

// skillFrontmatter is the YAML block at the top of a SKILL.md file.
type skillFrontmatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Disabled    bool     `yaml:"disabled"`
	Requires    []string `yaml:"requires,omitempty"` // binaries that must exist on PATH
}

// skillEntryFile is the document the agent is pointed at for a skill.
const skillEntryFile = "SKILL.md"

// SkillRegistry indexes skill packages found under the configured directories.
// Read-only after Discover; safe for concurrent lookup.
type SkillRegistry struct {
	mu     sync.RWMutex
	byName map[string]*Skill
	logger *slog.Logger
}

// NewSkillRegistry creates an empty registry.
func NewSkillRegistry(logger *slog.Logger) *SkillRegistry {
	if logger == nil {
		logger = nopLogger
	}
	return &SkillRegistry{byName: make(map[string]*Skill), logger: logger}
}

// Discover scans each dir for <dir>/<skill>/SKILL.md packages and indexes
// their metadata. Later directories win name conflicts. Unreadable packages
// are skipped with a warning, never fatal.
func (r *SkillRegistry) Discover(dirs ...string) error {
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			r.logger.Debug("skill directory does not exist", "dir", dir)
			continue
		}
		if err != nil {
			return fmt.Errorf("scan skills in %s: %w", dir, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			skill, err := loadSkillMeta(path, entry.Name())
			if err != nil {
				r.logger.Warn("skipping unreadable skill", "path", path, "error", err)
				continue
			}
			r.mu.Lock()
			r.byName[skill.Name] = skill
			r.mu.Unlock()
			r.logger.Debug("skill discovered", "name", skill.Name, "path", path)
		}
	}
	return nil
}

// loadSkillMeta reads SKILL.md and extracts name and description from the
// YAML frontmatter, falling back to the first heading and paragraph of the
// markdown body when no frontmatter is present.
func loadSkillMeta(dir, fallbackName string) (*Skill, error) {
	data, err := os.ReadFile(filepath.Join(dir, skillEntryFile))
	if err != nil {
		return nil, err
	}

	fm, body := splitFrontmatter(data)
	skill := &Skill{
		ID:                    fallbackName,
		Name:                  fallbackName,
		Path:                  dir,
		Enabled:               true,
		DependenciesInstalled: true,
	}
	if len(fm) > 0 {
		var meta skillFrontmatter
		if err := yaml.Unmarshal(fm, &meta); err != nil {
			return nil, fmt.Errorf("parse frontmatter: %w", err)
		}
		if meta.Name != "" {
			skill.Name = meta.Name
		}
		skill.Description = meta.Description
		skill.Enabled = !meta.Disabled
		skill.DependenciesInstalled = binariesOnPath(meta.Requires)
	}
	if skill.Description == "" {
		title, para := extractMarkdownSummary(body)
		if title != "" && skill.Name == fallbackName {
			skill.Name = title
		}
		skill.Description = para
	}
	return skill, nil
}

// splitFrontmatter separates a leading "---\n...\n---" YAML block from the
// markdown body. Returns (nil, data) when no frontmatter is present.
func splitFrontmatter(data []byte) (fm, body []byte) {
	const fence = "---"
	s := string(data)
	if !strings.HasPrefix(s, fence+"\n") && !strings.HasPrefix(s, fence+"\r\n") {
		return nil, data
	}
	rest := s[len(fence):]
	rest = strings.TrimPrefix(rest, "\r\n")
	rest = strings.TrimPrefix(rest, "\n")
	end := strings.Index(rest, "\n"+fence)
	if end < 0 {
		return nil, data
	}
	fmStr := rest[:end]
	bodyStr := rest[end+1+len(fence):]
	bodyStr = strings.TrimPrefix(bodyStr, "\r\n")
	bodyStr = strings.TrimPrefix(bodyStr, "\n")
	return []byte(fmStr), []byte(bodyStr)
}

// extractMarkdownSummary parses the body and returns the first heading text
// and the first paragraph text.
func extractMarkdownSummary(body []byte) (title, para string) {
	doc := goldmark.New().Parser().Parse(gmtext.NewReader(body))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindHeading:
			if title == "" {
				title = nodeText(n, body)
			}
			return ast.WalkSkipChildren, nil
		case ast.KindParagraph:
			if para == "" {
				para = nodeText(n, body)
			}
			return ast.WalkSkipChildren, nil
		}
		if title != "" && para != "" {
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title, para
}

// nodeText collects the raw text of all text descendants of n.
func nodeText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(buf.String())
}

// lookPath is a seam for tests; production uses exec.LookPath.
var lookPath = exec.LookPath

// binariesOnPath reports whether every named binary resolves on PATH.
func binariesOnPath(bins []string) bool {
	for _, bin := range bins {
		if _, err := lookPath(bin); err != nil {
			return false
		}
	}
	return true
}

// Get returns the skill with the given name or id, or nil.
func (r *SkillRegistry) Get(name string) *Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.byName[name]; ok {
		return s
	}
	for _, s := range r.byName {
		if s.ID == name {
			return s
		}
	}
	return nil
}

// Has reports whether a skill with the given name exists.
func (r *SkillRegistry) Has(name string) bool {
	return r.Get(name) != nil
}

// ListMeta returns all indexed skills sorted by name.
func (r *SkillRegistry) ListMeta() []*Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	skills := make([]*Skill, 0, len(r.byName))
	for _, s := range r.byName {
		skills = append(skills, s)
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills
}

// Catalog renders the markdown block injected into system prompts: one line
// per enabled skill, naming its entry document so the model knows where to
// read. Returns "" when no skills are indexed.
func (r *SkillRegistry) Catalog() string {
	skills := r.ListMeta()
	var b strings.Builder
	for _, s := range skills {
		if !s.Enabled {
			continue
		}
		fmt.Fprintf(&b, "- **%s**: %s (read %s)\n",
			s.Name, s.Description, filepath.Join(s.Path, skillEntryFile))
	}
	if b.Len() == 0 {
		return ""
	}
	return "## Available skills\n\n" + b.String()
}
