// Package catalog holds the static lesson catalog: languages, their topic
// categories and modules, the shared tutoring pedagogy and every phrase the
// application sends to or shows from the professor.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultYAML []byte

// ErrUnknownLanguage is returned for a language key not in the catalog.
var ErrUnknownLanguage = errors.New("unknown language")

// ErrUnknownModule is returned for a module id not in the language.
var ErrUnknownModule = errors.New("unknown module")

// FormatMajor is the catalog format this build reads. Catalogs declaring
// another major version are rejected.
const FormatMajor = "v1"

// Catalog is read-only after loading.
type Catalog struct {
	// Format is the semantic version of the document layout. Empty means
	// the current format.
	Format    string     `yaml:"format"`
	Pedagogy  string     `yaml:"pedagogy"`
	Languages []Language `yaml:"languages"`
	Phrases   Phrases    `yaml:"phrases"`
}

// Language is one programming language the academy teaches.
type Language struct {
	Key           string     `yaml:"key"`
	Name          string     `yaml:"name"`
	Syntax        string     `yaml:"syntax"`
	Enabled       bool       `yaml:"enabled"`
	Professor     string     `yaml:"professor"`
	TaskFormat    string     `yaml:"task_format"`
	InitialPrompt string     `yaml:"initial_prompt"`
	Categories    []Category `yaml:"categories"`
}

// Category groups modules under one progress track.
type Category struct {
	Name    string   `yaml:"name"`
	Modules []Module `yaml:"modules"`
}

// Module is a single lesson.
type Module struct {
	ID    int    `yaml:"id"`
	Title string `yaml:"title"`
	Focus string `yaml:"focus"`
}

// Phrases are templates with {name} placeholders, filled by Fill.
type Phrases struct {
	CodeRun         string   `yaml:"code_run"`
	EditorContext   string   `yaml:"editor_context"`
	Interrupted     string   `yaml:"interrupted"`
	RateLimited     string   `yaml:"rate_limited"`
	Misconfigured   string   `yaml:"misconfigured"`
	Aborted         string   `yaml:"aborted"`
	GenericError    string   `yaml:"generic_error"`
	ModuleStart     string   `yaml:"module_start"`
	Continue        string   `yaml:"continue"`
	LevelUpNote     string   `yaml:"level_up_note"`
	ModuleCompleted string   `yaml:"module_completed"`
	LevelUp         string   `yaml:"level_up"`
	DebugStart      string   `yaml:"debug_start"`
	DebugStep       string   `yaml:"debug_step"`
	DebugStop       string   `yaml:"debug_stop"`
	Retrying        string   `yaml:"retrying"`
	ContinueCues    []string `yaml:"continue_cues"`
	TaskMarkers     []string `yaml:"task_markers"`
	CodeAnchors     []string `yaml:"code_anchors"`
}

// Default returns the embedded catalog. It panics if the embedded file is
// broken, which only a bad build can cause.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded catalog invalid: %v", err))
	}
	return c
}

// LoadFile reads a catalog override from path.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	var errs []string

	if c.Format != "" {
		switch {
		case !semver.IsValid(c.Format):
			errs = append(errs, fmt.Sprintf("format %q is not a semantic version", c.Format))
		case semver.Major(c.Format) != FormatMajor:
			errs = append(errs, fmt.Sprintf("format %s is not supported (want %s.x)", c.Format, FormatMajor))
		}
	}
	if len(c.Languages) == 0 {
		errs = append(errs, "no languages")
	}
	keys := make(map[string]bool, len(c.Languages))
	for _, l := range c.Languages {
		if l.Key == "" {
			errs = append(errs, fmt.Sprintf("language %q has no key", l.Name))
			continue
		}
		if keys[l.Key] {
			errs = append(errs, fmt.Sprintf("duplicate language key %q", l.Key))
		}
		keys[l.Key] = true

		if len(l.Categories) == 0 {
			errs = append(errs, fmt.Sprintf("language %q has no categories", l.Key))
		}
		ids := make(map[int]bool)
		cats := make(map[string]bool)
		for _, cat := range l.Categories {
			if cat.Name == "" || cat.Name == completedModulesKey {
				errs = append(errs, fmt.Sprintf("language %q has invalid category name %q", l.Key, cat.Name))
			}
			if cats[cat.Name] {
				errs = append(errs, fmt.Sprintf("language %q repeats category %q", l.Key, cat.Name))
			}
			cats[cat.Name] = true
			if len(cat.Modules) == 0 {
				errs = append(errs, fmt.Sprintf("category %q of %q has no modules", cat.Name, l.Key))
			}
			for _, m := range cat.Modules {
				if ids[m.ID] {
					errs = append(errs, fmt.Sprintf("language %q repeats module id %d", l.Key, m.ID))
				}
				ids[m.ID] = true
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid catalog: %s", strings.Join(errs, "; "))
	}
	return nil
}

// completedModulesKey is reserved by the progress ledger's stored layout.
const completedModulesKey = "completedModules"

// Language returns the language with the given key.
func (c *Catalog) Language(key string) (*Language, error) {
	for i := range c.Languages {
		if c.Languages[i].Key == key {
			return &c.Languages[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, key)
}

// CategoryNames returns the category names of a language in order.
func (l *Language) CategoryNames() []string {
	out := make([]string, len(l.Categories))
	for i, cat := range l.Categories {
		out[i] = cat.Name
	}
	return out
}

// Module returns the module with the given id and the index of its category.
func (l *Language) Module(id int) (Module, int, error) {
	for ci, cat := range l.Categories {
		for _, m := range cat.Modules {
			if m.ID == id {
				return m, ci, nil
			}
		}
	}
	return Module{}, -1, fmt.Errorf("%w: %d in %q", ErrUnknownModule, id, l.Key)
}

// CategoryOf returns the name of the category holding the module, or ""
// when the module is unknown.
func (c *Catalog) CategoryOf(langKey string, moduleID int) string {
	l, err := c.Language(langKey)
	if err != nil {
		return ""
	}
	_, ci, err := l.Module(moduleID)
	if err != nil {
		return ""
	}
	return l.Categories[ci].Name
}

// Module looks up a module by language key and id.
func (c *Catalog) Module(langKey string, id int) (Module, error) {
	l, err := c.Language(langKey)
	if err != nil {
		return Module{}, err
	}
	m, _, err := l.Module(id)
	return m, err
}

// SystemPrompt assembles the professor persona for a language.
func (c *Catalog) SystemPrompt(langKey string) (string, error) {
	l, err := c.Language(langKey)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## 🚀 **System Prompt: %s (Interactive Version)**\n\n", l.Professor)
	b.WriteString(strings.TrimSpace(c.Pedagogy))
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(l.TaskFormat))
	b.WriteString("\n")
	return b.String(), nil
}

// Fill replaces {name} placeholders in template. Pairs are name, value.
func Fill(template string, pairs ...string) string {
	if len(pairs) == 0 {
		return template
	}
	args := make([]string, 0, len(pairs))
	for i := 0; i+1 < len(pairs); i += 2 {
		args = append(args, "{"+pairs[i]+"}", pairs[i+1])
	}
	return strings.NewReplacer(args...).Replace(template)
}
