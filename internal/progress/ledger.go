// Package progress tracks completed modules and per-category experience for
// every language the learner has opened.
package progress

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

const (
	XPPerModule = 100
	XPPerLevel  = 300
	MaxLevel    = 10

	// StorageKey is the key the whole ledger is stored under.
	StorageKey = "professorAcademyProgress_v2"
)

const completedModulesField = "completedModules"

// CategoryProgress is the level and experience within one category.
// XP stays below XPPerLevel; at MaxLevel it no longer grows.
type CategoryProgress struct {
	Level int `json:"level"`
	XP    int `json:"xp"`
}

// LanguageProgress is the learner's state for one language.
type LanguageProgress struct {
	CompletedModules []int
	Categories       map[string]*CategoryProgress
}

// MarshalJSON writes the stored layout, where categories sit next to
// completedModules in one flat object.
func (p LanguageProgress) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(p.Categories)+1)
	completed := p.CompletedModules
	if completed == nil {
		completed = []int{}
	}
	flat[completedModulesField] = completed
	for name, cp := range p.Categories {
		flat[name] = cp
	}
	return json.Marshal(flat)
}

func (p *LanguageProgress) UnmarshalJSON(b []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(b, &flat); err != nil {
		return err
	}
	p.CompletedModules = nil
	p.Categories = make(map[string]*CategoryProgress, len(flat))
	for key, raw := range flat {
		if key == completedModulesField {
			if err := json.Unmarshal(raw, &p.CompletedModules); err != nil {
				return fmt.Errorf("%s: %w", completedModulesField, err)
			}
			continue
		}
		var cp CategoryProgress
		if err := json.Unmarshal(raw, &cp); err != nil {
			return fmt.Errorf("category %q: %w", key, err)
		}
		p.Categories[key] = &cp
	}
	return nil
}

// Completed reports whether the module id was completed.
func (p *LanguageProgress) Completed(moduleID int) bool {
	return slices.Contains(p.CompletedModules, moduleID)
}

// Category returns the category's progress, or level 1 with no XP when
// the category was never initialised.
func (p *LanguageProgress) Category(name string) CategoryProgress {
	if cp, ok := p.Categories[name]; ok && cp != nil {
		return *cp
	}
	return CategoryProgress{Level: 1}
}

// Ledger maps language keys to progress.
type Ledger map[string]*LanguageProgress

// Completion describes the effect of completing a module.
type Completion struct {
	// Newly is false when the module had already been completed.
	Newly    bool
	LevelUp  bool
	Category string
	Level    int
	XP       int
}

// EnsureLanguage creates the language entry with every category at level 1
// if it does not exist yet. Categories missing from an existing entry are
// added; nothing already recorded changes.
func (l Ledger) EnsureLanguage(key string, categories []string) *LanguageProgress {
	p, ok := l[key]
	if !ok || p == nil {
		p = &LanguageProgress{CompletedModules: []int{}}
		l[key] = p
	}
	if p.Categories == nil {
		p.Categories = make(map[string]*CategoryProgress, len(categories))
	}
	for _, name := range categories {
		if _, ok := p.Categories[name]; !ok {
			p.Categories[name] = &CategoryProgress{Level: 1}
		}
	}
	return p
}

// Complete records moduleID as done in langKey and awards XP to category.
// Completing a module twice changes nothing. An empty category records the
// completion without XP.
func (l Ledger) Complete(langKey string, moduleID int, category string) Completion {
	p := l.EnsureLanguage(langKey, nil)
	if p.Completed(moduleID) {
		c := Completion{Category: category}
		if category != "" {
			cp := p.Category(category)
			c.Level, c.XP = cp.Level, cp.XP
		}
		return c
	}
	p.CompletedModules = append(p.CompletedModules, moduleID)

	c := Completion{Newly: true, Category: category}
	if category == "" {
		return c
	}

	cp, ok := p.Categories[category]
	if !ok || cp == nil {
		cp = &CategoryProgress{Level: 1}
		p.Categories[category] = cp
	}
	if cp.Level < MaxLevel {
		cp.XP += XPPerModule
		if cp.XP >= XPPerLevel {
			cp.Level++
			cp.XP = 0
			c.LevelUp = true
		}
	}
	c.Level, c.XP = cp.Level, cp.XP
	return c
}

// Locked reports whether the category at index is locked: every category
// after the first stays locked until the one before it reaches MaxLevel.
func (l Ledger) Locked(langKey string, categories []string, index int) bool {
	if index <= 0 || index >= len(categories) {
		return false
	}
	p, ok := l[langKey]
	if !ok || p == nil {
		return true
	}
	return p.Category(categories[index-1]).Level < MaxLevel
}

// ResetLanguage drops all progress for one language.
func (l Ledger) ResetLanguage(key string) {
	delete(l, key)
}

// Languages returns the language keys with progress, sorted.
func (l Ledger) Languages() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for k, p := range l {
		if p == nil {
			continue
		}
		cp := &LanguageProgress{
			CompletedModules: slices.Clone(p.CompletedModules),
			Categories:       make(map[string]*CategoryProgress, len(p.Categories)),
		}
		for name, c := range p.Categories {
			if c != nil {
				v := *c
				cp.Categories[name] = &v
			}
		}
		out[k] = cp
	}
	return out
}
