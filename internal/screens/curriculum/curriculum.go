// Package curriculum shows a language's categories with their level and XP
// and lets the learner open a module.
package curriculum

import (
	"context"
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/profacademy/profacademy/internal/catalog"
	"github.com/profacademy/profacademy/internal/progress"
	"github.com/profacademy/profacademy/internal/router"
	"github.com/profacademy/profacademy/internal/screen"
	"github.com/profacademy/profacademy/internal/screens/lesson"
	"github.com/profacademy/profacademy/internal/ui/components"
	"github.com/profacademy/profacademy/internal/ui/layout"
	"github.com/profacademy/profacademy/internal/ui/theme"
)

// entry is one selectable row. A zero module id is the free conversation.
type entry struct {
	moduleID  int
	title     string
	category  int
	locked    bool
	completed bool
}

// CurriculumScreen lists the modules of one language.
type CurriculumScreen struct {
	deps    screen.Deps
	lang    *catalog.Language
	ledger  progress.Ledger
	entries []entry
	cursor  int
}

var _ screen.Screen = (*CurriculumScreen)(nil)
var _ screen.KeyHintProvider = (*CurriculumScreen)(nil)
var _ screen.StatusProvider = (*CurriculumScreen)(nil)

func New(deps screen.Deps, lang *catalog.Language) *CurriculumScreen {
	c := &CurriculumScreen{deps: deps, lang: lang}
	c.reload()
	return c
}

func (c *CurriculumScreen) reload() {
	c.ledger = c.deps.Progress.Load(context.Background())
	lp := c.ledger[c.lang.Key]
	names := c.lang.CategoryNames()

	c.entries = c.entries[:0]
	c.entries = append(c.entries, entry{title: "Begrüßung & freies Gespräch", category: -1})
	for i, cat := range c.lang.Categories {
		locked := c.ledger.Locked(c.lang.Key, names, i)
		for _, m := range cat.Modules {
			c.entries = append(c.entries, entry{
				moduleID:  m.ID,
				title:     m.Title,
				category:  i,
				locked:    locked,
				completed: lp != nil && lp.Completed(m.ID),
			})
		}
	}
	if c.cursor >= len(c.entries) || c.entries[c.cursor].locked {
		c.cursor = 0
	}
}

// Init reloads progress so levels earned in a lesson show up on return.
func (c *CurriculumScreen) Init() tea.Cmd {
	c.reload()
	return nil
}

func (c *CurriculumScreen) Title() string {
	return c.lang.Name
}

func (c *CurriculumScreen) Status() string {
	return c.lang.Professor
}

func (c *CurriculumScreen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "↑↓", Description: "Modul wählen"},
		{Key: "Enter", Description: "Starten"},
		{Key: "Esc", Description: "Zurück"},
	}
}

func (c *CurriculumScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	kmsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return c, nil
	}
	switch kmsg.String() {
	case "up", "k":
		c.move(-1)
	case "down", "j":
		c.move(1)
	case "enter":
		e := c.entries[c.cursor]
		if e.locked {
			return c, nil
		}
		start := lesson.Greeting
		if e.moduleID != 0 {
			start = lesson.Module(e.moduleID)
		}
		next := lesson.New(c.deps, c.lang, start)
		return c, func() tea.Msg { return router.PushScreenMsg{Screen: next} }
	}
	return c, nil
}

// move steps the cursor over unlocked entries.
func (c *CurriculumScreen) move(delta int) {
	for i := c.cursor + delta; i >= 0 && i < len(c.entries); i += delta {
		if !c.entries[i].locked {
			c.cursor = i
			return
		}
	}
}

func (c *CurriculumScreen) View(width, height int) string {
	inner := width - 8
	if inner > 72 {
		inner = 72
	}
	lp := c.ledger[c.lang.Key]

	var b strings.Builder
	category := -2
	for i, e := range c.entries {
		if e.category != category {
			category = e.category
			if category >= 0 {
				b.WriteString("\n")
				b.WriteString(c.categoryHeader(category, lp, inner))
				b.WriteString("\n")
			}
		}
		b.WriteString(c.entryLine(e, i == c.cursor))
		b.WriteString("\n")
	}

	body := theme.Card.Width(inner + 4).Render(strings.TrimRight(b.String(), "\n"))
	return lipgloss.PlaceHorizontal(width, lipgloss.Center, body)
}

func (c *CurriculumScreen) categoryHeader(i int, lp *progress.LanguageProgress, width int) string {
	cat := c.lang.Categories[i]
	cp := progress.CategoryProgress{Level: 1}
	if lp != nil {
		cp = lp.Category(cat.Name)
	}

	name := theme.PanelTitle.Render(cat.Name)
	if c.ledger.Locked(c.lang.Key, c.lang.CategoryNames(), i) {
		return name + "  " + theme.Hint.Render("🔒 gesperrt bis zur Meisterschaft der vorigen Kategorie")
	}

	label := fmt.Sprintf("Lv %d", cp.Level)
	pct := float64(cp.XP) / float64(progress.XPPerLevel)
	if cp.Level >= progress.MaxLevel {
		label, pct = "Lv MAX", 1
	}
	bar := components.NewProgressBar(label, pct, false, width/2).View()
	xp := theme.Hint.Render(fmt.Sprintf(" %d/%d XP", cp.XP, progress.XPPerLevel))
	return name + "  " + bar + xp
}

func (c *CurriculumScreen) entryLine(e entry, selected bool) string {
	mark := "  "
	if e.completed {
		mark = theme.Correct.Render("✓ ")
	}
	label := e.title
	if e.moduleID != 0 {
		label = fmt.Sprintf("%3d  %s", e.moduleID, e.title)
	}
	switch {
	case e.locked:
		return "    " + mark + theme.Disabled.Render(label)
	case selected:
		return theme.Selected.Render("  ▸ ") + mark + theme.Selected.Render(label)
	default:
		return "    " + mark + theme.Unselected.Render(label)
	}
}
