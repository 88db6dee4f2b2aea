package home

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
	"github.com/profacademy/profacademy/internal/screens/curriculum"
	"github.com/profacademy/profacademy/internal/ui/components"
	"github.com/profacademy/profacademy/internal/ui/theme"
)

const title = `╔═╗┬─┐┌─┐┌─┐  ╔═╗┌─┐┌─┐┌┬┐┌─┐┌┬┐┬ ┬
╠═╝├┬┘│ │├┤   ╠═╣│  ├─┤ ││├┤ │││└┬┘
╩  ┴└─└─┘└    ╩ ╩└─┘┴ ┴─┴┘└─┘┴ ┴ ┴ `

const titleCompact = "P R O F   A C A D E M Y"

// HomeScreen lets the learner pick a programming language.
type HomeScreen struct {
	deps   screen.Deps
	menu   components.Menu
	ledger progress.Ledger
	demo   bool
}

var _ screen.Screen = (*HomeScreen)(nil)

// New creates the home screen. demo marks that the built-in demo
// professor answers instead of a real model.
func New(deps screen.Deps, demo bool) *HomeScreen {
	h := &HomeScreen{deps: deps, demo: demo}
	h.reload()
	return h
}

// reload rebuilds the menu from the catalog and the stored progress.
func (h *HomeScreen) reload() {
	h.ledger = h.deps.Progress.Load(context.Background())

	items := make([]components.MenuItem, 0, len(h.deps.Catalog.Languages)+1)
	for i := range h.deps.Catalog.Languages {
		lang := &h.deps.Catalog.Languages[i]
		item := components.MenuItem{
			Label:    fmt.Sprintf("%-12s %s", lang.Name, lang.Professor),
			Disabled: !lang.Enabled,
		}
		if !lang.Enabled {
			item.Note = "bald verfügbar"
		} else {
			item.Note = completedNote(h.ledger, lang)
			item.Action = func() tea.Cmd {
				return func() tea.Msg {
					return router.PushScreenMsg{Screen: curriculum.New(h.deps, lang)}
				}
			}
		}
		items = append(items, item)
	}
	items = append(items, components.MenuItem{Label: "Beenden", Action: func() tea.Cmd { return tea.Quit }})

	selected := h.menu.Selected
	h.menu = components.NewMenu(items)
	if selected > 0 && selected < len(items) && !items[selected].Disabled {
		h.menu.Selected = selected
	}
}

func completedNote(l progress.Ledger, lang *catalog.Language) string {
	lp := l[lang.Key]
	if lp == nil {
		return ""
	}
	total := 0
	for _, c := range lang.Categories {
		total += len(c.Modules)
	}
	return fmt.Sprintf("%d/%d Module", len(lp.CompletedModules), total)
}

// Init refreshes progress; it runs again when the learner comes back.
func (h *HomeScreen) Init() tea.Cmd {
	h.reload()
	return nil
}

func (h *HomeScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	var cmd tea.Cmd
	h.menu, cmd = h.menu.Update(msg)
	return h, cmd
}

func (h *HomeScreen) mood() Mood {
	for _, lp := range h.ledger {
		for _, cp := range lp.Categories {
			if cp.Level >= progress.MaxLevel {
				return MoodProud
			}
		}
	}
	return MoodIdle
}

func (h *HomeScreen) View(width, height int) string {
	compact := width < 100 || height < 24

	var sections []string
	banner := title
	if compact {
		banner = titleCompact
	}
	sections = append(sections, theme.Title.Width(width).Render(banner))
	if !compact {
		sections = append(sections, lipgloss.PlaceHorizontal(width, lipgloss.Center, RenderProfessor(h.mood())))
	}
	sections = append(sections, theme.Subtitle.Width(width).Render("Wähle eine Sprache. Dein Professor wartet schon."))
	if h.demo {
		sections = append(sections, lipgloss.NewStyle().Width(width).Align(lipgloss.Center).Foreground(theme.Accent).
			Render("Demo-Modus: kein API-Schlüssel gefunden"))
	}
	sections = append(sections, lipgloss.PlaceHorizontal(width, lipgloss.Center, theme.Card.Render(h.menu.View())))

	return strings.Join(sections, "\n\n")
}

func (h *HomeScreen) Title() string {
	return "Start"
}
