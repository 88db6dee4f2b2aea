package components

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// Markdown renders professor replies for the terminal. Renderers are
// rebuilt only when the wrap width changes.
type Markdown struct {
	width    int
	renderer *glamour.TermRenderer
}

// Render returns md rendered at width. If rendering fails the raw text is
// returned so nothing the professor said is lost.
func (m *Markdown) Render(md string, width int) string {
	if width < 20 {
		width = 20
	}
	if m.renderer == nil || m.width != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return md
		}
		m.renderer, m.width = r, width
	}
	out, err := m.renderer.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}
