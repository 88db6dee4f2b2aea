package home

import (
	"charm.land/lipgloss/v2"

	"github.com/profacademy/profacademy/internal/ui/theme"
)

// Mood selects which professor art to display.
type Mood int

const (
	MoodIdle  Mood = iota // Default
	MoodProud             // A category is at max level
)

const professorIdle = `  ___
 [___]
 (o o)
 ( ~ )  </>
 /| |\
`

const professorProud = `  ___
 [___]
 (^ ^)  ★
 ( ▿ )  </>
 \| |/
`

// RenderProfessor returns the professor ASCII art for the given mood.
func RenderProfessor(mood Mood) string {
	art, fg := professorIdle, theme.Primary
	if mood == MoodProud {
		art, fg = professorProud, theme.Accent
	}
	return lipgloss.NewStyle().
		Foreground(fg).
		Render(art)
}
