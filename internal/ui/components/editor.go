package components

import (
	"charm.land/bubbles/v2/textarea"
	tea "charm.land/bubbletea/v2"
)

// Editor is the learner's multi-line code buffer.
type Editor struct {
	Model textarea.Model
}

func NewEditor() Editor {
	ta := textarea.New()
	ta.ShowLineNumbers = true
	ta.Prompt = ""
	ta.CharLimit = 0
	ta.Placeholder = "# Dein Code..."
	return Editor{Model: ta}
}

func (e *Editor) Focus() tea.Cmd {
	return e.Model.Focus()
}

func (e *Editor) Blur() {
	e.Model.Blur()
}

func (e Editor) Focused() bool {
	return e.Model.Focused()
}

// SetSize sets the editor's inner dimensions.
func (e *Editor) SetSize(width, height int) {
	e.Model.SetWidth(width)
	e.Model.SetHeight(height)
}

func (e Editor) Value() string {
	return e.Model.Value()
}

// Replace sets the buffer contents. With toEnd the cursor moves to the end
// of the buffer, where a new task expects the learner's code.
func (e *Editor) Replace(code string, toEnd bool) {
	e.Model.SetValue(code)
	if toEnd {
		e.Model.MoveToEnd()
		e.Model.CursorEnd()
	}
}

func (e Editor) Update(msg tea.Msg) (Editor, tea.Cmd) {
	var cmd tea.Cmd
	e.Model, cmd = e.Model.Update(msg)
	return e, cmd
}

func (e Editor) View() string {
	return e.Model.View()
}
