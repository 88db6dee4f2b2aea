package lesson

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/profacademy/profacademy/internal/actions"
	"github.com/profacademy/profacademy/internal/chat"
	"github.com/profacademy/profacademy/internal/tutor"
	"github.com/profacademy/profacademy/internal/ui/theme"
)

// Panels have a one-cell border and one column of padding on each side.
const (
	panelFrameW = 4
	panelFrameH = 2
	inputHeight = 3
)

func (l *LessonScreen) View(width, height int) string {
	statusLine := l.statusLine(width)
	height -= lipgloss.Height(statusLine)

	leftW := width * 11 / 20
	rightW := width - leftW

	left := l.leftColumn(leftW, height)
	right := l.rightColumn(rightW, height)

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, left, right),
		statusLine,
	)
}

// leftColumn stacks the editor over the terminal, or over the debugger
// while one is active.
func (l *LessonScreen) leftColumn(width, height int) string {
	editorH := height * 3 / 5
	lowerH := height - editorH

	l.editor.SetSize(max(10, width-panelFrameW), max(3, editorH-panelFrameH-1))
	editor := panel("Editor", l.editor.View(), width, editorH, l.focus == focusEditor)

	ws := l.state.Workspace
	var lower string
	if ws.Debugging || ws.Debugger != nil {
		lower = panel("Debugger", l.debuggerView(ws.Debugger, width-panelFrameW), width, lowerH, false)
	} else {
		out := tailLines(l.state.Terminal, max(1, lowerH-panelFrameH-1))
		lower = panel("Terminal", theme.TerminalText.Render(out), width, lowerH, false)
	}
	return lipgloss.JoinVertical(lipgloss.Left, editor, lower)
}

func (l *LessonScreen) rightColumn(width, height int) string {
	transcriptH := height - inputHeight
	innerW := width - panelFrameW

	body := tailLines(l.transcript(innerW), max(1, transcriptH-panelFrameH-1)+l.scroll)
	body = headLines(body, max(1, transcriptH-panelFrameH-1))
	transcript := panel(l.lang.Professor, body, width, transcriptH, false)

	l.input.SetWidth(max(10, innerW-2))
	input := panel("", l.input.View(), width, inputHeight, l.focus == focusInput)
	return lipgloss.JoinVertical(lipgloss.Left, transcript, input)
}

// transcript renders the chat history and the live preview. Professor
// replies go through markdown with their action blocks removed.
func (l *LessonScreen) transcript(width int) string {
	var parts []string
	for _, m := range l.state.History {
		parts = append(parts, l.renderMessage(m, width))
	}
	if l.state.Preview != "" {
		parts = append(parts, l.md.Render(actions.Strip(l.state.Preview), width))
	}
	if l.state.Workspace.ShowContinue && l.running == "" {
		parts = append(parts, l.button.View())
	}
	return strings.Join(parts, "\n\n")
}

func (l *LessonScreen) renderMessage(m chat.Message, width int) string {
	if m.Role == chat.RoleUser {
		label := theme.Selected.Render("Du")
		content := m.Content
		if m.Kind == chat.KindCode {
			content = theme.Hint.Render("[Code ausgeführt]")
		}
		return label + "\n" + lipgloss.NewStyle().Width(width).Render(content)
	}
	key := fmt.Sprintf("%s/%d", m.ID, width)
	if out, ok := l.rendered[key]; ok {
		return out
	}
	out := l.md.Render(actions.Strip(m.Content), width)
	l.rendered[key] = out
	return out
}

func (l *LessonScreen) debuggerView(d *actions.DebuggerState, width int) string {
	if d == nil {
		return theme.Hint.Render("Warte auf den ersten Schritt...")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d", theme.PanelTitle.Render("Zeile"), d.Line)
	if d.IsFinished {
		b.WriteString("  " + theme.Correct.Render("beendet"))
	}
	b.WriteString("\n")
	if d.Reason != "" {
		b.WriteString(lipgloss.NewStyle().Width(width).Render(d.Reason) + "\n")
	}
	if len(d.Variables) > 0 {
		b.WriteString("\n" + theme.PanelTitle.Render("Variablen") + "\n")
		for _, v := range d.Variables {
			fmt.Fprintf(&b, "  %s %s = %s\n", v.Name, theme.Hint.Render(v.Type), v.Value)
		}
	}
	if len(d.CallStack) > 0 {
		b.WriteString("\n" + theme.PanelTitle.Render("Aufrufstapel") + "\n")
		for _, f := range d.CallStack {
			b.WriteString("  " + f + "\n")
		}
	}
	if d.Output != "" {
		b.WriteString("\n" + theme.PanelTitle.Render("Ausgabe") + "\n")
		b.WriteString(theme.TerminalText.Render(d.Output))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (l *LessonScreen) statusLine(width int) string {
	var s string
	switch {
	case l.toast != "" && l.toastKind == tutor.ToastLevelUp:
		s = theme.ToastLevelUp.Render(l.toast)
	case l.toast != "":
		s = theme.ToastSuccess.Render(l.toast)
	case l.errMsg != "":
		s = theme.ToastError.Render(l.errMsg)
	}
	if l.running != "" {
		spin := l.spin.View() + " " + theme.Hint.Render("Der Professor denkt nach...")
		if s == "" {
			s = spin
		} else {
			s = spin + "  " + s
		}
	}
	return lipgloss.NewStyle().Width(width).Render(s)
}

func panel(title, body string, width, height int, focused bool) string {
	style := theme.Panel
	if focused {
		style = theme.PanelFocused
	}
	if title != "" {
		body = theme.PanelTitle.Render(title) + "\n" + body
	}
	return style.
		Width(width).
		Height(height).
		MaxHeight(height).
		Render(body)
}

// tailLines keeps the last n lines of s.
func tailLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

// headLines keeps the first n lines of s.
func headLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "\n")
}
