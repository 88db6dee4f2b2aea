// Package workspace holds the learner's editor buffer and debugger view and
// applies the actions a professor reply dispatches to them.
package workspace

import (
	"regexp"
	"strings"

	"github.com/profacademy/profacademy/internal/actions"
	"github.com/profacademy/profacademy/internal/catalog"
)

// prefixRunes is how much of a snippet must already be in the editor for
// the snippet to count as a duplicate.
const prefixRunes = 30

var textBlockPattern = regexp.MustCompile("```text\\s*([\\s\\S]*?)(?:```|$)")

// Workspace is the editor and debugger state of one lesson session.
// It is not safe for concurrent use.
type Workspace struct {
	Code string

	// FocusGeneration increases whenever a new task replaces the editor,
	// so views know to move the cursor to the caret.
	FocusGeneration int

	Debugging bool
	Debugger  *actions.DebuggerState

	// ShowContinue is set when the last reply invited the learner to move
	// on to the next task.
	ShowContinue bool

	phrases catalog.Phrases
}

// New returns an empty workspace using the catalog's detection phrases.
func New(phrases catalog.Phrases) *Workspace {
	return &Workspace{phrases: phrases}
}

// Apply merges a dispatched action into the workspace.
func (w *Workspace) Apply(a actions.Action) {
	switch a := a.(type) {
	case actions.WriteCode:
		w.applyCode(a.Code)
	case actions.DebugStep:
		state := a.State
		w.Debugger = &state
		if state.IsFinished {
			w.Debugging = false
		}
	}
}

func (w *Workspace) applyCode(code string) {
	w.ShowContinue = false

	code = strings.TrimSpace(code)
	if code == "" {
		return
	}
	if w.isTask(code) {
		w.Code = code
		w.FocusGeneration++
		return
	}
	switch {
	case strings.TrimSpace(w.Code) == "":
		w.Code = code
	case strings.Contains(w.Code, runePrefix(code, prefixRunes)):
	default:
		w.Code = w.Code + "\n\n" + code
	}
}

func (w *Workspace) isTask(code string) bool {
	for _, m := range w.phrases.TaskMarkers {
		if strings.Contains(code, m) {
			return true
		}
	}
	return false
}

func runePrefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Caret returns the byte offset where the learner should start typing:
// the start of the line after the first code anchor, or the end of the
// buffer.
func (w *Workspace) Caret() int {
	best := -1
	anchor := ""
	for _, a := range w.phrases.CodeAnchors {
		if i := strings.Index(w.Code, a); i >= 0 && (best < 0 || i < best) {
			best, anchor = i, a
		}
	}
	if best < 0 {
		return len(w.Code)
	}
	end := best + len(anchor)
	nl := strings.IndexByte(w.Code[end:], '\n')
	if nl < 0 {
		return len(w.Code)
	}
	return end + nl + 1
}

// SetCode replaces the editor contents with the learner's edits.
func (w *Workspace) SetCode(code string) {
	w.Code = code
}

// StartDebug enters debugging and clears the previous debugger state.
func (w *Workspace) StartDebug() {
	w.Debugging = true
	w.Debugger = nil
}

// StopDebug leaves debugging and clears the debugger state.
func (w *Workspace) StopDebug() {
	w.Debugging = false
	w.Debugger = nil
}

// Reset empties the editor and debugger for a new lesson.
func (w *Workspace) Reset() {
	w.Code = ""
	w.FocusGeneration = 0
	w.Debugging = false
	w.Debugger = nil
	w.ShowContinue = false
}

// NoteReply updates the continue flag from a finished model reply.
func (w *Workspace) NoteReply(content string) {
	if w.WantsContinue(content) {
		w.ShowContinue = true
	}
}

// WantsContinue reports whether content asks the learner to move on.
func (w *Workspace) WantsContinue(content string) bool {
	for _, cue := range w.phrases.ContinueCues {
		if strings.Contains(content, cue) {
			return true
		}
	}
	return false
}

// Reply is the subset of a chat message TerminalOutput needs.
type Reply struct {
	FromModel bool
	Content   string
}

// TerminalOutput returns the simulated terminal text to show: the first
// text block of the latest model reply that has one, else the text block
// of the live preview, else the debugger's output.
func (w *Workspace) TerminalOutput(history []Reply, preview string) string {
	for i := len(history) - 1; i >= 0; i-- {
		r := history[i]
		if !r.FromModel || !strings.Contains(r.Content, "```text") {
			continue
		}
		if m := textBlockPattern.FindStringSubmatch(r.Content); m != nil {
			return m[1]
		}
		return ""
	}
	if m := textBlockPattern.FindStringSubmatch(preview); m != nil && m[1] != "" {
		return m[1]
	}
	if w.Debugger != nil {
		return w.Debugger.Output
	}
	return ""
}

// Snapshot is a copy of the workspace safe to hand to other goroutines.
type Snapshot struct {
	Code            string                 `json:"code"`
	Caret           int                    `json:"caret"`
	FocusGeneration int                    `json:"focusGeneration"`
	Debugging       bool                   `json:"debugging"`
	Debugger        *actions.DebuggerState `json:"debugger,omitempty"`
	ShowContinue    bool                   `json:"showContinue"`
}

func (w *Workspace) Snapshot() Snapshot {
	s := Snapshot{
		Code:            w.Code,
		Caret:           w.Caret(),
		FocusGeneration: w.FocusGeneration,
		Debugging:       w.Debugging,
		ShowContinue:    w.ShowContinue,
	}
	if w.Debugger != nil {
		d := *w.Debugger
		s.Debugger = &d
	}
	return s
}
