// Package lesson is the working screen: the editor, the simulated
// terminal or debugger, and the conversation with the professor.
package lesson

import (
	"context"
	"errors"
	"strconv"
	"time"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"

	"github.com/profacademy/profacademy/internal/catalog"
	"github.com/profacademy/profacademy/internal/chat"
	"github.com/profacademy/profacademy/internal/progress"
	"github.com/profacademy/profacademy/internal/screen"
	"github.com/profacademy/profacademy/internal/tutor"
	"github.com/profacademy/profacademy/internal/ui/components"
	"github.com/profacademy/profacademy/internal/ui/layout"
	"github.com/profacademy/profacademy/internal/workspace"
)

// Start says how a lesson opens: with the professor's greeting or with a
// module's first task.
type Start struct {
	moduleID int
}

// Greeting opens a free conversation.
var Greeting = Start{}

// Module opens the module with the given id.
func Module(id int) Start {
	return Start{moduleID: id}
}

type focus int

const (
	focusInput focus = iota
	focusEditor
)

// LessonScreen implements screen.Screen for a running lesson.
type LessonScreen struct {
	deps  screen.Deps
	sess  *tutor.Session
	lang  *catalog.Language
	start Start

	editor components.Editor
	input  components.TextInput
	button components.Button
	spin   spinner.Model
	md     components.Markdown
	focus  focus

	started  bool
	state    tutor.State
	focusGen int
	running  string
	errMsg   string
	scroll   int
	level    progress.CategoryProgress

	toast     string
	toastKind tutor.ToastKind
	toastID   int

	// rendered caches glamour output per message id and width.
	rendered map[string]string
}

var _ screen.Screen = (*LessonScreen)(nil)
var _ screen.KeyHintProvider = (*LessonScreen)(nil)
var _ screen.BackHandler = (*LessonScreen)(nil)
var _ screen.StatusProvider = (*LessonScreen)(nil)

func New(deps screen.Deps, lang *catalog.Language, start Start) *LessonScreen {
	l := &LessonScreen{
		deps:     deps,
		sess:     deps.Session,
		lang:     lang,
		start:    start,
		editor:   components.NewEditor(),
		input:    components.NewTextInput("Frag den Professor...", 2000),
		spin:     spinner.New(spinner.WithSpinner(spinner.MiniDot)),
		rendered: make(map[string]string),
	}
	l.button = components.NewButton("Weiter (Strg+N)", false, l.continueLesson)
	return l
}

func (l *LessonScreen) Init() tea.Cmd {
	if l.started {
		l.refresh()
		l.loadLevel()
		return nil
	}
	l.started = true
	return tea.Batch(l.input.Focus(), l.runOp("start", l.open))
}

// open selects the language if needed and starts the lesson.
func (l *LessonScreen) open(ctx context.Context) error {
	if l.start.moduleID == 0 {
		return l.sess.SelectLanguage(ctx, l.lang.Key)
	}
	if l.sess.Language() != l.lang.Key {
		if err := l.sess.SetLanguage(ctx, l.lang.Key); err != nil {
			return err
		}
	}
	return l.sess.SelectModule(ctx, l.start.moduleID)
}

func (l *LessonScreen) Title() string {
	if l.state.Module != 0 {
		if m, _, err := l.lang.Module(l.state.Module); err == nil {
			return "Modul " + strconv.Itoa(m.ID) + ": " + m.Title
		}
	}
	return l.lang.Professor
}

// Status shows the level of the active module's category.
func (l *LessonScreen) Status() string {
	if l.state.Module == 0 {
		return l.lang.Name
	}
	name := l.deps.Catalog.CategoryOf(l.lang.Key, l.state.Module)
	return name + " · Lv " + strconv.Itoa(l.level.Level) + " · " + strconv.Itoa(l.level.XP) + " XP"
}

// loadLevel caches the active category's progress. The ledger only changes
// through operations, so it is read when one finishes.
func (l *LessonScreen) loadLevel() {
	l.level = progress.CategoryProgress{Level: 1}
	if l.state.Module == 0 {
		return
	}
	name := l.deps.Catalog.CategoryOf(l.lang.Key, l.state.Module)
	ledger := l.deps.Progress.Load(context.Background())
	if lp := ledger[l.lang.Key]; lp != nil {
		l.level = lp.Category(name)
	}
}

func (l *LessonScreen) HandlesBack() bool {
	return l.running != ""
}

func (l *LessonScreen) KeyHints() []layout.KeyHint {
	if l.running != "" {
		return []layout.KeyHint{
			{Key: "Esc", Description: "Abbrechen"},
			{Key: "Tab", Description: "Fokus"},
		}
	}
	hints := []layout.KeyHint{
		{Key: "Ctrl+R", Description: "Ausführen"},
		{Key: "Ctrl+D", Description: "Debug"},
	}
	if l.state.Workspace.Debugging || l.state.Workspace.Debugger != nil {
		hints = append(hints, layout.KeyHint{Key: "Ctrl+X", Description: "Debug beenden"})
	}
	if l.button.Active {
		hints = append(hints, layout.KeyHint{Key: "Ctrl+N", Description: "Weiter"})
	}
	return append(hints,
		layout.KeyHint{Key: "Tab", Description: "Fokus"},
		layout.KeyHint{Key: "Esc", Description: "Zurück"},
	)
}

func (l *LessonScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case opDoneMsg:
		return l, l.handleOpDone(msg)

	case screen.SessionEventMsg:
		return l, l.handleEvent(msg.Event)

	case toastExpiredMsg:
		if msg.ID == l.toastID {
			l.toast = ""
		}
		return l, nil

	case spinner.TickMsg:
		if l.running == "" {
			return l, nil
		}
		var cmd tea.Cmd
		l.spin, cmd = l.spin.Update(msg)
		return l, cmd

	case tea.KeyMsg:
		return l, l.handleKey(msg)
	}
	return l, l.forward(msg)
}

func (l *LessonScreen) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		if l.running != "" {
			l.sess.Cancel()
		}
		return nil
	case "tab":
		return l.toggleFocus()
	case "ctrl+r":
		return l.runOp("run", l.sess.Run)
	case "ctrl+d":
		ws := l.state.Workspace
		if ws.Debugging && ws.Debugger != nil && !ws.Debugger.IsFinished {
			return l.runOp("debug", l.sess.StepDebug)
		}
		return l.runOp("debug", l.sess.StartDebug)
	case "ctrl+x":
		if !l.state.Workspace.Debugging && l.state.Workspace.Debugger == nil {
			return nil
		}
		return l.runOp("debug", l.sess.StopDebug)
	case "ctrl+n":
		return l.button.Press()
	case "pgup":
		l.scroll += 5
		return nil
	case "pgdown":
		l.scroll = max(0, l.scroll-5)
		return nil
	case "enter":
		if l.focus == focusInput {
			q, ok := l.input.Submit()
			if !ok {
				return nil
			}
			return l.runOp("ask", func(ctx context.Context) error { return l.sess.Ask(ctx, q) })
		}
	}
	return l.forward(msg)
}

// forward hands a message to the focused component. Editor changes are
// pushed to the session right away so the professor sees current code.
func (l *LessonScreen) forward(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	if l.focus == focusEditor {
		before := l.editor.Value()
		l.editor, cmd = l.editor.Update(msg)
		if v := l.editor.Value(); v != before {
			l.sess.SetCode(v)
		}
		return cmd
	}
	l.input, cmd = l.input.Update(msg)
	return cmd
}

func (l *LessonScreen) toggleFocus() tea.Cmd {
	if l.focus == focusInput {
		l.focus = focusEditor
		l.input.Blur()
		return l.editor.Focus()
	}
	l.focus = focusInput
	l.editor.Blur()
	return l.input.Focus()
}

func (l *LessonScreen) continueLesson() tea.Cmd {
	if l.state.Module == 0 {
		return nil
	}
	return l.runOp("continue", l.sess.Continue)
}

// runOp starts op in the background unless another one is running.
func (l *LessonScreen) runOp(name string, op func(context.Context) error) tea.Cmd {
	if l.running != "" {
		return nil
	}
	l.sess.SetCode(l.editor.Value())
	l.running = name
	l.button.Active = false
	l.errMsg = ""
	l.scroll = 0
	return tea.Batch(
		func() tea.Msg { return opDoneMsg{Op: name, Err: op(context.Background())} },
		l.spin.Tick,
	)
}

func (l *LessonScreen) handleOpDone(msg opDoneMsg) tea.Cmd {
	l.running = ""
	l.refresh()
	l.loadLevel()
	if msg.Err != nil {
		l.errMsg = describe(msg.Err)
	}
	return nil
}

func (l *LessonScreen) handleEvent(ev tutor.Event) tea.Cmd {
	if ev.Workspace != nil {
		l.applyWorkspace(*ev.Workspace)
	}
	l.refresh()
	if ev.Kind == tutor.EventToast {
		l.toastID++
		l.toast, l.toastKind = ev.Notice, ev.Toast
		id := l.toastID
		return tea.Tick(toastDuration, func(time.Time) tea.Msg { return toastExpiredMsg{ID: id} })
	}
	return nil
}

// applyWorkspace brings the editor in line with the session. A new task
// moves focus and cursor into the editor.
func (l *LessonScreen) applyWorkspace(ws workspace.Snapshot) {
	newTask := ws.FocusGeneration != l.focusGen
	l.focusGen = ws.FocusGeneration
	if ws.Code != l.editor.Value() {
		l.editor.Replace(ws.Code, newTask)
	}
	if newTask && l.focus != focusEditor {
		l.focus = focusEditor
		l.input.Blur()
		l.editor.Focus()
	}
}

func (l *LessonScreen) refresh() {
	l.state = l.sess.Snapshot()
	l.button.Active = l.state.Workspace.ShowContinue && l.running == ""
}

// describe turns an operation error into a line for the status bar.
func describe(err error) string {
	switch {
	case errors.Is(err, chat.ErrBusy):
		return "Der Professor antwortet noch."
	case errors.Is(err, tutor.ErrModuleLocked):
		return "Diese Kategorie ist noch gesperrt."
	case errors.Is(err, tutor.ErrEmptyInput):
		return "Der Editor ist leer."
	case errors.Is(err, tutor.ErrNotDebugging):
		return "Starte zuerst den Debugger mit Strg+D."
	case errors.Is(err, tutor.ErrNoModule):
		return "Wähle zuerst ein Modul."
	case errors.Is(err, tutor.ErrLanguageDisabled):
		return "Diese Sprache ist noch nicht verfügbar."
	default:
		return "Anfrage fehlgeschlagen: " + err.Error()
	}
}
