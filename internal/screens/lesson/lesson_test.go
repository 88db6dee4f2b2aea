package lesson

import (
	"context"
	"fmt"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/profacademy/profacademy/internal/catalog"
	"github.com/profacademy/profacademy/internal/llm"
	"github.com/profacademy/profacademy/internal/progress"
	"github.com/profacademy/profacademy/internal/screen"
	"github.com/profacademy/profacademy/internal/store"
	"github.com/profacademy/profacademy/internal/tutor"
)

const taskReply = "Los geht's!\n```json:prof-python-action\n{\"action\":\"WRITE_CODE\",\"code\":\"# 🎯 AUFGABE: Print\\n# DEIN CODE HIER:\\n\"}\n```"

type fixture struct {
	deps   screen.Deps
	mock   *llm.MockProvider
	events <-chan tutor.Event
}

func newFixture(t *testing.T, streams ...llm.MockStream) *fixture {
	t.Helper()
	s, err := store.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger := zaptest.NewLogger(t)
	cat := catalog.Default()
	mock := llm.NewMockProvider(streams...)
	repo := progress.NewRepository(s.KVRepo(), logger)
	sess := tutor.NewSession(tutor.Deps{
		Catalog:  cat,
		Provider: mock,
		Progress: repo,
		Archive:  s.TranscriptRepo(),
		Logger:   logger,
	})
	t.Cleanup(sess.Close)
	events, unsubscribe := sess.Subscribe()
	t.Cleanup(unsubscribe)

	return &fixture{
		deps:   screen.Deps{Session: sess, Catalog: cat, Progress: repo},
		mock:   mock,
		events: events,
	}
}

func (f *fixture) lesson(t *testing.T, lang string, start Start) *LessonScreen {
	t.Helper()
	l, err := f.deps.Catalog.Language(lang)
	require.NoError(t, err)
	return New(f.deps, l, start)
}

// deliver feeds every pending session event to the screen.
func (f *fixture) deliver(l *LessonScreen) {
	for {
		select {
		case ev := <-f.events:
			l.Update(screen.SessionEventMsg{Event: ev})
		default:
			return
		}
	}
}

// runCmd runs cmd and everything it batches, delivering the first
// finished operation. Other messages such as cursor blinks are dropped.
func runCmd(cmd tea.Cmd) <-chan opDoneMsg {
	out := make(chan opDoneMsg, 1)
	var run func(tea.Cmd)
	run = func(c tea.Cmd) {
		if c == nil {
			return
		}
		go func() {
			msg := c()
			if batch, ok := msg.(tea.BatchMsg); ok {
				for _, c := range batch {
					run(c)
				}
				return
			}
			if done, ok := msg.(opDoneMsg); ok {
				out <- done
			}
		}()
	}
	run(cmd)
	return out
}

func waitOp(t *testing.T, cmd tea.Cmd) opDoneMsg {
	t.Helper()
	select {
	case done := <-runCmd(cmd):
		return done
	case <-time.After(5 * time.Second):
		t.Fatal("operation did not finish")
		return opDoneMsg{}
	}
}

func ctrl(r rune) tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: r, Mod: tea.ModCtrl}
}

func TestGreeting(t *testing.T) {
	f := newFixture(t, llm.MockStream{Fragments: []string{"Willkommen ", "im Kurs!"}})
	l := f.lesson(t, "python", Greeting)

	done := waitOp(t, l.Init())
	require.NoError(t, done.Err)
	_, cmd := l.Update(done)
	assert.Nil(t, cmd)
	f.deliver(l)

	assert.Equal(t, "Prof. Python", l.Title())
	assert.Equal(t, "Python", l.Status())
	assert.Len(t, l.state.History, 2)
	assert.False(t, l.HandlesBack())
	assert.Contains(t, l.View(120, 40), "Willkommen")
}

func TestModuleStart_AppliesTaskToEditor(t *testing.T) {
	f := newFixture(t, llm.MockStream{Fragments: []string{taskReply}})
	l := f.lesson(t, "python", Module(2))

	done := waitOp(t, l.Init())
	require.NoError(t, done.Err)
	l.Update(done)
	f.deliver(l)

	assert.Equal(t, 1, f.mock.CallCount(), "no greeting before the module")
	assert.Equal(t, "# 🎯 AUFGABE: Print\n# DEIN CODE HIER:", l.editor.Value())
	assert.Equal(t, focusEditor, l.focus)
	assert.Equal(t, 1, l.focusGen)
	assert.Equal(t, "Modul 2: Das Gedächtnis: Variablen", l.Title())
	assert.Contains(t, l.Status(), "Lv 1")

	view := l.View(120, 40)
	assert.Contains(t, view, "AUFGABE")
	assert.NotContains(t, view, "WRITE_CODE", "action blocks are hidden")
}

func TestRun_EmptyEditor(t *testing.T) {
	f := newFixture(t, llm.MockStream{Fragments: []string{"Hallo!"}})
	l := f.lesson(t, "python", Greeting)
	l.Update(waitOp(t, l.Init()))

	_, cmd := l.Update(ctrl('r'))
	done := waitOp(t, cmd)
	assert.ErrorIs(t, done.Err, tutor.ErrEmptyInput)

	l.Update(done)
	assert.Equal(t, "Der Editor ist leer.", l.errMsg)
	assert.Contains(t, l.View(120, 40), "Der Editor ist leer.")
}

func TestTypingUpdatesSession(t *testing.T) {
	f := newFixture(t, llm.MockStream{Fragments: []string{"Hallo!"}}, llm.MockStream{Fragments: []string{"```text\n1\n```"}})
	l := f.lesson(t, "python", Greeting)
	l.Update(waitOp(t, l.Init()))

	l.Update(tea.KeyPressMsg{Code: tea.KeyTab})
	require.Equal(t, focusEditor, l.focus)
	for _, r := range "print(1)" {
		l.Update(tea.KeyPressMsg{Code: r, Text: string(r)})
	}
	assert.Equal(t, "print(1)", f.deps.Session.Snapshot().Workspace.Code)

	_, cmd := l.Update(ctrl('r'))
	done := waitOp(t, cmd)
	require.NoError(t, done.Err)
	l.Update(done)
	msgs := f.mock.LastRequest().Messages
	assert.Contains(t, msgs[len(msgs)-1].Content, "print(1)")
	assert.Contains(t, l.state.Terminal, "1")
}

func TestEscCancelsStreamingReply(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(t, llm.MockStream{Fragments: []string{"a", "b"}, Gate: gate})
	l := f.lesson(t, "python", Greeting)

	cmd := l.Init()
	assert.True(t, l.HandlesBack())
	assert.Equal(t, "Esc", l.KeyHints()[0].Key)

	// A second operation is refused while one runs.
	_, second := l.Update(ctrl('r'))
	assert.Nil(t, second)

	opDone := runCmd(cmd)
	gate <- struct{}{}
	require.Eventually(t, func() bool { return f.deps.Session.Snapshot().Preview == "a" }, 2*time.Second, 5*time.Millisecond)

	l.Update(tea.KeyPressMsg{Code: tea.KeyEscape})

	var done opDoneMsg
	select {
	case done = <-opDone:
	case <-time.After(5 * time.Second):
		t.Fatal("cancel did not end the reply")
	}
	l.Update(done)
	assert.False(t, l.HandlesBack())
	require.Len(t, l.state.History, 2)
	assert.Contains(t, l.state.History[1].Content, "a")
}

func TestContinueButton(t *testing.T) {
	f := newFixture(t,
		llm.MockStream{Fragments: []string{taskReply}},
		llm.MockStream{Fragments: []string{"Richtig! Weiter?"}},
		llm.MockStream{Fragments: []string{"Nächste Aufgabe."}},
	)
	l := f.lesson(t, "python", Module(2))
	l.Update(waitOp(t, l.Init()))
	assert.Equal(t, "Grundlagen · Lv 1 · 0 XP", l.Status())

	_, cmd := l.Update(ctrl('n'))
	assert.Nil(t, cmd, "no continue before the professor offers it")

	l.input.Model.SetValue("Fertig!")
	l.focus = focusInput
	_, cmd = l.Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	require.NoError(t, waitOp(t, cmd).Err)
	l.Update(opDoneMsg{Op: "ask"})
	require.True(t, l.button.Active)
	assert.Contains(t, l.View(120, 40), "Weiter (Strg+N)")

	_, cmd = l.Update(ctrl('n'))
	require.NotNil(t, cmd)
	done := waitOp(t, cmd)
	require.NoError(t, done.Err)
	l.Update(done)
	f.deliver(l)

	assert.False(t, l.button.Active)
	assert.Equal(t, "Modul abgeschlossen!", l.toast)
	ledger := f.deps.Progress.Load(context.Background())
	assert.True(t, ledger["python"].Completed(2))
	assert.Equal(t, "Grundlagen · Lv 1 · 100 XP", l.Status())
}

func TestToastExpires(t *testing.T) {
	f := newFixture(t)
	l := f.lesson(t, "python", Greeting)

	_, cmd := l.Update(screen.SessionEventMsg{Event: tutor.Event{Kind: tutor.EventToast, Toast: tutor.ToastLevelUp, Notice: "Level 2!"}})
	require.NotNil(t, cmd)
	assert.Equal(t, "Level 2!", l.toast)

	// An older toast's timer does not hide the current one.
	l.Update(toastExpiredMsg{ID: l.toastID - 1})
	assert.Equal(t, "Level 2!", l.toast)

	l.Update(toastExpiredMsg{ID: l.toastID})
	assert.Empty(t, l.toast)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{tutor.ErrModuleLocked, "Diese Kategorie ist noch gesperrt."},
		{tutor.ErrNotDebugging, "Starte zuerst den Debugger mit Strg+D."},
		{fmt.Errorf("wrap: %w", tutor.ErrNoModule), "Wähle zuerst ein Modul."},
		{context.DeadlineExceeded, "Anfrage fehlgeschlagen: context deadline exceeded"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, describe(tt.err))
	}
}

func TestLines(t *testing.T) {
	assert.Equal(t, "c\nd", tailLines("a\nb\nc\nd", 2))
	assert.Equal(t, "a\nb", headLines("a\nb\nc\nd", 2))
	assert.Equal(t, "a", tailLines("a", 3))
}
