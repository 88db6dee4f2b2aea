// Package app is the terminal interface's root model.
package app

import (
	"context"
	"errors"
	"fmt"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"go.uber.org/zap"

	"github.com/profacademy/profacademy/internal/catalog"
	"github.com/profacademy/profacademy/internal/progress"
	"github.com/profacademy/profacademy/internal/router"
	"github.com/profacademy/profacademy/internal/screen"
	"github.com/profacademy/profacademy/internal/screens/home"
	"github.com/profacademy/profacademy/internal/tutor"
	"github.com/profacademy/profacademy/internal/ui/layout"
)

// Options configures the terminal interface.
type Options struct {
	Session  *tutor.Session
	Catalog  *catalog.Catalog
	Progress *progress.Repository
	Logger   *zap.Logger

	// Demo shows a banner that no real professor is connected.
	Demo bool
}

// AppModel is the root Bubble Tea model.
type AppModel struct {
	router *router.Router
	sess   *tutor.Session
	events <-chan tutor.Event
	logger *zap.Logger
	width  int
	height int
}

// newAppModel creates a new AppModel with the home screen. The caller
// owns the subscription behind events.
func newAppModel(opts Options, events <-chan tutor.Event) AppModel {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	deps := screen.Deps{Session: opts.Session, Catalog: opts.Catalog, Progress: opts.Progress}
	return AppModel{
		router: router.New(home.New(deps, opts.Demo)),
		sess:   opts.Session,
		events: events,
		logger: logger,
	}
}

// waitForEvent delivers the next session event. It is re-armed after each
// one so events reach the screens in order.
func waitForEvent(events <-chan tutor.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return screen.SessionEventMsg{Event: ev}
	}
}

func (m AppModel) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), m.router.Active().Init())
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case screen.SessionEventMsg:
		if msg.Event.Kind == tutor.EventRetry {
			m.logger.Info("retrying request", zap.String("notice", msg.Event.Notice))
		}
		return m, tea.Batch(m.router.Update(msg), waitForEvent(m.events))

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.sess.Cancel()
			return m, tea.Quit
		case "esc":
			if bh, ok := m.router.Active().(screen.BackHandler); ok && bh.HandlesBack() {
				break
			}
			if m.router.Depth() > 1 {
				return m, func() tea.Msg { return router.PopScreenMsg{} }
			}
			return m, nil
		}
	}

	cmd := m.router.Update(msg)
	return m, cmd
}

func (m AppModel) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true

	if m.width == 0 || m.height == 0 {
		return v
	}

	if layout.IsTooSmall(m.width, m.height) {
		v.SetContent(layout.RenderMinSizeMessage(m.width, m.height))
		return v
	}

	active := m.router.Active()
	title, status := "", ""
	if active != nil {
		title = active.Title()
		if sp, ok := active.(screen.StatusProvider); ok {
			status = sp.Status()
		}
	}

	header := layout.RenderHeader(title, status, m.width)

	var footerHints []layout.KeyHint
	if kp, ok := active.(screen.KeyHintProvider); ok {
		footerHints = append(footerHints, kp.KeyHints()...)
	} else if m.router.Depth() > 1 {
		footerHints = []layout.KeyHint{{Key: "Esc", Description: "Zurück"}}
	} else {
		footerHints = []layout.KeyHint{
			{Key: "↑↓", Description: "Auswählen"},
			{Key: "Enter", Description: "Öffnen"},
		}
	}
	footerHints = append(footerHints, layout.KeyHint{Key: "Ctrl+C", Description: "Beenden"})

	footer := layout.RenderFooter(footerHints, m.width)

	headerHeight := lipgloss.Height(header)
	footerHeight := lipgloss.Height(footer)
	contentHeight := m.height - headerHeight - footerHeight
	if contentHeight < 0 {
		contentHeight = 0
	}

	content := m.router.View(m.width, contentHeight)
	frame := layout.RenderFrame(header, content, footer, m.width, m.height)

	v.SetContent(frame)
	return v
}

// Run starts the Bubble Tea program and blocks until it exits or ctx is
// cancelled.
func Run(ctx context.Context, opts Options) error {
	events, unsubscribe := opts.Session.Subscribe()
	defer unsubscribe()

	p := tea.NewProgram(newAppModel(opts, events), tea.WithContext(ctx))
	_, err := p.Run()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, tea.ErrProgramKilled) && !errors.Is(err, tea.ErrProgramPanic):
		// Cancelled by ctx, usually a signal.
		return nil
	default:
		return fmt.Errorf("run interface: %w", err)
	}
}
