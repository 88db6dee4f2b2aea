package screen

import (
	tea "charm.land/bubbletea/v2"

	"github.com/profacademy/profacademy/internal/catalog"
	"github.com/profacademy/profacademy/internal/progress"
	"github.com/profacademy/profacademy/internal/tutor"
	"github.com/profacademy/profacademy/internal/ui/layout"
)

// Screen defines the interface for all application screens.
type Screen interface {
	// Init returns an initial command when the screen is first created.
	Init() tea.Cmd

	// Update handles messages and returns updated screen + command.
	Update(msg tea.Msg) (Screen, tea.Cmd)

	// View renders the screen content (excluding header/footer).
	View(width, height int) string

	// Title returns the screen name for the header.
	Title() string
}

// KeyHintProvider is an optional interface that screens can implement
// to provide custom footer key hints.
type KeyHintProvider interface {
	KeyHints() []layout.KeyHint
}

// StatusProvider is an optional interface for screens that show a status
// on the right of the header.
type StatusProvider interface {
	Status() string
}

// BackHandler is implemented by screens that want Esc for themselves
// instead of going back, for example to cancel a streaming reply.
type BackHandler interface {
	HandlesBack() bool
}

// SessionEventMsg carries one tutoring session event into the program.
type SessionEventMsg struct {
	Event tutor.Event
}

// Deps are the collaborators every screen may use.
type Deps struct {
	Session  *tutor.Session
	Catalog  *catalog.Catalog
	Progress *progress.Repository
}
