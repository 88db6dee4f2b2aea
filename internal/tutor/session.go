// Package tutor binds a lesson together: the chosen language and module,
// the conversation with the professor, the learner's editor and debugger,
// and the progress ledger.
package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/profacademy/profacademy/internal/actions"
	"github.com/profacademy/profacademy/internal/catalog"
	"github.com/profacademy/profacademy/internal/chat"
	"github.com/profacademy/profacademy/internal/llm"
	"github.com/profacademy/profacademy/internal/progress"
	"github.com/profacademy/profacademy/internal/store"
	"github.com/profacademy/profacademy/internal/workspace"
)

var (
	ErrNoLanguage       = errors.New("no language selected")
	ErrLanguageDisabled = errors.New("language is not available yet")
	ErrModuleLocked     = errors.New("module category is locked")
	ErrNoModule         = errors.New("no module active")
	ErrEmptyInput       = errors.New("nothing to send")
	ErrNotDebugging     = errors.New("debugger has no state to step from")
)

// EventKind extends the chat event kinds with session-level changes.
type EventKind string

const (
	EventPreview             = EventKind(chat.EventPreview)
	EventAction              = EventKind(chat.EventAction)
	EventMessage             = EventKind(chat.EventMessage)
	EventLoading             = EventKind(chat.EventLoading)
	EventRetry               = EventKind(chat.EventRetry)
	EventWorkspace EventKind = "workspace"
	EventToast     EventKind = "toast"
	EventReset     EventKind = "reset"
)

// ToastKind tells a plain completion from a level-up.
type ToastKind string

const (
	ToastSuccess ToastKind = "success"
	ToastLevelUp ToastKind = "levelup"
)

// Event is what subscribers receive.
type Event struct {
	Kind      EventKind           `json:"kind"`
	Preview   string              `json:"preview,omitempty"`
	Message   *chat.Message       `json:"message,omitempty"`
	Action    actions.Action      `json:"action,omitempty"`
	ActionKey string              `json:"actionKind,omitempty"`
	Loading   bool                `json:"loading,omitempty"`
	Notice    string              `json:"notice,omitempty"`
	Toast     ToastKind           `json:"toast,omitempty"`
	Workspace *workspace.Snapshot `json:"workspace,omitempty"`
}

// Deps are the collaborators shared by all sessions.
type Deps struct {
	Catalog  *catalog.Catalog
	Provider llm.Provider
	Progress *progress.Repository
	Archive  store.TranscriptRepo
	Logger   *zap.Logger

	MaxTokens      int
	ThinkingBudget int
}

// Session is one learner working through lessons. Its methods are safe for
// concurrent use; the ones that talk to the professor block until the
// reply is complete.
type Session struct {
	ID string

	cat      *catalog.Catalog
	progress *progress.Repository
	engine   *chat.Engine
	logger   *zap.Logger
	hub      *hub

	mu     sync.Mutex
	ws     *workspace.Workspace
	lang   *catalog.Language
	module int
}

// NewSession creates a session with no language selected.
func NewSession(deps Deps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	s := &Session{
		ID:       id,
		cat:      deps.Catalog,
		progress: deps.Progress,
		logger:   logger.With(zap.String("session", id)),
		ws:       workspace.New(deps.Catalog.Phrases),
	}
	s.hub = newHub(s.logger)
	s.engine = chat.NewEngine(chat.Options{
		Provider:       deps.Provider,
		Phrases:        deps.Catalog.Phrases,
		Observer:       s.onChat,
		Archive:        deps.Archive,
		SessionID:      id,
		Logger:         s.logger,
		MaxTokens:      deps.MaxTokens,
		ThinkingBudget: deps.ThinkingBudget,
	})
	return s
}

// Subscribe returns a channel of session events and a func that ends the
// subscription.
func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.hub.subscribe()
}

// Close ends all subscriptions and cancels a streaming reply.
func (s *Session) Close() {
	s.engine.Cancel()
	s.hub.closeAll()
}

func (s *Session) onChat(ev chat.Event) {
	out := Event{
		Kind:    EventKind(ev.Kind),
		Preview: ev.Preview,
		Message: ev.Message,
		Action:  ev.Action,
		Loading: ev.Loading,
		Notice:  ev.Notice,
	}
	if ev.Action != nil {
		out.ActionKey = ev.Action.Kind()
	}
	s.hub.publish(out)

	switch ev.Kind {
	case chat.EventAction:
		s.applyActions()
	case chat.EventMessage:
		if ev.Message != nil && ev.Message.Role == chat.RoleModel {
			s.mu.Lock()
			s.ws.NoteReply(ev.Message.Content)
			snap := s.ws.Snapshot()
			s.mu.Unlock()
			s.hub.publish(Event{Kind: EventWorkspace, Workspace: &snap})
		}
	}
}

// applyActions consumes every pending action from the engine's mailbox.
func (s *Session) applyActions() {
	pending := s.engine.Mailbox().Drain()
	if len(pending) == 0 {
		return
	}
	s.mu.Lock()
	for _, a := range pending {
		s.ws.Apply(a)
	}
	snap := s.ws.Snapshot()
	s.mu.Unlock()
	s.hub.publish(Event{Kind: EventWorkspace, Workspace: &snap})
}

func (s *Session) send(ctx context.Context, purpose, content string, kind chat.Kind, contextCode string) error {
	ctx = llm.WithPurpose(ctx, purpose)
	err := s.engine.Send(ctx, content, kind, contextCode)
	s.applyActions()
	return err
}

// reset clears the conversation and the workspace for a new lesson.
func (s *Session) reset() error {
	if err := s.engine.Clear(); err != nil {
		return err
	}
	s.mu.Lock()
	s.ws.Reset()
	snap := s.ws.Snapshot()
	s.mu.Unlock()
	s.hub.publish(Event{Kind: EventReset, Workspace: &snap})
	return nil
}

// SetLanguage switches to a language and creates its ledger entry. The
// conversation and workspace start over; no greeting is requested.
func (s *Session) SetLanguage(ctx context.Context, key string) error {
	lang, err := s.cat.Language(key)
	if err != nil {
		return err
	}
	if !lang.Enabled {
		return fmt.Errorf("%w: %s", ErrLanguageDisabled, lang.Name)
	}
	system, err := s.cat.SystemPrompt(key)
	if err != nil {
		return err
	}
	if s.engine.Loading() {
		return chat.ErrBusy
	}
	if err := s.engine.SetPersona(key, system); err != nil {
		return err
	}
	if err := s.reset(); err != nil {
		return err
	}

	s.mu.Lock()
	s.lang = lang
	s.module = 0
	s.mu.Unlock()

	if _, err := s.progress.Update(ctx, func(l progress.Ledger) {
		l.EnsureLanguage(key, lang.CategoryNames())
	}); err != nil {
		s.logger.Warn("saving progress failed", zap.Error(err))
	}
	return nil
}

// SelectLanguage switches to a language and sends the professor's
// greeting.
func (s *Session) SelectLanguage(ctx context.Context, key string) error {
	if err := s.SetLanguage(ctx, key); err != nil {
		return err
	}
	s.mu.Lock()
	prompt := s.lang.InitialPrompt
	s.mu.Unlock()
	return s.send(ctx, llm.PurposeGreeting, prompt, chat.KindText, "")
}

// Language returns the active language key, or "".
func (s *Session) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lang == nil {
		return ""
	}
	return s.lang.Key
}

// SelectModule starts a module of the current language. It is refused
// while a reply is streaming or while the module's category is locked.
func (s *Session) SelectModule(ctx context.Context, id int) error {
	s.mu.Lock()
	lang := s.lang
	s.mu.Unlock()
	if lang == nil {
		return ErrNoLanguage
	}
	if s.engine.Loading() {
		return chat.ErrBusy
	}
	mod, catIndex, err := lang.Module(id)
	if err != nil {
		return err
	}
	ledger := s.progress.Load(ctx)
	if ledger.Locked(lang.Key, lang.CategoryNames(), catIndex) {
		return fmt.Errorf("%w: %s", ErrModuleLocked, lang.Categories[catIndex].Name)
	}
	if err := s.reset(); err != nil {
		return err
	}

	s.mu.Lock()
	s.module = id
	s.mu.Unlock()

	prompt := catalog.Fill(s.cat.Phrases.ModuleStart, "id", strconv.Itoa(mod.ID), "title", mod.Title)
	return s.send(ctx, llm.PurposeModule, prompt, chat.KindText, "")
}

// Ask sends a question with the editor contents as context.
func (s *Session) Ask(ctx context.Context, question string) error {
	if strings.TrimSpace(question) == "" {
		return ErrEmptyInput
	}
	s.mu.Lock()
	code := s.ws.Code
	s.mu.Unlock()
	return s.send(ctx, llm.PurposeChat, question, chat.KindText, code)
}

// SetCode stores the learner's edits.
func (s *Session) SetCode(code string) {
	s.mu.Lock()
	s.ws.SetCode(code)
	s.mu.Unlock()
}

// Run sends the editor contents for simulated execution.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	code := s.ws.Code
	s.mu.Unlock()
	if strings.TrimSpace(code) == "" {
		return ErrEmptyInput
	}
	return s.send(ctx, llm.PurposeRun, code, chat.KindCode, "")
}

// StartDebug enters the simulated debugger for the editor contents.
func (s *Session) StartDebug(ctx context.Context) error {
	if s.engine.Loading() {
		return chat.ErrBusy
	}
	s.mu.Lock()
	code := s.ws.Code
	syntax := ""
	if s.lang != nil {
		syntax = s.lang.Syntax
	}
	if strings.TrimSpace(code) == "" {
		s.mu.Unlock()
		return ErrEmptyInput
	}
	s.ws.StartDebug()
	snap := s.ws.Snapshot()
	s.mu.Unlock()
	s.hub.publish(Event{Kind: EventWorkspace, Workspace: &snap})

	prompt := catalog.Fill(s.cat.Phrases.DebugStart, "syntax", syntax, "code", code)
	return s.send(ctx, llm.PurposeDebug, prompt, chat.KindText, "")
}

// StepDebug asks for the next debugger step from the current state.
func (s *Session) StepDebug(ctx context.Context) error {
	s.mu.Lock()
	state := s.ws.Debugger
	s.mu.Unlock()
	if state == nil {
		return ErrNotDebugging
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode debugger state: %w", err)
	}
	prompt := catalog.Fill(s.cat.Phrases.DebugStep, "state", string(data))
	return s.send(ctx, llm.PurposeDebug, prompt, chat.KindText, "")
}

// StopDebug leaves the debugger and tells the professor.
func (s *Session) StopDebug(ctx context.Context) error {
	if s.engine.Loading() {
		return chat.ErrBusy
	}
	s.mu.Lock()
	s.ws.StopDebug()
	snap := s.ws.Snapshot()
	s.mu.Unlock()
	s.hub.publish(Event{Kind: EventWorkspace, Workspace: &snap})
	return s.send(ctx, llm.PurposeDebug, s.cat.Phrases.DebugStop, chat.KindText, "")
}

// Continue completes the active module, awards XP and asks for the next
// task.
func (s *Session) Continue(ctx context.Context) error {
	s.mu.Lock()
	lang, module := s.lang, s.module
	s.mu.Unlock()
	if lang == nil || module == 0 {
		return ErrNoModule
	}
	if s.engine.Loading() {
		return chat.ErrBusy
	}

	category := s.cat.CategoryOf(lang.Key, module)
	var done progress.Completion
	if _, err := s.progress.Update(ctx, func(l progress.Ledger) {
		l.EnsureLanguage(lang.Key, lang.CategoryNames())
		done = l.Complete(lang.Key, module, category)
	}); err != nil {
		s.logger.Warn("saving progress failed", zap.Error(err))
	}

	s.mu.Lock()
	s.ws.ShowContinue = false
	snap := s.ws.Snapshot()
	s.mu.Unlock()
	s.hub.publish(Event{Kind: EventWorkspace, Workspace: &snap})

	p := s.cat.Phrases
	msg := p.Continue
	if done.Newly {
		s.hub.publish(Event{Kind: EventToast, Toast: ToastSuccess, Notice: p.ModuleCompleted})
	}
	if done.LevelUp {
		level := strconv.Itoa(done.Level)
		msg += catalog.Fill(p.LevelUpNote, "level", level)
		s.hub.publish(Event{Kind: EventToast, Toast: ToastLevelUp, Notice: catalog.Fill(p.LevelUp, "level", level)})
	}
	return s.send(ctx, llm.PurposeContinue, msg, chat.KindText, "")
}

// Cancel stops the streaming reply.
func (s *Session) Cancel() {
	s.engine.Cancel()
}

// LastReply returns the professor's newest message, if any.
func (s *Session) LastReply() (chat.Message, bool) {
	return s.engine.LastReply()
}

// Loading reports whether a reply is streaming.
func (s *Session) Loading() bool {
	return s.engine.Loading()
}

// State is a point-in-time view of a session.
type State struct {
	ID        string             `json:"id"`
	Language  string             `json:"language,omitempty"`
	Module    int                `json:"module,omitempty"`
	History   []chat.Message     `json:"history"`
	Loading   bool               `json:"loading"`
	Preview   string             `json:"preview,omitempty"`
	Terminal  string             `json:"terminal"`
	Workspace workspace.Snapshot `json:"workspace"`
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	history := s.engine.History()
	preview := s.engine.Preview()

	replies := make([]workspace.Reply, len(history))
	for i, m := range history {
		replies[i] = workspace.Reply{FromModel: m.Role == chat.RoleModel, Content: m.Content}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		ID:        s.ID,
		Module:    s.module,
		History:   history,
		Loading:   s.engine.Loading(),
		Preview:   preview,
		Terminal:  s.ws.TerminalOutput(replies, preview),
		Workspace: s.ws.Snapshot(),
	}
	if s.lang != nil {
		st.Language = s.lang.Key
	}
	return st
}
