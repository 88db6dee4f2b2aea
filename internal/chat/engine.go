package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/profacademy/profacademy/internal/actions"
	"github.com/profacademy/profacademy/internal/catalog"
	"github.com/profacademy/profacademy/internal/llm"
	"github.com/profacademy/profacademy/internal/store"
)

// ErrBusy is returned when a send is requested while a reply is streaming.
var ErrBusy = errors.New("a reply is still streaming")

// Options configures an Engine.
type Options struct {
	Provider llm.Provider
	Phrases  catalog.Phrases

	// Observer receives every event synchronously, never with the engine
	// lock held. It may call the engine's read methods.
	Observer func(Event)

	// Archive, when set, receives every finalized message.
	Archive   store.TranscriptRepo
	SessionID string

	Logger *zap.Logger

	MailboxCapacity int
	MaxTokens       int
	ThinkingBudget  int
}

// Engine owns one conversation. Only one reply streams at a time.
type Engine struct {
	provider llm.Provider
	phrases  catalog.Phrases
	observer func(Event)
	archive  store.TranscriptRepo
	session  string
	logger   *zap.Logger
	mailbox  *actions.Mailbox

	maxTokens      int
	thinkingBudget int

	mu       sync.Mutex
	system   string
	language string
	history  []Message
	preview  string
	loading  bool
	cancel   context.CancelFunc
}

// NewEngine creates an engine with an empty history.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	capacity := opts.MailboxCapacity
	if capacity == 0 {
		capacity = actions.DefaultMailboxCapacity
	}
	return &Engine{
		provider:       opts.Provider,
		phrases:        opts.Phrases,
		observer:       opts.Observer,
		archive:        opts.Archive,
		session:        opts.SessionID,
		logger:         logger,
		mailbox:        actions.NewMailbox(capacity),
		maxTokens:      opts.MaxTokens,
		thinkingBudget: opts.ThinkingBudget,
	}
}

// SetPersona sets the system prompt and the language recorded with
// archived messages. It is refused while a reply is streaming.
func (e *Engine) SetPersona(language, system string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loading {
		return ErrBusy
	}
	e.language = language
	e.system = system
	return nil
}

// BuildPrompt frames a user message for the model. Code is wrapped in the
// run-and-simulate request; a question is prefixed with the editor
// contents when there are any.
func BuildPrompt(p catalog.Phrases, content string, kind Kind, contextCode string) string {
	switch {
	case kind == KindCode:
		return catalog.Fill(p.CodeRun, "code", content)
	case strings.TrimSpace(contextCode) != "":
		return catalog.Fill(p.EditorContext, "context", contextCode, "question", content)
	}
	return content
}

// Send appends a user message and streams the professor's reply.
//
// Actions found in the reply are queued in the mailbox and published as
// they are found. When the reply is cancelled, through Cancel or ctx, the
// partial text is kept with an interruption marker and Send returns nil.
// Any other failure appends an explanation for the learner and is
// returned.
func (e *Engine) Send(ctx context.Context, content string, kind Kind, contextCode string) error {
	if kind == "" {
		kind = KindText
	}

	e.mu.Lock()
	if e.loading {
		e.mu.Unlock()
		return ErrBusy
	}
	prior := make([]llm.Message, 0, len(e.history)+1)
	for _, m := range e.history {
		prior = append(prior, toLLM(m))
	}
	user := newMessage(RoleUser, content, kind)
	e.history = append(e.history, user)
	e.loading = true
	e.preview = ""
	streamCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	system := e.system
	e.mu.Unlock()
	defer cancel()

	e.emit(Event{Kind: EventMessage, Message: &user})
	e.emit(Event{Kind: EventLoading, Loading: true})
	e.store(ctx, user)

	req := llm.Request{
		System:         system,
		Messages:       append(prior, llm.Message{Role: llm.RoleUser, Content: BuildPrompt(e.phrases, content, kind, contextCode)}),
		MaxTokens:      e.maxTokens,
		ThinkingBudget: e.thinkingBudget,
	}
	streamCtx = llm.WithRetryNotify(streamCtx, e.notifyRetry)

	text, err := e.stream(streamCtx, req)

	var reply *Message
	switch {
	case err == nil:
		m := newMessage(RoleModel, text, KindText)
		reply = &m
	case errors.Is(err, context.Canceled):
		if text != "" {
			m := newMessage(RoleModel, text+e.phrases.Interrupted, KindText)
			reply = &m
		}
		e.logger.Debug("reply cancelled", zap.Int("chars", len(text)))
		err = nil
	default:
		m := newMessage(RoleModel, e.explain(err), KindText)
		reply = &m
		e.logger.Warn("reply failed", zap.String("failure", string(llm.Classify(err))), zap.Error(err))
		err = fmt.Errorf("stream reply: %w", err)
	}

	e.mu.Lock()
	if reply != nil {
		e.history = append(e.history, *reply)
	}
	e.preview = ""
	e.loading = false
	e.cancel = nil
	e.mu.Unlock()

	e.emit(Event{Kind: EventPreview})
	if reply != nil {
		e.emit(Event{Kind: EventMessage, Message: reply})
		e.store(ctx, *reply)
	}
	e.emit(Event{Kind: EventLoading, Loading: false})
	return err
}

// stream consumes the reply, returning the accumulated text and the error
// that ended it. A cancelled stream reports context.Canceled even when the
// provider surfaced the cancellation differently.
func (e *Engine) stream(ctx context.Context, req llm.Request) (string, error) {
	scanner := actions.NewScanner(e.logger)
	var acc strings.Builder

	for chunk, err := range e.provider.Stream(ctx, req) {
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return acc.String(), context.Canceled
			}
			return acc.String(), err
		}
		if chunk.Text == "" {
			continue
		}
		acc.WriteString(chunk.Text)
		text := acc.String()

		e.mu.Lock()
		e.preview = text
		e.mu.Unlock()
		e.emit(Event{Kind: EventPreview, Preview: text})

		for _, m := range scanner.Scan(text) {
			if e.mailbox.Put(m.Action) {
				e.logger.Warn("action mailbox full, dropped oldest action")
			}
			e.emit(Event{Kind: EventAction, Action: m.Action})
		}

		// Cancellation is honoured at every fragment boundary, even when
		// the provider would keep going.
		if err := ctx.Err(); err != nil {
			return acc.String(), err
		}
	}
	return acc.String(), nil
}

func (e *Engine) explain(err error) string {
	switch llm.Classify(err) {
	case llm.FailureRateLimited:
		return e.phrases.RateLimited
	case llm.FailureMisconfigured:
		return e.phrases.Misconfigured
	case llm.FailureCancelled:
		return e.phrases.Aborted
	}
	return e.phrases.GenericError
}

func (e *Engine) notifyRetry(attempt int, wait time.Duration, maxRetries int) {
	notice := catalog.Fill(e.phrases.Retrying,
		"attempt", strconv.Itoa(attempt),
		"max", strconv.Itoa(maxRetries),
		"wait", wait.Round(100*time.Millisecond).String(),
	)
	e.emit(Event{Kind: EventRetry, Notice: notice})
}

// Cancel stops the streaming reply, if any. The partial reply is kept.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// Clear wipes the history, the live preview and pending actions.
func (e *Engine) Clear() error {
	e.mu.Lock()
	if e.loading {
		e.mu.Unlock()
		return ErrBusy
	}
	e.history = nil
	e.preview = ""
	e.mu.Unlock()

	e.mailbox.Clear()
	e.emit(Event{Kind: EventPreview})
	return nil
}

// History returns a copy of the conversation, oldest first.
func (e *Engine) History() []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Message, len(e.history))
	copy(out, e.history)
	return out
}

// Loading reports whether a reply is streaming.
func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// Preview returns the reply streamed so far, or "" when idle.
func (e *Engine) Preview() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.preview
}

// Mailbox holds the actions extracted from replies until consumed.
func (e *Engine) Mailbox() *actions.Mailbox {
	return e.mailbox
}

// LastReply returns the newest model message, if any.
func (e *Engine) LastReply() (Message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.history) - 1; i >= 0; i-- {
		if e.history[i].Role == RoleModel {
			return e.history[i], true
		}
	}
	return Message{}, false
}

func (e *Engine) emit(ev Event) {
	if e.observer != nil {
		e.observer(ev)
	}
}

// store archives a finalized message. Archiving is best effort and
// outlives the request's cancellation.
func (e *Engine) store(ctx context.Context, m Message) {
	if e.archive == nil {
		return
	}
	e.mu.Lock()
	lang := e.language
	e.mu.Unlock()

	err := e.archive.AppendMessage(context.WithoutCancel(ctx), store.TranscriptRecord{
		Timestamp: m.Timestamp,
		SessionID: e.session,
		MessageID: m.ID,
		Language:  lang,
		Role:      string(m.Role),
		Kind:      string(m.Kind),
		Content:   m.Content,
	})
	if err != nil {
		e.logger.Warn("archiving message failed", zap.String("message_id", m.ID), zap.Error(err))
	}
}

func toLLM(m Message) llm.Message {
	role := llm.RoleUser
	if m.Role == RoleModel {
		role = llm.RoleAssistant
	}
	return llm.Message{Role: role, Content: m.Content}
}
