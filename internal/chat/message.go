// Package chat runs the conversation with the professor: it streams each
// reply, shows it live, pulls embedded actions out while the reply is still
// arriving and commits the finished reply to the history.
package chat

import (
	"time"

	"github.com/google/uuid"

	"github.com/profacademy/profacademy/internal/actions"
)

// Role identifies who wrote a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Kind tells how a user message is framed for the model.
type Kind string

const (
	KindText Kind = "text"
	KindCode Kind = "code"
)

// Message is one entry of the chat history. Messages never change once
// appended.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

func newMessage(role Role, content string, kind Kind) Message {
	if kind == "" {
		kind = KindText
	}
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Kind:      kind,
		Timestamp: time.Now(),
	}
}

// EventKind names what changed in the engine.
type EventKind string

const (
	// EventPreview carries the whole reply streamed so far. An empty
	// preview means the live view should be cleared.
	EventPreview EventKind = "preview"

	// EventAction carries one action extracted from the reply.
	EventAction EventKind = "action"

	// EventMessage carries a message appended to the history.
	EventMessage EventKind = "message"

	// EventLoading reports a send starting or finishing.
	EventLoading EventKind = "loading"

	// EventRetry reports that the request failed and is being retried.
	EventRetry EventKind = "retry"
)

// Event is published to the engine's observer.
type Event struct {
	Kind    EventKind
	Preview string
	Action  actions.Action
	Message *Message
	Loading bool
	Notice  string
}
