package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// TranscriptMessage archives one finished chat message. Messages are never
// updated.
type TranscriptMessage struct {
	ent.Schema
}

func (TranscriptMessage) Mixin() []ent.Mixin {
	return []ent.Mixin{EventMixin{}}
}

func (TranscriptMessage) Fields() []ent.Field {
	return []ent.Field{
		field.String("session_id").
			Immutable(),
		field.String("message_id").
			Immutable(),
		field.String("language").
			Default(""),
		field.String("role").
			Comment("user or model"),
		field.String("kind").
			Default("text").
			Comment("text or code"),
		field.Text("content"),
	}
}

func (TranscriptMessage) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("session_id"),
	}
}
