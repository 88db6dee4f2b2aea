package llm

import (
	"context"
	"iter"
)

// Provider is the core abstraction for LLM interaction.
// Consumers call Stream with a Request and receive the reply as an ordered
// sequence of text fragments.
type Provider interface {
	// Stream sends the conversation to the LLM and yields the reply in
	// fragments as they arrive. Iteration ends after the final fragment or
	// after the first error; a non-nil error is always the last value
	// yielded. Breaking out of the loop releases the underlying connection.
	//
	// Cancelling ctx stops the stream; the error yielded is then ctx.Err().
	Stream(ctx context.Context, req Request) iter.Seq2[Chunk, error]

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Request describes what to send to the LLM.
type Request struct {
	// System is the system prompt. Sets the professor persona and the
	// teaching rules.
	System string

	// Messages is the conversation history, oldest first. The last entry is
	// the prompt being answered.
	Messages []Message

	// MaxTokens is the maximum number of tokens in the response.
	// Zero lets the provider pick its default.
	MaxTokens int

	// Temperature controls randomness. Range: 0.0 - 1.0.
	// Zero means provider default.
	Temperature float64

	// ThinkingBudget caps the reasoning tokens for providers that support
	// it. Zero disables thinking.
	ThinkingBudget int
}

// Message represents a single message in the conversation.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Chunk is one streamed fragment of a reply.
type Chunk struct {
	// Text is the newly generated text. May be empty on the final chunk.
	Text string

	// Usage is set on the chunk that carries token accounting, usually the
	// last one. Nil otherwise.
	Usage *Usage
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Collect drains a stream into a single string. It returns the text
// received so far together with the first error.
func Collect(seq iter.Seq2[Chunk, error]) (string, Usage, error) {
	var (
		text  []byte
		usage Usage
	)
	for chunk, err := range seq {
		if err != nil {
			return string(text), usage, err
		}
		text = append(text, chunk.Text...)
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
	}
	return string(text), usage, nil
}
