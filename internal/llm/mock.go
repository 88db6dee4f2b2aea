package llm

import (
	"context"
	"iter"
	"strings"
	"sync"
	"time"
)

// MockStream is a canned streamed reply for the MockProvider.
type MockStream struct {
	Fragments []string
	Usage     *Usage

	// Err is yielded after the fragments.
	Err error

	// Gate, when set, must deliver a value before each fragment is
	// yielded. Tests use it to hold a stream open.
	Gate <-chan struct{}

	// Delay is slept before each fragment.
	Delay time.Duration
}

// MockProvider is a deterministic Provider for testing.
// It returns canned streams in FIFO order and records all requests.
type MockProvider struct {
	mu       sync.Mutex
	streams  []MockStream
	fallback *MockStream
	Calls    []Request
}

// NewMockProvider creates a MockProvider with the given canned streams.
func NewMockProvider(streams ...MockStream) *MockProvider {
	return &MockProvider{streams: streams}
}

// NewDemoProvider returns a MockProvider that answers every request with the
// same short lesson reply, for running the app without an API key.
func NewDemoProvider() *MockProvider {
	reply := "Hallo! Ich laufe im **Demo-Modus** ohne API-Schlüssel.\n\n" +
		"Hier ist eine kleine Aufgabe für dich:\n\n" +
		"```json:prof-action\n" +
		`{"action":"WRITE_CODE","code":"# 🎯 AUFGABE: Gib deinen Namen aus.\n# DEIN CODE HIER:\n"}` +
		"\n```\n\n" +
		"```text\nHallo, Welt!\n```\n\nBereit für den nächsten kleinen Schritt?"
	return &MockProvider{fallback: &MockStream{
		Fragments: splitFragments(reply, 12),
		Delay:     15 * time.Millisecond,
	}}
}

// Stream returns the next canned stream, the fallback when the queue is
// empty, or ErrProviderUnavailable when there is neither.
func (m *MockProvider) Stream(ctx context.Context, req Request) iter.Seq2[Chunk, error] {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	var (
		s  MockStream
		ok bool
	)
	switch {
	case len(m.streams) > 0:
		s, ok = m.streams[0], true
		m.streams = m.streams[1:]
	case m.fallback != nil:
		s, ok = *m.fallback, true
	}
	m.mu.Unlock()

	return func(yield func(Chunk, error) bool) {
		if !ok {
			yield(Chunk{}, &ErrProviderUnavailable{})
			return
		}
		for _, f := range s.Fragments {
			if s.Gate != nil {
				select {
				case <-ctx.Done():
					yield(Chunk{}, ctx.Err())
					return
				case <-s.Gate:
				}
			}
			if s.Delay > 0 {
				select {
				case <-ctx.Done():
					yield(Chunk{}, ctx.Err())
					return
				case <-time.After(s.Delay):
				}
			}
			if err := ctx.Err(); err != nil {
				yield(Chunk{}, err)
				return
			}
			if !yield(Chunk{Text: f}, nil) {
				return
			}
		}
		if s.Err != nil {
			yield(Chunk{}, s.Err)
			return
		}
		if s.Usage != nil {
			yield(Chunk{Usage: s.Usage}, nil)
		}
	}
}

// ModelID returns "mock".
func (m *MockProvider) ModelID() string {
	return "mock"
}

// AddStream appends a canned stream to the queue.
func (m *MockProvider) AddStream(s MockStream) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams = append(m.streams, s)
}

// CallCount returns the number of Stream calls made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastRequest returns the most recent request, or the zero Request.
func (m *MockProvider) LastRequest() Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return Request{}
	}
	return m.Calls[len(m.Calls)-1]
}

// splitFragments cuts s into pieces of at most n runes.
func splitFragments(s string, n int) []string {
	var (
		out []string
		b   strings.Builder
		c   int
	)
	for _, r := range s {
		b.WriteRune(r)
		c++
		if c == n {
			out = append(out, b.String())
			b.Reset()
			c = 0
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
