package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/profacademy/profacademy/internal/store"
)

// LoggingProvider is a decorator that records every LLM stream as an event.
type LoggingProvider struct {
	inner     Provider
	name      string
	eventRepo store.EventRepo
	logger    *zap.Logger
}

// WithLogging wraps a Provider with event logging. providerName is stored
// with each event ("gemini", "openai", ...).
func WithLogging(p Provider, providerName string, repo store.EventRepo, logger *zap.Logger) Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingProvider{inner: p, name: providerName, eventRepo: repo, logger: logger}
}

func (l *LoggingProvider) Stream(ctx context.Context, req Request) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		start := time.Now()
		var (
			text    strings.Builder
			usage   Usage
			failure error
		)

		defer func() {
			l.record(ctx, req, start, text.String(), usage, failure)
		}()

		for chunk, err := range l.inner.Stream(ctx, req) {
			if err != nil {
				failure = err
				yield(Chunk{}, err)
				return
			}
			text.WriteString(chunk.Text)
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
			if !yield(chunk, nil) {
				failure = context.Canceled
				return
			}
		}
	}
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}

func (l *LoggingProvider) record(ctx context.Context, req Request, start time.Time, response string, usage Usage, failure error) {
	latency := time.Since(start)
	data := store.LLMRequestEventData{
		Provider:     l.name,
		Model:        l.inner.ModelID(),
		Purpose:      PurposeFrom(ctx),
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		LatencyMs:    latency.Milliseconds(),
		Success:      failure == nil,
		RequestBody:  serializeRequest(req),
		ResponseBody: response,
	}
	if failure != nil {
		data.ErrorMessage = failure.Error()
	}

	l.logger.Debug("llm stream finished",
		zap.String("provider", data.Provider),
		zap.String("model", data.Model),
		zap.String("purpose", data.Purpose),
		zap.Int("input_tokens", data.InputTokens),
		zap.Int("output_tokens", data.OutputTokens),
		zap.Duration("latency", latency),
		zap.Error(failure),
	)

	if l.eventRepo == nil {
		return
	}
	// The stream may have ended because ctx was cancelled; the event is
	// still worth keeping.
	if err := l.eventRepo.AppendLLMRequest(context.WithoutCancel(ctx), data); err != nil {
		l.logger.Warn("failed to log LLM request event", zap.Error(err))
	}
}

// serializeRequest builds a readable representation of the LLM request.
func serializeRequest(req Request) string {
	var b strings.Builder

	if req.System != "" {
		b.WriteString("[system]\n")
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}

	for _, m := range req.Messages {
		fmt.Fprintf(&b, "[%s]\n", m.Role)
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}

	if req.ThinkingBudget > 0 {
		fmt.Fprintf(&b, "[thinking budget: %d]\n", req.ThinkingBudget)
	}

	return b.String()
}
