package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/profacademy/profacademy/internal/tutor"
)

// Terminal events of a stream. Session events use their kind as the
// event name.
const (
	sseDone  = "done"
	sseError = "error"
)

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// streamOp runs op against sess and streams the session's events as
// server-sent events until op returns. An op that fails before producing
// any event gets a plain JSON error response with a proper status code.
func (s *Server) streamOp(w http.ResponseWriter, r *http.Request, sess *tutor.Session, verb string, op func(ctx context.Context) error) {
	if !s.limiter.allow(sess.ID) {
		s.metrics.limited.Inc()
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	if sess.Loading() {
		writeError(w, http.StatusConflict, "the professor is still answering")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	done := make(chan error, 1)
	go func() { done <- op(r.Context()) }()

	st := &sseStream{w: w, flusher: flusher}
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := st.event(ev); err != nil {
				s.logger.Debug("client went away", zap.Error(err))
			}
		case err := <-done:
			st.drain(events)
			s.finish(w, st, sess, verb, err)
			return
		}
	}
}

func (s *Server) finish(w http.ResponseWriter, st *sseStream, sess *tutor.Session, verb string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.streams.WithLabelValues(verb, outcome).Inc()

	if err != nil && !st.started {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if err != nil {
		s.logger.Warn("stream failed", zap.String("session", sess.ID), zap.String("verb", verb), zap.Error(err))
		data, _ := json.Marshal(errorResponse{Error: err.Error()})
		_ = st.send(sseError, data)
		return
	}
	data, mErr := json.Marshal(sess.Snapshot())
	if mErr != nil {
		s.logger.Error("encode session state", zap.Error(mErr))
		return
	}
	_ = st.send(sseDone, data)
}

type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	broken  bool
}

func (st *sseStream) start() {
	if st.started {
		return
	}
	h := st.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	st.w.WriteHeader(http.StatusOK)
	st.started = true
}

func (st *sseStream) event(ev tutor.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Kind, err)
	}
	return st.send(string(ev.Kind), data)
}

// send writes one event. After the first write error the stream goes
// quiet; the op keeps running and its reply is still recorded.
func (st *sseStream) send(event string, data []byte) error {
	if st.broken {
		return errors.New("stream closed")
	}
	st.start()
	if err := writeSSE(st.w, event, string(data)); err != nil {
		st.broken = true
		return err
	}
	st.flusher.Flush()
	return nil
}

// drain forwards events already buffered when the op returned.
func (st *sseStream) drain(events <-chan tutor.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = st.event(ev)
		default:
			return
		}
	}
}
