package server

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/profacademy/profacademy/internal/tutor"
)

const wsWriteTimeout = 10 * time.Second

// wsMessage is what a websocket client may send.
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// Client message types.
const (
	wsCancel = "cancel"
	wsCode   = "code"
)

// handleWebSocket feeds every session event to the client, starting with
// the current state. The client may cancel the streaming reply or push
// editor contents; everything else goes through the HTTP verbs.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.String("session", sess.ID), zap.Error(err))
		return
	}
	defer func() {
		if err := conn.Close(websocket.StatusNormalClosure, "session ended"); err != nil {
			s.logger.Debug("websocket close", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	go func() {
		defer cancel()
		s.wsReadLoop(ctx, conn, sess)
	}()

	state := sess.Snapshot()
	if err := s.wsWrite(ctx, conn, map[string]any{"kind": "state", "state": state}); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.wsWrite(ctx, conn, ev); err != nil {
				return
			}
		}
	}
}

func (s *Server) wsWrite(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, v); err != nil {
		if ctx.Err() == nil {
			s.logger.Debug("websocket write failed", zap.Error(err))
		}
		return err
	}
	return nil
}

func (s *Server) wsReadLoop(ctx context.Context, conn *websocket.Conn, sess *tutor.Session) {
	for {
		var msg wsMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				s.logger.Debug("websocket read failed", zap.String("session", sess.ID), zap.Error(err))
			}
			return
		}
		switch msg.Type {
		case wsCancel:
			sess.Cancel()
		case wsCode:
			sess.SetCode(msg.Content)
		default:
			s.logger.Debug("unknown websocket message", zap.String("type", msg.Type))
		}
	}
}
