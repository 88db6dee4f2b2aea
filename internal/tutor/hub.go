package tutor

import (
	"sync"

	"go.uber.org/zap"
)

const subscriberBuffer = 256

// hub fans session events out to subscribers. Publishing never blocks: a
// subscriber that falls behind loses events.
type hub struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan Event
	logger *zap.Logger
}

func newHub(logger *zap.Logger) *hub {
	return &hub{subs: make(map[int]chan Event), logger: logger}
}

func (h *hub) subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
		}
	}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Debug("subscriber lagging, event dropped", zap.Int("subscriber", id), zap.String("kind", string(ev.Kind)))
		}
	}
}

// closeAll ends every subscription.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
