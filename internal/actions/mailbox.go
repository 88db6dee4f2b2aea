package actions

import "sync"

// DefaultMailboxCapacity is enough for every action a single reply
// realistically carries.
const DefaultMailboxCapacity = 8

// Mailbox is a bounded FIFO of dispatched actions. Put never blocks; when
// the mailbox is full the oldest action is dropped and counted.
//
// It is safe for concurrent use.
type Mailbox struct {
	mu      sync.Mutex
	items   []Action
	cap     int
	dropped int
}

// NewMailbox returns a mailbox holding at most capacity actions.
// A capacity below one is treated as one.
func NewMailbox(capacity int) *Mailbox {
	return &Mailbox{cap: max(capacity, 1)}
}

// Put enqueues a. It reports whether an older action had to be dropped.
func (m *Mailbox) Put(a Action) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := false
	if len(m.items) == m.cap {
		m.items = m.items[1:]
		m.dropped++
		dropped = true
	}
	m.items = append(m.items, a)
	return dropped
}

// Take removes and returns the oldest action.
func (m *Mailbox) Take() (Action, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == 0 {
		return nil, false
	}
	a := m.items[0]
	m.items[0] = nil
	m.items = m.items[1:]
	return a, true
}

// Drain removes and returns all pending actions, oldest first.
func (m *Mailbox) Drain() []Action {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.items
	m.items = nil
	return out
}

func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Dropped returns how many actions were lost to overflow since creation.
func (m *Mailbox) Dropped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Clear discards pending actions. The drop counter is kept.
func (m *Mailbox) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = nil
}
