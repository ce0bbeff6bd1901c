package chathub

import "sync"

// mailbox is an unbounded FIFO of events for the session loop. Posting never
// blocks, so store listeners and timers can always hand work over.
type mailbox struct {
	mu     sync.Mutex
	events []func()
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) post(ev func()) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// drain takes every queued event in posting order.
func (m *mailbox) drain() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.events
	m.events = nil
	return events
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
