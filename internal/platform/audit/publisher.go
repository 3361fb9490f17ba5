package audit

import (
	"context"
	"sync"
	"time"
)

// Store is the persistence boundary for audit events. Sinks are
// append-only; listing exists for tests and operational inspection.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher stamps and forwards audit events to a store. It exists so
// domain services depend on a narrow Emit method and tests can swap sinks.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.store.Append(ctx, event)
}

// MemoryStore is an in-memory append-only sink for tests and dev mode.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything appended so far.
func (s *MemoryStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
