package sinks

import (
	"context"
	"sync"

	"espnow-arena/node/logging"
)

// MemorySink keeps every event in memory. Tests use it to assert on what a
// component published.
type MemorySink struct {
	mu     sync.RWMutex
	events []logging.Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Publish lets the sink stand in for a Publisher without a router.
func (s *MemorySink) Publish(_ context.Context, event logging.Event) {
	_ = s.Write(event)
}

func (s *MemorySink) Write(event logging.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemorySink) Events() []logging.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := make([]logging.Event, len(s.events))
	copy(copied, s.events)
	return copied
}

// OfType returns the recorded events with the given type.
func (s *MemorySink) OfType(eventType logging.EventType) []logging.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []logging.Event
	for _, event := range s.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = s.events[:0]
}

func (s *MemorySink) Close(context.Context) error {
	return nil
}
