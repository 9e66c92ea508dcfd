package audit

import (
	"context"
	"sync"
)

// MemoryLogger keeps events in memory. Intended for tests and development.
type MemoryLogger struct {
	mu     sync.Mutex
	events []*Event
}

// NewMemoryLogger creates an empty in-memory logger
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

// Log appends the event
func (l *MemoryLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	copied := *event
	l.events = append(l.events, &copied)
	return nil
}

// Close is a no-op
func (l *MemoryLogger) Close() error { return nil }

// Events returns a snapshot of recorded events
func (l *MemoryLogger) Events() []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Event, len(l.events))
	copy(out, l.events)
	return out
}

// EventsOfType returns recorded events matching the given type
func (l *MemoryLogger) EventsOfType(eventType EventType) []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*Event
	for _, e := range l.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards all recorded events
func (l *MemoryLogger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}
