package stream

import (
	"context"
	"sync"
	"time"
)

// RecordEvent describes a lifecycle change of an infraction record for live
// consumers (dashboards, SSE clients).
type RecordEvent struct {
	RecordID   string    `json:"record_id"`
	Number     string    `json:"number,omitempty"`
	Action     string    `json:"action"`
	ActorID    string    `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Stream fan-outs record events to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan RecordEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan RecordEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan RecordEvent {
	ch := make(chan RecordEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt RecordEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
