package outbox

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the outbox in process. A failed event goes back to
// pending and an expired lease is reclaimed. Dead events are kept and
// reported by Dead.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	events []*memoryEvent
}

type memoryEvent struct {
	Event
	leaseUntil time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	event.ID = s.nextID
	event.Status = StatusPending
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.events = append(s.events, &memoryEvent{Event: event})
	return nil
}

func (s *MemoryStore) LockBatch(_ context.Context, _ string, batchSize int, lease time.Duration) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var out []Event
	for _, e := range s.events {
		if len(out) == batchSize {
			break
		}
		claimable := e.Status == StatusPending ||
			(e.Status == StatusInProgress && now.After(e.leaseUntil))
		if !claimable {
			continue
		}
		e.Status = StatusInProgress
		e.leaseUntil = now.Add(lease)
		out = append(out, e.Event)
	}
	return out, nil
}

func (s *MemoryStore) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sent := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		sent[id] = struct{}{}
	}
	kept := s.events[:0]
	for _, e := range s.events {
		if _, ok := sent[e.ID]; ok {
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, id int64, errMsg string) error {
	s.fail(id, StatusPending, errMsg)
	return nil
}

func (s *MemoryStore) MarkDead(_ context.Context, id int64, errMsg string) error {
	s.fail(id, StatusDead, errMsg)
	return nil
}

func (s *MemoryStore) fail(id int64, status Status, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.ID == id {
			e.Status = status
			e.RetryCount++
			e.LastError = errMsg
		}
	}
}

// Dead returns the events that exhausted their retries.
func (s *MemoryStore) Dead() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Status == StatusDead {
			out = append(out, e.Event)
		}
	}
	return out
}

// Len returns the number of events not yet sent.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
