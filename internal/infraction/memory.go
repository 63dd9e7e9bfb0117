package infraction

import (
	"context"
	"sort"
	"sync"

	"conselho.org/internal/audit"
	"conselho.org/internal/ids"
)

// InMemory implements Store with in-process concurrency safety. The mutex
// stands in for the row lock a database provides: mutating calls on the same
// record cannot interleave. Used by tests and by dev mode.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]*Record
	entries []audit.Entry
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{records: make(map[string]*Record)}
}

func (s *InMemory) Create(ctx context.Context, rec *Record, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	s.records[rec.ID] = rec.Clone()
	s.appendLocked(entry)
	return nil
}

func (s *InMemory) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *InMemory) List(ctx context.Context, limit int, afterID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.records))
	for id := range s.records {
		if id > afterID {
			keys = append(keys, id)
		}
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	res := make([]Record, 0, len(keys))
	for _, id := range keys {
		res = append(res, *s.records[id].Clone())
	}
	return res, nil
}

func (s *InMemory) Mutate(ctx context.Context, id string, fn MutateFunc) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	// fn works on a copy so a failed mutation leaves the stored record intact.
	work := rec.Clone()
	entry, err := fn(work)
	if err != nil {
		s.appendLocked(entry)
		return nil, err
	}
	s.records[id] = work.Clone()
	s.appendLocked(entry)
	return work, nil
}

func (s *InMemory) Delete(ctx context.Context, id string, fn MutateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	entry, err := fn(rec.Clone())
	if err != nil {
		s.appendLocked(entry)
		return err
	}
	delete(s.records, id)
	s.appendLocked(entry)
	return nil
}

func (s *InMemory) Append(ctx context.Context, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(entry)
	return nil
}

func (s *InMemory) Trail(ctx context.Context, recordID string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []audit.Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].RecordID == recordID {
			res = append(res, s.entries[i])
		}
	}
	return res, nil
}

func (s *InMemory) appendLocked(entry *audit.Entry) {
	if entry == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	s.entries = append(s.entries, *entry)
}
