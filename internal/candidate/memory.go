package candidate

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store used by tests and local runs without MongoDB.
type MemoryStore struct {
	mu      sync.Mutex
	records map[int64]Record
	updates int
}

// NewMemoryStore seeds a store with the given records.
func NewMemoryStore(records ...Record) *MemoryStore {
	s := &MemoryStore{records: make(map[int64]Record, len(records))}
	for _, r := range records {
		s.records[r.UID] = r
	}
	return s
}

// Get returns a copy of the record keyed by uid.
func (s *MemoryStore) Get(_ context.Context, uid int64) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[uid]
	if !ok {
		return nil, fmt.Errorf("uid %d: %w", uid, ErrNotFound)
	}
	return &r, nil
}

// UpdateScreening applies the update under the store lock.
func (s *MemoryStore) UpdateScreening(_ context.Context, uid int64, update ScreeningUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[uid]
	if !ok {
		return fmt.Errorf("uid %d: %w", uid, ErrNotFound)
	}

	if update.Status != nil {
		r.PhoneScreen = *update.Status
	}
	if update.Score != nil {
		r.SecondaryScore = *update.Score
	}
	if update.Notes != nil {
		r.PhoneNotes = *update.Notes
	}

	s.records[uid] = r
	s.updates++
	return nil
}

// Updates counts successful UpdateScreening calls.
func (s *MemoryStore) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}
