package insightstore

import (
	"context"
	"sync"
)

type memoryKey struct {
	userID      string
	patternType string
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[memoryKey]Record
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[memoryKey]Record)}
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(ctx context.Context, obs Observation) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := obs.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	key := memoryKey{obs.UserID, obs.PatternType}
	rec, ok := s.records[key]
	if !ok {
		rec = Record{
			ID:          RecordID(obs.UserID, obs.PatternType),
			UserID:      obs.UserID,
			PatternType: obs.PatternType,
			FirstSeen:   obs.ObservedAt,
		}
	}
	rec.InsightType = obs.InsightType
	rec.Insight = obs.Insight
	rec.Evidence = obs.Evidence
	rec.Strength = obs.Strength
	rec.Occurrences++
	rec.LastSeen = obs.ObservedAt
	s.records[key] = rec

	out := rec
	return &out, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, userID, patternType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(userID, patternType); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.records, memoryKey{userID, patternType})
	return nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, userID string, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	records := make([]Record, 0)
	for k, rec := range s.records {
		if k.userID == userID {
			records = append(records, rec)
		}
	}
	s.mu.Unlock()

	return sortAndLimit(records, limit), nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ Store = (*MemoryStore)(nil)
