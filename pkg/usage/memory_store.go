package usage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type monthKey struct {
	userID uuid.UUID
	month  string
}

type memoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Record
	index   map[monthKey]uuid.UUID
}

// NewMemoryStore returns an in-process Store. The mutex stands in for the row-level atomicity
// a database gives the conditional increment.
func NewMemoryStore() Store {
	return &memoryStore{
		records: make(map[uuid.UUID]*Record),
		index:   make(map[monthKey]uuid.UUID),
	}
}

func (s *memoryStore) Get(_ context.Context, userID uuid.UUID, month string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.index[monthKey{userID, month}]
	if !ok {
		return nil, ErrRecordNotFound
	}
	rec := *s.records[id]
	return &rec, nil
}

func (s *memoryStore) Insert(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := monthKey{rec.UserID, rec.Month}
	if _, ok := s.index[key]; ok {
		return ErrRecordExists
	}
	stored := *rec
	s.records[rec.ID] = &stored
	s.index[key] = rec.ID
	return nil
}

func (s *memoryStore) SetPlan(_ context.Context, id uuid.UUID, planID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	rec.PlanID = planID
	rec.UpdatedAt = at
	return nil
}

func (s *memoryStore) Increment(_ context.Context, id uuid.UUID, planID string, limit int64, at time.Time) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	if limit >= 0 && rec.Count >= limit {
		return nil, ErrLimitReached
	}
	rec.Count++
	rec.PlanID = planID
	rec.UpdatedAt = at

	out := *rec
	return &out, nil
}
