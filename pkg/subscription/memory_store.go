package subscription

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscription
}

// NewMemoryStore returns an in-process Store. Records are copied on the way in and out.
func NewMemoryStore() Store {
	return &memoryStore{subs: make(map[uuid.UUID]*Subscription)}
}

func (s *memoryStore) Get(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[userID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return sub.Clone(), nil
}

func (s *memoryStore) Insert(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[sub.UserID]; ok {
		return ErrSubscriptionExists
	}
	s.subs[sub.UserID] = sub.Clone()
	return nil
}

func (s *memoryStore) Update(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.subs[sub.UserID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	next := sub.Clone()
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	s.subs[sub.UserID] = next
	return nil
}

func (s *memoryStore) SetCustomerID(_ context.Context, userID uuid.UUID, customerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.subs[userID]
	if !ok {
		return "", ErrSubscriptionNotFound
	}
	if current.CustomerID == "" {
		current.CustomerID = customerID
	}
	return current.CustomerID, nil
}
