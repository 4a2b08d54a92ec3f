package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*Subscription
}

// NewMemoryStore creates an empty in-memory subscription store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[uuid.UUID]*Subscription)}
}

func (s *MemoryStore) Get(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[userID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s *MemoryStore) GetByExternalSubscriptionRef(_ context.Context, ref string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref == "" {
		return nil, ErrSubscriptionNotFound
	}
	for _, sub := range s.subs {
		if sub.ExternalSubscriptionRef == ref {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *MemoryStore) GetOrCreate(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[userID]; ok {
		cp := *sub
		return &cp, nil
	}
	sub := NewDefaultSubscription(userID, time.Now())
	s.subs[userID] = sub
	cp := *sub
	return &cp, nil
}

func (s *MemoryStore) Upsert(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sub
	cp.UpdatedAt = time.Now().UTC()
	if existing, ok := s.subs[sub.UserID]; ok {
		cp.CreatedAt = existing.CreatedAt
	}
	s.subs[sub.UserID] = &cp
	return nil
}

func (s *MemoryStore) RolloverIfExpired(_ context.Context, userID uuid.UUID, now time.Time) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[userID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	now = now.UTC()
	if now.After(sub.CurrentPeriodEnd) {
		sub.GenerationsUsed = 0
		sub.CurrentPeriodEnd = now.Add(DefaultPeriod)
		sub.UpdatedAt = now
	}
	cp := *sub
	return &cp, nil
}

func (s *MemoryStore) IncrementGenerationsUsed(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[userID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	sub.GenerationsUsed++
	sub.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetExternalCustomerRef(_ context.Context, userID uuid.UUID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[userID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	sub.ExternalCustomerRef = ref
	sub.UpdatedAt = time.Now().UTC()
	return nil
}
