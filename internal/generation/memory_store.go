package generation

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryCaptionStore is an in-memory CaptionStore for tests.
type MemoryCaptionStore struct {
	mu       sync.Mutex
	captions []*Caption
}

// NewMemoryCaptionStore creates an empty in-memory caption store.
func NewMemoryCaptionStore() *MemoryCaptionStore {
	return &MemoryCaptionStore{}
}

func (s *MemoryCaptionStore) InsertBatch(_ context.Context, captions []*Caption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range captions {
		cp := *c
		s.captions = append(s.captions, &cp)
	}
	return nil
}

func (s *MemoryCaptionStore) CountDistinctVariationBatches(_ context.Context, parentBatchID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	for _, c := range s.captions {
		if c.ParentGenerationBatchID == parentBatchID {
			seen[c.GenerationBatchID] = struct{}{}
		}
	}
	return int64(len(seen)), nil
}

func (s *MemoryCaptionStore) BatchParent(_ context.Context, userID uuid.UUID, batchID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.captions {
		if c.UserID == userID && c.GenerationBatchID == batchID {
			return c.ParentGenerationBatchID, nil
		}
	}
	return "", ErrBatchNotFound
}

// All returns a snapshot of stored captions, for test assertions.
func (s *MemoryCaptionStore) All() []*Caption {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Caption, len(s.captions))
	copy(out, s.captions)
	return out
}
