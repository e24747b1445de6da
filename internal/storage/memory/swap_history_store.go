package memory

import (
	"context"
	"sort"
	"sync"

	"deepbook-sandbox/internal/domain"
	"deepbook-sandbox/internal/storage"
)

// SwapHistoryStore is an in-memory implementation of storage.SwapHistoryStore.
type SwapHistoryStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SwapRecord // keyed by swap id
}

// NewSwapHistoryStore creates a new in-memory swap history store.
func NewSwapHistoryStore() *SwapHistoryStore {
	return &SwapHistoryStore{
		data: make(map[string]*domain.SwapRecord),
	}
}

// Compile-time interface check.
var _ storage.SwapHistoryStore = (*SwapHistoryStore)(nil)

// Insert adds a new swap record. Returns ErrDuplicateKey if swap_id exists.
func (s *SwapHistoryStore) Insert(_ context.Context, rec *domain.SwapRecord) error {
	if rec == nil || rec.ID == "" || rec.SessionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[rec.ID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	recCopy := *rec
	s.data[rec.ID] = &recCopy
	return nil
}

// GetByID retrieves a swap by its ID. Returns ErrNotFound if not exists.
func (s *SwapHistoryStore) GetByID(_ context.Context, swapID string) (*domain.SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.data[swapID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	recCopy := *rec
	return &recCopy, nil
}

// GetBySessionID retrieves all swaps for a session, ordered by executed_at ASC.
func (s *SwapHistoryStore) GetBySessionID(_ context.Context, sessionID string) ([]*domain.SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.SwapRecord
	for _, rec := range s.data {
		if rec.SessionID == sessionID {
			recCopy := *rec
			out = append(out, &recCopy)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ExecutedAt.Before(out[j].ExecutedAt)
	})
	return out, nil
}
