package memory

import (
	"context"
	"sync"

	"deepbook-sandbox/internal/domain"
	"deepbook-sandbox/internal/storage"
)

// BookArchiveStore is an in-memory implementation of storage.BookArchiveStore.
type BookArchiveStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.BookSnapshot // keyed by market id, append order
}

// NewBookArchiveStore creates a new in-memory book archive store.
func NewBookArchiveStore() *BookArchiveStore {
	return &BookArchiveStore{
		data: make(map[string][]*domain.BookSnapshot),
	}
}

// Compile-time interface check.
var _ storage.BookArchiveStore = (*BookArchiveStore)(nil)

// InsertSnapshot archives the aggregated levels of a built snapshot.
func (s *BookArchiveStore) InsertSnapshot(_ context.Context, snap *domain.BookSnapshot) error {
	if snap == nil || snap.MarketID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data[snap.MarketID] {
		if existing.Checkpoint == snap.Checkpoint && existing.BuiltAt.Equal(snap.BuiltAt) {
			return storage.ErrDuplicateKey
		}
	}

	snapCopy := *snap
	snapCopy.Bids = append([]domain.PriceLevel(nil), snap.Bids...)
	snapCopy.Asks = append([]domain.PriceLevel(nil), snap.Asks...)
	s.data[snap.MarketID] = append(s.data[snap.MarketID], &snapCopy)
	return nil
}

// GetLatest retrieves the most recently archived snapshot for a market.
func (s *BookArchiveStore) GetLatest(_ context.Context, marketID string) (*domain.BookSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := s.data[marketID]
	if len(snaps) == 0 {
		return nil, storage.ErrNotFound
	}

	latest := snaps[0]
	for _, snap := range snaps[1:] {
		if snap.BuiltAt.After(latest.BuiltAt) {
			latest = snap
		}
	}

	snapCopy := *latest
	return &snapCopy, nil
}
