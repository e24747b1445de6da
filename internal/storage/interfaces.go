package storage

import (
	"context"

	"deepbook-sandbox/internal/domain"
)

// SwapHistoryStore provides access to executed-swap storage.
type SwapHistoryStore interface {
	// Insert adds a new swap record. Returns ErrDuplicateKey if swap_id exists.
	Insert(ctx context.Context, rec *domain.SwapRecord) error

	// GetByID retrieves a swap by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, swapID string) (*domain.SwapRecord, error)

	// GetBySessionID retrieves all swaps for a session, ordered by executed_at ASC.
	GetBySessionID(ctx context.Context, sessionID string) ([]*domain.SwapRecord, error)
}

// BookArchiveStore persists built snapshots for later depth analysis.
type BookArchiveStore interface {
	// InsertSnapshot archives the aggregated levels of a built snapshot.
	// Returns ErrDuplicateKey if (market_id, checkpoint, built_at) exists.
	InsertSnapshot(ctx context.Context, snap *domain.BookSnapshot) error

	// GetLatest retrieves the most recently archived levels for a market.
	// Returns ErrNotFound if the market has never been archived.
	GetLatest(ctx context.Context, marketID string) (*domain.BookSnapshot, error)
}
