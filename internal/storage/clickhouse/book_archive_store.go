package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deepbook-sandbox/internal/domain"
	"deepbook-sandbox/internal/observability"
	"deepbook-sandbox/internal/storage"
)

// BookArchiveStore implements storage.BookArchiveStore using ClickHouse.
// Each snapshot is flattened to one row per aggregated price level.
type BookArchiveStore struct {
	conn *Conn
}

// NewBookArchiveStore creates a new BookArchiveStore.
func NewBookArchiveStore(conn *Conn) *BookArchiveStore {
	return &BookArchiveStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BookArchiveStore = (*BookArchiveStore)(nil)

// InsertSnapshot archives the aggregated levels of a built snapshot.
// Returns ErrDuplicateKey if (market_id, checkpoint, built_at) exists.
func (s *BookArchiveStore) InsertSnapshot(ctx context.Context, snap *domain.BookSnapshot) (err error) {
	if snap == nil || snap.MarketID == "" {
		return storage.ErrInvalidInput
	}
	defer observeQuery("insert_snapshot", time.Now(), &err)

	// MergeTree does not enforce uniqueness, so check before insert.
	exists, err := s.exists(ctx, snap.MarketID, snap.Checkpoint, snap.BuiltAt)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO book_levels (
			market_id, checkpoint, built_at, side, tick, quantity, orders, base_decimals, quote_decimals
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	appendSide := func(side string, levels []domain.PriceLevel) error {
		for _, lvl := range levels {
			err := batch.Append(
				snap.MarketID, snap.Checkpoint, snap.BuiltAt.UTC(), side,
				lvl.Tick, lvl.Quantity, uint32(lvl.Orders),
				snap.BaseDecimals, snap.QuoteDecimals,
			)
			if err != nil {
				return fmt.Errorf("append to batch: %w", err)
			}
		}
		return nil
	}
	if err := appendSide("bid", snap.Bids); err != nil {
		return err
	}
	if err := appendSide("ask", snap.Asks); err != nil {
		return err
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetLatest retrieves the most recently archived snapshot for a market.
// Returns ErrNotFound if the market has never been archived.
func (s *BookArchiveStore) GetLatest(ctx context.Context, marketID string) (snap *domain.BookSnapshot, err error) {
	defer observeQuery("get_latest_snapshot", time.Now(), &err)

	var (
		checkpoint uint64
		builtAt    time.Time
	)
	err = s.conn.QueryRow(ctx, `
		SELECT checkpoint, built_at FROM book_levels
		WHERE market_id = ?
		ORDER BY built_at DESC
		LIMIT 1
	`, marketID).Scan(&checkpoint, &builtAt)
	if err != nil {
		return nil, storage.ErrNotFound
	}

	rows, err := s.conn.Query(ctx, `
		SELECT side, tick, quantity, orders, base_decimals, quote_decimals
		FROM book_levels
		WHERE market_id = ? AND checkpoint = ? AND built_at = ?
		ORDER BY side ASC, tick ASC
	`, marketID, checkpoint, builtAt)
	if err != nil {
		return nil, fmt.Errorf("query snapshot levels: %w", err)
	}
	defer rows.Close()

	snap = &domain.BookSnapshot{
		MarketID:   marketID,
		Checkpoint: checkpoint,
		BuiltAt:    builtAt,
	}
	for rows.Next() {
		var (
			side   string
			lvl    domain.PriceLevel
			orders uint32
		)
		err := rows.Scan(&side, &lvl.Tick, &lvl.Quantity, &orders, &snap.BaseDecimals, &snap.QuoteDecimals)
		if err != nil {
			return nil, fmt.Errorf("scan level row: %w", err)
		}
		lvl.Orders = int(orders)
		if side == "bid" {
			snap.Bids = append(snap.Bids, lvl)
		} else {
			snap.Asks = append(snap.Asks, lvl)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate level rows: %w", err)
	}

	// Levels come back ascending by tick; bids are served best first.
	for i, j := 0, len(snap.Bids)-1; i < j; i, j = i+1, j-1 {
		snap.Bids[i], snap.Bids[j] = snap.Bids[j], snap.Bids[i]
	}
	return snap, nil
}

// observeQuery records query duration and unexpected errors. Sentinel
// outcomes such as not-found and duplicate-key are not counted as errors.
func observeQuery(op string, start time.Time, errp *error) {
	observability.DefaultMetrics.DBQueryDuration.WithLabelValues("clickhouse", op).Observe(time.Since(start).Seconds())
	if err := *errp; err != nil &&
		!errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrDuplicateKey) {
		observability.DefaultMetrics.DBQueryErrors.WithLabelValues("clickhouse", op).Inc()
	}
}

// exists checks if a snapshot with the given key has been archived.
func (s *BookArchiveStore) exists(ctx context.Context, marketID string, checkpoint uint64, builtAt time.Time) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count(*) FROM book_levels
		WHERE market_id = ? AND checkpoint = ? AND built_at = ?
	`, marketID, checkpoint, builtAt.UTC()).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
