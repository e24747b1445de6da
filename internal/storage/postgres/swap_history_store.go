package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"deepbook-sandbox/internal/domain"
	"deepbook-sandbox/internal/observability"
	"deepbook-sandbox/internal/storage"
)

// SwapHistoryStore implements storage.SwapHistoryStore using PostgreSQL.
type SwapHistoryStore struct {
	pool *Pool
}

// NewSwapHistoryStore creates a new SwapHistoryStore.
func NewSwapHistoryStore(pool *Pool) *SwapHistoryStore {
	return &SwapHistoryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SwapHistoryStore = (*SwapHistoryStore)(nil)

// Insert adds a new swap record. Returns ErrDuplicateKey if swap_id exists.
// Token amounts are uint64 and stored as BIGINT via a two's complement cast.
func (s *SwapHistoryStore) Insert(ctx context.Context, rec *domain.SwapRecord) (err error) {
	if rec == nil || rec.ID == "" || rec.SessionID == "" {
		return storage.ErrInvalidInput
	}
	defer observeQuery("insert_swap", time.Now(), &err)

	query := `
		INSERT INTO swap_history (
			swap_id, session_id, from_token, to_token, amount_in, amount_out, route, impact_bps, book_checkpoint, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = s.pool.Exec(ctx, query,
		rec.ID,
		rec.SessionID,
		rec.FromToken,
		rec.ToToken,
		int64(rec.AmountIn),
		int64(rec.AmountOut),
		rec.Route,
		rec.ImpactBps,
		int64(rec.BookCheckpt),
		rec.ExecutedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert swap record: %w", err)
	}
	return nil
}

// GetByID retrieves a swap by its ID. Returns ErrNotFound if not exists.
func (s *SwapHistoryStore) GetByID(ctx context.Context, swapID string) (rec *domain.SwapRecord, err error) {
	defer observeQuery("get_swap", time.Now(), &err)

	query := `
		SELECT swap_id, session_id, from_token, to_token, amount_in, amount_out, route, impact_bps, book_checkpoint, executed_at
		FROM swap_history
		WHERE swap_id = $1
	`

	rec, err = scanSwapRecord(s.pool.QueryRow(ctx, query, swapID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get swap by id: %w", err)
	}
	return rec, nil
}

// GetBySessionID retrieves all swaps for a session, ordered by executed_at ASC.
func (s *SwapHistoryStore) GetBySessionID(ctx context.Context, sessionID string) (recs []*domain.SwapRecord, err error) {
	defer observeQuery("get_session_swaps", time.Now(), &err)

	query := `
		SELECT swap_id, session_id, from_token, to_token, amount_in, amount_out, route, impact_bps, book_checkpoint, executed_at
		FROM swap_history
		WHERE session_id = $1
		ORDER BY executed_at ASC, swap_id ASC
	`

	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get swaps by session id: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanSwapRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan swap row: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swap rows: %w", err)
	}
	return recs, nil
}

// observeQuery records query duration and unexpected errors. Sentinel
// outcomes such as not-found and duplicate-key are not counted as errors.
func observeQuery(op string, start time.Time, errp *error) {
	observability.DefaultMetrics.DBQueryDuration.WithLabelValues("postgres", op).Observe(time.Since(start).Seconds())
	if err := *errp; err != nil &&
		!errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrDuplicateKey) {
		observability.DefaultMetrics.DBQueryErrors.WithLabelValues("postgres", op).Inc()
	}
}

// scanSwapRecord scans one row, reversing the BIGINT casts on amounts.
func scanSwapRecord(row pgx.Row) (*domain.SwapRecord, error) {
	var (
		rec        domain.SwapRecord
		amountIn   int64
		amountOut  int64
		checkpoint int64
	)

	err := row.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.FromToken,
		&rec.ToToken,
		&amountIn,
		&amountOut,
		&rec.Route,
		&rec.ImpactBps,
		&checkpoint,
		&rec.ExecutedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.AmountIn = uint64(amountIn)
	rec.AmountOut = uint64(amountOut)
	rec.BookCheckpt = uint64(checkpoint)
	return &rec, nil
}
