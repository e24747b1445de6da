// Package orderbook reconstructs book snapshots by paging orders out of an
// external query execution surface and aggregating them into price levels.
package orderbook

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"deepbook-sandbox/internal/domain"
	"deepbook-sandbox/internal/observability"
)

var (
	// ErrBuild wraps any failure while reconstructing a side.
	ErrBuild = errors.New("orderbook build failed")
	// ErrBuildTimeout means a query exceeded its deadline.
	ErrBuildTimeout = errors.New("orderbook build timed out")
	// ErrExecutionAborted marks a hard abort from the query surface. Aborts
	// are deterministic and never retried.
	ErrExecutionAborted = errors.New("query execution aborted")
)

// Side selects which book side a query targets.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Query is one paged request against the execution surface.
type Query struct {
	Market domain.Market
	Side   Side
	Cursor *domain.U128 // resume strictly after this order id; nil starts over
	Limit  int
}

// Page is one query result. Cursor is the id to resume from when HasNext.
type Page struct {
	Orders  []domain.Order
	Cursor  *domain.U128
	HasNext bool
}

// QueryRunner executes order queries. Implementations must be
// deterministic: identical object graph and arguments always yield the
// same page.
type QueryRunner interface {
	RunQuery(ctx context.Context, q Query) (Page, error)
}

// Options tune pagination and the per-query failure policy.
type Options struct {
	PageLimit int           // orders per query
	PageCap   int           // max queries per side
	Timeout   time.Duration // per-query deadline
	Retries   int           // bounded retries on transient failure
}

func (o Options) withDefaults() Options {
	if o.PageLimit <= 0 {
		o.PageLimit = 100
	}
	if o.PageCap <= 0 {
		o.PageCap = 50
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	return o
}

// Builder assembles immutable snapshots for one market at a time.
type Builder struct {
	runner QueryRunner
	opts   Options
}

// NewBuilder creates a builder over the given execution surface.
func NewBuilder(runner QueryRunner, opts Options) *Builder {
	return &Builder{runner: runner, opts: opts.withDefaults()}
}

// Build pages both sides out of the execution surface and aggregates them.
// nowMs is the reference time for expiry filtering. An empty side is valid
// and yields empty levels, not an error.
func (b *Builder) Build(ctx context.Context, market domain.Market, checkpoint uint64, nowMs uint64) (*domain.BookSnapshot, error) {
	bids, err := b.fetchSide(ctx, market, SideBid)
	if err != nil {
		return nil, err
	}
	asks, err := b.fetchSide(ctx, market, SideAsk)
	if err != nil {
		return nil, err
	}

	snap := &domain.BookSnapshot{
		MarketID:      market.ID,
		Checkpoint:    checkpoint,
		BaseDecimals:  market.BaseDecimals,
		QuoteDecimals: market.QuoteDecimals,
		BuiltAt:       time.Now().UTC(),
		BidOrders:     sortOrders(bids, true),
		AskOrders:     sortOrders(asks, false),
	}
	snap.Bids = aggregate(snap.BidOrders, nowMs)
	snap.Asks = aggregate(snap.AskOrders, nowMs)
	return snap, nil
}

func (b *Builder) fetchSide(ctx context.Context, market domain.Market, side Side) ([]domain.Order, error) {
	var out []domain.Order
	var cursor *domain.U128

	for page := 0; page < b.opts.PageCap; page++ {
		res, err := b.runQuery(ctx, Query{
			Market: market,
			Side:   side,
			Cursor: cursor,
			Limit:  b.opts.PageLimit,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, res.Orders...)
		if !res.HasNext {
			return out, nil
		}
		cursor = res.Cursor
	}
	return out, nil
}

// runQuery applies the per-query deadline and retries transient failures.
// Aborts and deadline hits are final.
func (b *Builder) runQuery(ctx context.Context, q Query) (Page, error) {
	var lastErr error
	for attempt := 0; attempt <= b.opts.Retries; attempt++ {
		qctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
		page, err := b.runner.RunQuery(qctx, q)
		cancel()
		observability.DefaultMetrics.QueriesExecuted.Inc()
		if err == nil {
			return page, nil
		}
		if errors.Is(err, ErrExecutionAborted) {
			return Page{}, fmt.Errorf("%w: %s side of %s: %v", ErrBuild, q.Side, q.Market.ID, err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return Page{}, fmt.Errorf("%w: %s side of %s", ErrBuildTimeout, q.Side, q.Market.ID)
		}
		lastErr = err
	}
	return Page{}, fmt.Errorf("%w: %s side of %s: %v", ErrBuild, q.Side, q.Market.ID, lastErr)
}

// sortOrders orders the raw list by price priority then FIFO sequence.
func sortOrders(orders []domain.Order, bids bool) []domain.Order {
	out := make([]domain.Order, len(orders))
	copy(out, orders)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PriceTick != out[j].PriceTick {
			if bids {
				return out[i].PriceTick > out[j].PriceTick
			}
			return out[i].PriceTick < out[j].PriceTick
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out
}

// aggregate folds live orders into price levels. Fully filled and expired
// orders are dropped from the aggregate; the raw list keeps them for
// inspection. Input must already be sorted by price priority.
func aggregate(orders []domain.Order, nowMs uint64) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0)
	for _, o := range orders {
		rem := o.RemainingQuantity()
		if rem == 0 || o.Expired(nowMs) {
			continue
		}
		if n := len(levels); n > 0 && levels[n-1].Tick == o.PriceTick {
			levels[n-1].Quantity += rem
			levels[n-1].Orders++
			continue
		}
		levels = append(levels, domain.PriceLevel{Tick: o.PriceTick, Quantity: rem, Orders: 1})
	}
	return levels
}
