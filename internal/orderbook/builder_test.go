package orderbook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepbook-sandbox/internal/domain"
)

func mkOrder(isBid bool, tick, seq, qty, filled, expire uint64) domain.Order {
	id := EncodeOrderID(isBid, tick, seq)
	return domain.Order{
		OrderID:         id,
		PriceTick:       tick,
		Sequence:        seq,
		Quantity:        qty,
		FilledQuantity:  filled,
		IsBid:           isBid,
		ExpireTimestamp: expire,
	}
}

// pagedRunner serves fixed per-side order lists in pages.
type pagedRunner struct {
	bids, asks []domain.Order
	calls      int
	fail       error
	failTimes  int
}

func (r *pagedRunner) RunQuery(ctx context.Context, q Query) (Page, error) {
	r.calls++
	if r.failTimes > 0 {
		r.failTimes--
		return Page{}, r.fail
	}
	orders := r.asks
	if q.Side == SideBid {
		orders = r.bids
	}
	start := 0
	if q.Cursor != nil {
		for i, o := range orders {
			if o.OrderID.Cmp(*q.Cursor) == 0 {
				start = i + 1
				break
			}
		}
	}
	end := start + q.Limit
	if end > len(orders) {
		end = len(orders)
	}
	page := Page{Orders: orders[start:end], HasNext: end < len(orders)}
	if page.HasNext {
		last := orders[end-1].OrderID
		page.Cursor = &last
	}
	return page, nil
}

var testMarket = domain.Market{
	ID: "SUI_USDC", BaseDecimals: 9, QuoteDecimals: 6,
}

func TestBuildSortContract(t *testing.T) {
	r := &pagedRunner{
		bids: []domain.Order{
			mkOrder(true, 100, 2, 10, 0, 0),
			mkOrder(true, 300, 1, 10, 0, 0),
			mkOrder(true, 200, 5, 10, 0, 0),
			mkOrder(true, 300, 4, 10, 0, 0),
		},
		asks: []domain.Order{
			mkOrder(false, 500, 9, 10, 0, 0),
			mkOrder(false, 400, 3, 10, 0, 0),
			mkOrder(false, 400, 1, 10, 0, 0),
		},
	}
	b := NewBuilder(r, Options{})

	snap, err := b.Build(context.Background(), testMarket, 7, 0)
	require.NoError(t, err)

	// Bids strictly descending, asks strictly ascending.
	assert.Equal(t, []uint64{300, 200, 100}, ticks(snap.Bids))
	assert.Equal(t, []uint64{400, 500}, ticks(snap.Asks))

	// FIFO by sequence within a tick in the raw lists.
	assert.Equal(t, uint64(1), snap.BidOrders[0].Sequence)
	assert.Equal(t, uint64(4), snap.BidOrders[1].Sequence)
	assert.Equal(t, uint64(1), snap.AskOrders[0].Sequence)
	assert.Equal(t, uint64(3), snap.AskOrders[1].Sequence)

	assert.Equal(t, uint64(7), snap.Checkpoint)
	assert.Equal(t, "SUI_USDC", snap.MarketID)
}

func TestBuildAggregatesRemainingQuantity(t *testing.T) {
	now := uint64(1_700_000_000_000)
	r := &pagedRunner{
		asks: []domain.Order{
			mkOrder(false, 400, 1, 100, 30, 0),    // 70 remaining
			mkOrder(false, 400, 2, 50, 0, 0),      // 50 remaining
			mkOrder(false, 400, 3, 20, 20, 0),     // fully filled, dropped
			mkOrder(false, 400, 4, 10, 0, now-1),  // expired, dropped
			mkOrder(false, 400, 5, 10, 0, now+10), // live
		},
	}
	b := NewBuilder(r, Options{})

	snap, err := b.Build(context.Background(), testMarket, 1, now)
	require.NoError(t, err)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, uint64(130), snap.Asks[0].Quantity)
	assert.Equal(t, 3, snap.Asks[0].Orders)
	// Raw list keeps everything for inspection.
	assert.Len(t, snap.AskOrders, 5)
}

func TestBuildEmptySideIsValid(t *testing.T) {
	r := &pagedRunner{asks: []domain.Order{mkOrder(false, 400, 1, 10, 0, 0)}}
	b := NewBuilder(r, Options{})

	snap, err := b.Build(context.Background(), testMarket, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, snap.Bids)
	assert.Len(t, snap.Asks, 1)
	assert.Equal(t, float64(0), snap.BestBid())
	assert.Equal(t, float64(0), snap.MidPrice())
}

func TestBuildPaginates(t *testing.T) {
	var asks []domain.Order
	for i := uint64(0); i < 25; i++ {
		asks = append(asks, mkOrder(false, 400+i, i, 10, 0, 0))
	}
	r := &pagedRunner{asks: asks}
	b := NewBuilder(r, Options{PageLimit: 10})

	snap, err := b.Build(context.Background(), testMarket, 1, 0)
	require.NoError(t, err)
	assert.Len(t, snap.AskOrders, 25)
	// 1 bid page + 3 ask pages.
	assert.Equal(t, 4, r.calls)
}

func TestBuildRespectsPageCap(t *testing.T) {
	var asks []domain.Order
	for i := uint64(0); i < 100; i++ {
		asks = append(asks, mkOrder(false, 400+i, i, 10, 0, 0))
	}
	r := &pagedRunner{asks: asks}
	b := NewBuilder(r, Options{PageLimit: 10, PageCap: 3})

	snap, err := b.Build(context.Background(), testMarket, 1, 0)
	require.NoError(t, err)
	assert.Len(t, snap.AskOrders, 30)
}

func TestBuildRetriesTransientFailure(t *testing.T) {
	r := &pagedRunner{
		asks:      []domain.Order{mkOrder(false, 400, 1, 10, 0, 0)},
		fail:      errors.New("connection reset"),
		failTimes: 2,
	}
	b := NewBuilder(r, Options{Retries: 2})

	snap, err := b.Build(context.Background(), testMarket, 1, 0)
	require.NoError(t, err)
	assert.Len(t, snap.AskOrders, 1)
}

func TestBuildTransientFailureExhaustsRetries(t *testing.T) {
	r := &pagedRunner{fail: errors.New("connection reset"), failTimes: 10}
	b := NewBuilder(r, Options{Retries: 1})

	_, err := b.Build(context.Background(), testMarket, 1, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBuild)
}

func TestBuildAbortIsNeverRetried(t *testing.T) {
	r := &pagedRunner{fail: ErrExecutionAborted, failTimes: 1}
	b := NewBuilder(r, Options{Retries: 5})

	_, err := b.Build(context.Background(), testMarket, 1, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBuild)
	// Only the single bid attempt ran.
	assert.Equal(t, 1, r.calls)
}

type slowRunner struct{}

func (slowRunner) RunQuery(ctx context.Context, q Query) (Page, error) {
	<-ctx.Done()
	return Page{}, ctx.Err()
}

func TestBuildTimeout(t *testing.T) {
	b := NewBuilder(slowRunner{}, Options{Timeout: 10 * time.Millisecond})

	_, err := b.Build(context.Background(), testMarket, 1, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBuildTimeout)
}

func TestDecodeOrderIDRoundTrip(t *testing.T) {
	id := EncodeOrderID(true, 129_290_000, 42)
	parts := DecodeOrderID(id)
	assert.True(t, parts.IsBid)
	assert.Equal(t, uint64(129_290_000), parts.Tick)
	assert.Equal(t, uint64(42), parts.Sequence)

	id = EncodeOrderID(false, 1, 0)
	parts = DecodeOrderID(id)
	assert.False(t, parts.IsBid)
	assert.Equal(t, uint64(1), parts.Tick)
	// Ask ids carry the side in the top bit.
	assert.Equal(t, uint64(1)<<63|1, id.Hi)
}

func ticks(levels []domain.PriceLevel) []uint64 {
	out := make([]uint64, len(levels))
	for i, l := range levels {
		out[i] = l.Tick
	}
	return out
}
