package swap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepbook-sandbox/internal/domain"
)

// fakeBooks serves fixed snapshots for a fixed market list.
type fakeBooks struct {
	markets []domain.Market
	books   map[string]*domain.BookSnapshot
}

func (f *fakeBooks) Markets() []domain.Market { return f.markets }
func (f *fakeBooks) Book(id string) (*domain.BookSnapshot, bool) {
	b, ok := f.books[id]
	return b, ok
}

func suiMarket() domain.Market {
	return domain.Market{
		ID: "SUI_USDC", BaseSymbol: "SUI", QuoteSymbol: "USDC",
		BaseDecimals: 9, QuoteDecimals: 6,
		LotSize: 1_000_000, MinSize: 100_000_000,
	}
}

func walMarket() domain.Market {
	return domain.Market{
		ID: "WAL_USDC", BaseSymbol: "WAL", QuoteSymbol: "USDC",
		BaseDecimals: 9, QuoteDecimals: 6,
		LotSize: 1_000_000, MinSize: 100_000_000,
	}
}

func bookFor(m domain.Market, bids, asks []domain.PriceLevel) *domain.BookSnapshot {
	return &domain.BookSnapshot{
		MarketID:      m.ID,
		Checkpoint:    100,
		Bids:          bids,
		Asks:          asks,
		BaseDecimals:  m.BaseDecimals,
		QuoteDecimals: m.QuoteDecimals,
	}
}

func suiBooks() *fakeBooks {
	m := suiMarket()
	return &fakeBooks{
		markets: []domain.Market{m},
		books: map[string]*domain.BookSnapshot{
			m.ID: bookFor(m,
				[]domain.PriceLevel{
					{Tick: 129_280_000, Quantity: 40_000_000_000, Orders: 2},
					{Tick: 129_270_000, Quantity: 40_000_000_000, Orders: 1},
				},
				[]domain.PriceLevel{
					{Tick: 129_290_000, Quantity: 50_000_000_000, Orders: 3},
					{Tick: 129_300_000, Quantity: 10_000_000_000, Orders: 1},
					{Tick: 129_310_000, Quantity: 80_000_000_000, Orders: 2},
				},
			),
		},
	}
}

func TestQuoteBuyWalksAsksAcrossLevels(t *testing.T) {
	e := NewEngine(suiBooks(), Options{})

	// Exact cost of consuming level 1 entirely plus 10 SUI of level 2.
	amountIn := uint64(50*129_290_000 + 10*129_300_000) // quote units at 6dp
	q, err := e.Quote(context.Background(), "USDC", "SUI", amountIn)
	require.NoError(t, err)

	assert.InDelta(t, 60_000_000_000, float64(q.AmountOut), 10)
	assert.True(t, q.FullyFillable)
	assert.Equal(t, 2, q.LevelsConsumed)
	assert.Equal(t, 4, q.OrdersMatched)
	assert.Equal(t, domain.RouteDirect, q.Route)

	// Volume-weighted price sits strictly between the two consumed ticks.
	assert.Greater(t, q.EffectivePrice, 129.29)
	assert.Less(t, q.EffectivePrice, 129.30)
	assert.GreaterOrEqual(t, q.ImpactBps, int64(0))
}

func TestQuoteImpactGrowsWithSize(t *testing.T) {
	e := NewEngine(suiBooks(), Options{})

	small, err := e.Quote(context.Background(), "USDC", "SUI", 1_000_000_000)
	require.NoError(t, err)
	// Deep walk through all three ask levels.
	large, err := e.Quote(context.Background(), "USDC", "SUI", 18_000_000_000_000)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, large.ImpactBps, small.ImpactBps)
	assert.Positive(t, large.ImpactBps)
}

func TestQuoteSellWalksBids(t *testing.T) {
	e := NewEngine(suiBooks(), Options{})

	q, err := e.Quote(context.Background(), "SUI", "USDC", 60_000_000_000)
	require.NoError(t, err)

	// 40 SUI at 129.28 + 20 SUI at 129.27.
	want := 40*129.28 + 20*129.27
	assert.InDelta(t, want*1e6, float64(q.AmountOut), 10)
	assert.True(t, q.FullyFillable)
	assert.Equal(t, 2, q.LevelsConsumed)
}

func TestQuotePartialFillWhenDepthExhausted(t *testing.T) {
	e := NewEngine(suiBooks(), Options{})

	// More base than the whole bid side holds.
	q, err := e.Quote(context.Background(), "SUI", "USDC", 200_000_000_000)
	require.NoError(t, err)
	assert.False(t, q.FullyFillable)
	assert.Equal(t, 2, q.LevelsConsumed)
}

func TestQuoteOutputMonotoneInInput(t *testing.T) {
	e := NewEngine(suiBooks(), Options{})

	var prev uint64
	for _, in := range []uint64{1_000_000_000, 5_000_000_000, 20_000_000_000, 60_000_000_000} {
		q, err := e.Quote(context.Background(), "SUI", "USDC", in)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, q.AmountOut, prev)
		prev = q.AmountOut
	}
}

func TestQuoteErrors(t *testing.T) {
	e := NewEngine(suiBooks(), Options{})
	ctx := context.Background()

	_, err := e.Quote(ctx, "SUI", "SUI", 1)
	assert.ErrorIs(t, err, ErrSameToken)

	_, err = e.Quote(ctx, "SUI", "USDC", 0)
	assert.ErrorIs(t, err, ErrZeroAmount)

	_, err = e.Quote(ctx, "SUI", "BTC", 1)
	assert.ErrorIs(t, err, ErrRouting)
}

func TestQuoteBookUnavailable(t *testing.T) {
	m := suiMarket()
	e := NewEngine(&fakeBooks{markets: []domain.Market{m}, books: map[string]*domain.BookSnapshot{}}, Options{})

	_, err := e.Quote(context.Background(), "SUI", "USDC", 1_000_000_000)
	assert.ErrorIs(t, err, ErrBookUnavailable)
}

func TestQuoteNoLiquidityOnRequiredSide(t *testing.T) {
	m := suiMarket()
	asksOnly := bookFor(m, nil, []domain.PriceLevel{{Tick: 129_290_000, Quantity: 1_000_000_000, Orders: 1}})
	e := NewEngine(&fakeBooks{
		markets: []domain.Market{m},
		books:   map[string]*domain.BookSnapshot{m.ID: asksOnly},
	}, Options{})
	ctx := context.Background()

	// Selling base needs bids; the book only has asks.
	_, err := e.Quote(ctx, "SUI", "USDC", 1_000_000_000)
	assert.ErrorIs(t, err, ErrNoLiquidity)

	// Buying base walks the ask side, which is populated.
	q, err := e.Quote(ctx, "USDC", "SUI", 129_290_000)
	require.NoError(t, err)
	assert.Positive(t, q.AmountOut)
}

func twoHopBooks() *fakeBooks {
	sui, wal := suiMarket(), walMarket()
	return &fakeBooks{
		markets: []domain.Market{sui, wal},
		books: map[string]*domain.BookSnapshot{
			sui.ID: bookFor(sui,
				[]domain.PriceLevel{{Tick: 129_280_000, Quantity: 100_000_000_000, Orders: 1}},
				[]domain.PriceLevel{{Tick: 129_290_000, Quantity: 100_000_000_000, Orders: 1}},
			),
			wal.ID: bookFor(wal,
				[]domain.PriceLevel{{Tick: 400_000, Quantity: 9_000_000_000_000, Orders: 1}},
				[]domain.PriceLevel{{Tick: 410_000, Quantity: 9_000_000_000_000, Orders: 1}},
			),
		},
	}
}

func TestQuoteTwoHopThroughSettlement(t *testing.T) {
	e := NewEngine(twoHopBooks(), Options{})

	q, err := e.Quote(context.Background(), "SUI", "WAL", 10_000_000_000)
	require.NoError(t, err)

	assert.Equal(t, domain.RouteTwoHop, q.Route)
	require.Len(t, q.Steps, 2)
	assert.Equal(t, "SUI_USDC", q.Steps[0].MarketID)
	assert.Equal(t, "WAL_USDC", q.Steps[1].MarketID)
	assert.Equal(t, q.Steps[0].AmountOut, q.Steps[1].AmountIn)

	// 10 SUI * 129.28 / 0.41 WAL, lot-rounded by the strict router.
	wantWal := 10.0 * 129.28 / 0.41
	assert.InDelta(t, wantWal, float64(q.AmountOut)/1e9, 0.01)
	assert.True(t, q.FullyFillable)
}

func TestQuoteTwoHopFallsBackOnRouterAbort(t *testing.T) {
	e := NewEngine(twoHopBooks(), Options{})

	// Not a lot-size multiple: the strict path aborts, the level-walk
	// fallback still quotes.
	q, err := e.Quote(context.Background(), "SUI", "WAL", 10_000_000_001)
	require.NoError(t, err)
	assert.Equal(t, domain.RouteTwoHop, q.Route)
	assert.Positive(t, q.AmountOut)
}

type failRouter struct{ called bool }

func (r *failRouter) QuoteTwoHop(ctx context.Context, a, b *domain.BookSnapshot,
	m1, m2 domain.Market, in uint64) (TwoHopQuote, error) {
	r.called = true
	return TwoHopQuote{}, errors.New("router offline")
}

func TestQuoteTwoHopRouterIsPrimary(t *testing.T) {
	r := &failRouter{}
	e := NewEngine(twoHopBooks(), Options{Router: r})

	q, err := e.Quote(context.Background(), "SUI", "WAL", 10_000_000_000)
	require.NoError(t, err)
	assert.True(t, r.called)
	assert.Positive(t, q.AmountOut)
}

func TestSessionLifecycle(t *testing.T) {
	e := NewEngine(suiBooks(), Options{})

	s := e.CreateSession()
	assert.NotEmpty(t, s.ID)
	assert.Empty(t, s.Balances)

	got, err := e.GetSession(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	require.NoError(t, e.DeleteSession(s.ID))
	_, err = e.GetSession(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestFaucetCredits(t *testing.T) {
	e := NewEngine(suiBooks(), Options{})
	s := e.CreateSession()

	got, err := e.Faucet(s.ID, "usdc", 5_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000_000), got.Balances["USDC"])

	got, err = e.Faucet(s.ID, "USDC", 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_001_000_000), got.Balances["USDC"])

	_, err = e.Faucet(s.ID, "BTC", 1)
	assert.ErrorIs(t, err, ErrUnknownToken)

	_, err = e.Faucet(s.ID, "SUI", 0)
	assert.ErrorIs(t, err, ErrZeroAmount)
}

func TestSessionExpiry(t *testing.T) {
	now := time.Now()
	clock := now
	e := NewEngine(suiBooks(), Options{
		SessionTTL: time.Hour,
		Now:        func() time.Time { return clock },
	})
	s := e.CreateSession()

	clock = now.Add(2 * time.Hour)
	_, err := e.GetSession(s.ID)
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = e.Faucet(s.ID, "SUI", 1)
	assert.ErrorIs(t, err, ErrSessionExpired)

	assert.Equal(t, 1, e.ReclaimExpired())
	assert.Equal(t, 0, e.SessionCount())
}

func TestResetSessionClearsStateAndRenewsTTL(t *testing.T) {
	e := NewEngine(suiBooks(), Options{})
	s := e.CreateSession()
	_, err := e.Faucet(s.ID, "SUI", 100_000_000_000)
	require.NoError(t, err)
	_, _, err = e.ExecuteSwap(context.Background(), s.ID, "SUI", "USDC", 1_000_000_000)
	require.NoError(t, err)

	got, err := e.ResetSession(s.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Balances)
	assert.Empty(t, got.Swaps)
}

func TestExecuteSwapSettlesBalances(t *testing.T) {
	e := NewEngine(suiBooks(), Options{})
	s := e.CreateSession()
	_, err := e.Faucet(s.ID, "SUI", 100_000_000_000)
	require.NoError(t, err)

	rec, q, err := e.ExecuteSwap(context.Background(), s.ID, "SUI", "USDC", 10_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000_000), rec.AmountIn)
	assert.Equal(t, q.AmountOut, rec.AmountOut)

	got, err := e.GetSession(s.ID)
	require.NoError(t, err)
	// Conservation: input fully debited, quoted output fully credited.
	assert.Equal(t, uint64(90_000_000_000), got.Balances["SUI"])
	assert.Equal(t, q.AmountOut, got.Balances["USDC"])
	require.Len(t, got.Swaps, 1)
	assert.Equal(t, rec.ID, got.Swaps[0].ID)
}

func TestExecuteSwapInsufficientBalance(t *testing.T) {
	e := NewEngine(suiBooks(), Options{})
	s := e.CreateSession()

	_, _, err := e.ExecuteSwap(context.Background(), s.ID, "SUI", "USDC", 1_000_000_000)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	got, err := e.GetSession(s.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Balances)
	assert.Empty(t, got.Swaps)
}

func TestConcurrentSessionsShareImmutableBook(t *testing.T) {
	books := suiBooks()
	e := NewEngine(books, Options{})

	before := *books.books["SUI_USDC"]
	beforeBids := append([]domain.PriceLevel(nil), before.Bids...)
	beforeAsks := append([]domain.PriceLevel(nil), before.Asks...)

	const sessions = 8
	ids := make([]string, sessions)
	for i := range ids {
		s := e.CreateSession()
		ids[i] = s.ID
		_, err := e.Faucet(s.ID, "SUI", 100_000_000_000)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				_, _, err := e.ExecuteSwap(context.Background(), id, "SUI", "USDC", 1_000_000_000)
				assert.NoError(t, err)
			}
		}(id)
	}
	wg.Wait()

	// Each session consumed only its own balances.
	for _, id := range ids {
		s, err := e.GetSession(id)
		require.NoError(t, err)
		assert.Equal(t, uint64(95_000_000_000), s.Balances["SUI"])
		assert.Len(t, s.Swaps, 5)
	}

	// The shared snapshot is untouched.
	after := books.books["SUI_USDC"]
	assert.Equal(t, beforeBids, after.Bids)
	assert.Equal(t, beforeAsks, after.Asks)
	assert.Equal(t, before.Checkpoint, after.Checkpoint)
}
