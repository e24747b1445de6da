// Package swap hosts isolated trading sessions over the shared book
// snapshots. Sessions hold balances and history only; quoting and execution
// read the books and never write them.
package swap

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"deepbook-sandbox/internal/domain"
	"deepbook-sandbox/internal/observability"
	"deepbook-sandbox/internal/storage"
)

// BookSource exposes the markets and their current snapshots. Snapshots
// are immutable; the source swaps whole pointers on rebuild.
type BookSource interface {
	Markets() []domain.Market
	Book(marketID string) (*domain.BookSnapshot, bool)
}

// Options configure the engine.
type Options struct {
	SessionTTL      time.Duration            // default 1h
	SettlementToken string                   // default USDC
	Router          Router                   // two-hop primary; default StrictRouter
	History         storage.SwapHistoryStore // optional persistence hook
	Logger          *zap.Logger
	Now             func() time.Time
}

func (o Options) withDefaults() Options {
	if o.SessionTTL <= 0 {
		o.SessionTTL = time.Hour
	}
	if o.SettlementToken == "" {
		o.SettlementToken = "USDC"
	}
	if o.Router == nil {
		o.Router = StrictRouter{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type sessionEntry struct {
	mu sync.Mutex
	s  domain.Session
}

// Engine manages sessions and answers quote and swap calls. Operations on
// the same session serialize on a per-session lock; different sessions
// never contend.
type Engine struct {
	books BookSource
	opts  Options

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

// NewEngine creates a session engine over the given book source.
func NewEngine(books BookSource, opts Options) *Engine {
	return &Engine{
		books:    books,
		opts:     opts.withDefaults(),
		sessions: make(map[string]*sessionEntry),
	}
}

// CreateSession starts a fresh zero-balance session.
func (e *Engine) CreateSession() domain.Session {
	now := e.opts.Now().UTC()
	s := domain.Session{
		ID:        newID(16),
		CreatedAt: now,
		ExpiresAt: now.Add(e.opts.SessionTTL),
		Balances:  make(map[string]uint64),
	}

	e.mu.Lock()
	e.sessions[s.ID] = &sessionEntry{s: s}
	active := len(e.sessions)
	e.mu.Unlock()

	observability.DefaultMetrics.SessionsCreated.Inc()
	observability.DefaultMetrics.SessionsActive.Set(float64(active))
	e.opts.Logger.Info("session created",
		zap.String("session_id", s.ID),
		zap.Time("expires_at", s.ExpiresAt))
	return cloneSession(&s)
}

// GetSession returns a copy of the session state.
func (e *Engine) GetSession(id string) (domain.Session, error) {
	entry, err := e.entry(id)
	if err != nil {
		return domain.Session{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.s.Expired(e.opts.Now()) {
		return domain.Session{}, fmt.Errorf("%w: %s", ErrSessionExpired, id)
	}
	return cloneSession(&entry.s), nil
}

// DeleteSession removes a session.
func (e *Engine) DeleteSession(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(e.sessions, id)
	observability.DefaultMetrics.SessionsActive.Set(float64(len(e.sessions)))
	return nil
}

// ResetSession zeroes balances, clears history and renews the TTL.
func (e *Engine) ResetSession(id string) (domain.Session, error) {
	entry, err := e.entry(id)
	if err != nil {
		return domain.Session{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.s.Balances = make(map[string]uint64)
	entry.s.Swaps = nil
	entry.s.ExpiresAt = e.opts.Now().UTC().Add(e.opts.SessionTTL)
	return cloneSession(&entry.s), nil
}

// SessionCount returns the number of live sessions.
func (e *Engine) SessionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

// ReclaimExpired drops every session past its TTL and returns the count.
func (e *Engine) ReclaimExpired() int {
	now := e.opts.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for id, entry := range e.sessions {
		if entry.s.Expired(now) {
			delete(e.sessions, id)
			n++
		}
	}
	if n > 0 {
		observability.DefaultMetrics.SessionsExpired.Add(float64(n))
		observability.DefaultMetrics.SessionsActive.Set(float64(len(e.sessions)))
		e.opts.Logger.Info("expired sessions reclaimed", zap.Int("count", n))
	}
	return n
}

// Faucet credits a session with test funds.
func (e *Engine) Faucet(id, token string, amount uint64) (domain.Session, error) {
	token = strings.ToUpper(token)
	if amount == 0 {
		return domain.Session{}, ErrZeroAmount
	}
	if !e.knownToken(token) {
		return domain.Session{}, fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}

	entry, err := e.entry(id)
	if err != nil {
		return domain.Session{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.s.Expired(e.opts.Now()) {
		return domain.Session{}, fmt.Errorf("%w: %s", ErrSessionExpired, id)
	}
	entry.s.Balances[token] += amount
	observability.DefaultMetrics.FaucetDispensed.WithLabelValues(token).Add(float64(amount))
	return cloneSession(&entry.s), nil
}

// Quote estimates a swap against the current snapshots without touching
// any session.
func (e *Engine) Quote(ctx context.Context, from, to string, amountIn uint64) (domain.Quote, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return domain.Quote{}, ErrSameToken
	}
	if amountIn == 0 {
		return domain.Quote{}, ErrZeroAmount
	}

	var q domain.Quote
	var err error
	if m, isSell, ok := e.directMarket(from, to); ok {
		q, err = e.quoteDirect(m, from, to, amountIn, isSell)
	} else {
		q, err = e.quoteTwoHop(ctx, from, to, amountIn)
	}
	if err == nil {
		observability.RecordQuote(q.Route)
	}
	return q, err
}

// ExecuteSwap recomputes a fresh quote and settles it against the session's
// balances. The shared book is never mutated.
func (e *Engine) ExecuteSwap(ctx context.Context, sessionID, from, to string, amountIn uint64) (domain.SwapRecord, domain.Quote, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)

	entry, err := e.entry(sessionID)
	if err != nil {
		return domain.SwapRecord{}, domain.Quote{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.s.Expired(e.opts.Now()) {
		return domain.SwapRecord{}, domain.Quote{}, fmt.Errorf("%w: %s", ErrSessionExpired, sessionID)
	}

	start := e.opts.Now()
	q, err := e.Quote(ctx, from, to, amountIn)
	if err != nil {
		return domain.SwapRecord{}, domain.Quote{}, err
	}
	if entry.s.Balances[from] < amountIn {
		observability.RecordSwap(q.Route, "rejected")
		return domain.SwapRecord{}, domain.Quote{}, fmt.Errorf("%w: have %d %s, need %d",
			ErrInsufficientBalance, entry.s.Balances[from], from, amountIn)
	}

	entry.s.Balances[from] -= amountIn
	entry.s.Balances[to] += q.AmountOut

	rec := domain.SwapRecord{
		ID:          newID(8),
		SessionID:   sessionID,
		FromToken:   from,
		ToToken:     to,
		AmountIn:    amountIn,
		AmountOut:   q.AmountOut,
		Route:       q.Route,
		ImpactBps:   q.ImpactBps,
		ExecutedAt:  e.opts.Now().UTC(),
		BookCheckpt: q.BookCheckpoint,
	}
	entry.s.Swaps = append(entry.s.Swaps, rec)

	if e.opts.History != nil {
		if err := e.opts.History.Insert(ctx, &rec); err != nil {
			e.opts.Logger.Warn("swap history insert failed",
				zap.String("swap_id", rec.ID), zap.Error(err))
		}
	}

	observability.RecordSwap(q.Route, "ok")
	observability.DefaultMetrics.SwapLatency.Observe(e.opts.Now().Sub(start).Seconds())
	e.opts.Logger.Info("swap executed",
		zap.String("session_id", sessionID),
		zap.String("pair", from+"/"+to),
		zap.Uint64("amount_in", amountIn),
		zap.Uint64("amount_out", q.AmountOut),
		zap.String("route", q.Route))
	return rec, q, nil
}

func (e *Engine) quoteDirect(m domain.Market, from, to string, amountIn uint64, isSell bool) (domain.Quote, error) {
	book, ok := e.books.Book(m.ID)
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w: %s", ErrBookUnavailable, m.ID)
	}

	if side := requiredSide(book, isSell); len(side) == 0 {
		return domain.Quote{}, fmt.Errorf("%w: %s", ErrNoLiquidity, m.ID)
	}

	res := walkLevels(book, amountIn, isSell)
	return domain.Quote{
		FromToken:      from,
		ToToken:        to,
		AmountIn:       amountIn,
		AmountOut:      res.out,
		EffectivePrice: res.effectivePrice,
		ImpactBps:      impactBps(res.effectivePrice, book.MidPrice()),
		FullyFillable:  res.fullyFilled,
		Route:          domain.RouteDirect,
		Steps: []domain.SwapStep{{
			MarketID: m.ID, FromToken: from, ToToken: to,
			AmountIn: amountIn, AmountOut: res.out,
		}},
		LevelsConsumed: res.levelsConsumed,
		OrdersMatched:  res.ordersMatched,
		BookCheckpoint: book.Checkpoint,
	}, nil
}

func (e *Engine) quoteTwoHop(ctx context.Context, from, to string, amountIn uint64) (domain.Quote, error) {
	settlement := e.opts.SettlementToken
	first, _, okFirst := e.directMarket(from, settlement)
	second, _, okSecond := e.directMarket(settlement, to)
	if !okFirst || !okSecond {
		return domain.Quote{}, fmt.Errorf("%w: %s -> %s", ErrRouting, from, to)
	}

	firstBook, ok := e.books.Book(first.ID)
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w: %s", ErrBookUnavailable, first.ID)
	}
	secondBook, ok := e.books.Book(second.ID)
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w: %s", ErrBookUnavailable, second.ID)
	}
	if len(firstBook.Bids) == 0 {
		return domain.Quote{}, fmt.Errorf("%w: %s", ErrNoLiquidity, first.ID)
	}
	if len(secondBook.Asks) == 0 {
		return domain.Quote{}, fmt.Errorf("%w: %s", ErrNoLiquidity, second.ID)
	}

	var hop TwoHopQuote
	var levels int
	fully := true
	hop, err := e.opts.Router.QuoteTwoHop(ctx, firstBook, secondBook, first, second, amountIn)
	if err != nil {
		// The strict path aborts on venue constraints; fall back to a
		// plain level walk per leg.
		e.opts.Logger.Debug("two-hop router declined, walking legs",
			zap.String("pair", from+"/"+to), zap.Error(err))
		leg1 := walkLevels(firstBook, amountIn, true)
		leg2 := walkLevels(secondBook, leg1.out, false)
		hop = TwoHopQuote{
			Intermediate: leg1.out,
			Output:       leg2.out,
			LevelsFirst:  leg1.levelsConsumed,
			LevelsSecond: leg2.levelsConsumed,
			Orders:       leg1.ordersMatched + leg2.ordersMatched,
		}
		fully = leg1.fullyFilled && leg2.fullyFilled
	}
	levels = hop.LevelsFirst + hop.LevelsSecond

	checkpoint := firstBook.Checkpoint
	if secondBook.Checkpoint > checkpoint {
		checkpoint = secondBook.Checkpoint
	}

	// Rate and impact in to-per-from terms, against the implied cross mid.
	inHuman := float64(amountIn) / math.Pow10(int(firstBook.BaseDecimals))
	outHuman := float64(hop.Output) / math.Pow10(int(secondBook.BaseDecimals))
	var rate float64
	if inHuman > 0 {
		rate = outHuman / inHuman
	}
	var impliedMid float64
	if m1, m2 := firstBook.MidPrice(), secondBook.MidPrice(); m1 > 0 && m2 > 0 {
		impliedMid = m1 / m2
	}

	return domain.Quote{
		FromToken:      from,
		ToToken:        to,
		AmountIn:       amountIn,
		AmountOut:      hop.Output,
		EffectivePrice: rate,
		ImpactBps:      impactBps(rate, impliedMid),
		FullyFillable:  fully && hop.Output > 0,
		Route:          domain.RouteTwoHop,
		Steps: []domain.SwapStep{
			{MarketID: first.ID, FromToken: from, ToToken: settlement,
				AmountIn: amountIn, AmountOut: hop.Intermediate},
			{MarketID: second.ID, FromToken: settlement, ToToken: to,
				AmountIn: hop.Intermediate, AmountOut: hop.Output},
		},
		LevelsConsumed: levels,
		OrdersMatched:  hop.Orders,
		BookCheckpoint: checkpoint,
	}, nil
}

// requiredSide is the book side a walk would consume.
func requiredSide(book *domain.BookSnapshot, isSell bool) []domain.PriceLevel {
	if isSell {
		return book.Bids
	}
	return book.Asks
}

// directMarket finds the market trading from/to directly. isSell is true
// when from is the base asset (the walk consumes bids).
func (e *Engine) directMarket(from, to string) (domain.Market, bool, bool) {
	for _, m := range e.books.Markets() {
		if m.BaseSymbol == from && m.QuoteSymbol == to {
			return m, true, true
		}
		if m.BaseSymbol == to && m.QuoteSymbol == from {
			return m, false, true
		}
	}
	return domain.Market{}, false, false
}

func (e *Engine) knownToken(token string) bool {
	if token == e.opts.SettlementToken {
		return true
	}
	for _, m := range e.books.Markets() {
		if m.BaseSymbol == token || m.QuoteSymbol == token {
			return true
		}
	}
	return false
}

func (e *Engine) entry(id string) (*sessionEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return entry, nil
}

func cloneSession(s *domain.Session) domain.Session {
	out := *s
	out.Balances = make(map[string]uint64, len(s.Balances))
	for k, v := range s.Balances {
		out.Balances[k] = v
	}
	out.Swaps = append([]domain.SwapRecord(nil), s.Swaps...)
	return out
}

func newID(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	return base58.Encode(buf)
}
