package domain

import (
	"math"
	"time"
)

// Order is a single resting order decoded from the reconstructed book.
// The packed OrderID carries side, price tick and a FIFO sequence number;
// the decoded components are stored alongside for convenience.
type Order struct {
	OrderID         U128
	PriceTick       uint64 // decoded from OrderID
	Sequence        uint64 // decoded from OrderID; FIFO tie-break within a tick
	Quantity        uint64 // original size in base units
	FilledQuantity  uint64
	IsBid           bool
	ExpireTimestamp uint64 // unix millis; 0 means no expiry
}

// RemainingQuantity is the unfilled size.
func (o Order) RemainingQuantity() uint64 {
	if o.FilledQuantity >= o.Quantity {
		return 0
	}
	return o.Quantity - o.FilledQuantity
}

// Expired reports whether the order is past its expiry at the given time.
func (o Order) Expired(nowMs uint64) bool {
	return o.ExpireTimestamp != 0 && o.ExpireTimestamp <= nowMs
}

// PriceLevel aggregates open orders at one price tick.
type PriceLevel struct {
	Tick     uint64 `json:"tick"`
	Quantity uint64 `json:"quantity"` // sum of remaining quantities, base units
	Orders   int    `json:"orders"`
}

// BookSnapshot is a complete reconstructed order book for one market.
// Snapshots are immutable: a rebuild produces a new value and swaps the
// shared pointer, so readers never lock.
type BookSnapshot struct {
	MarketID      string       `json:"market_id"`
	Checkpoint    uint64       `json:"checkpoint"`
	Bids          []PriceLevel `json:"bids"` // strictly descending by tick
	Asks          []PriceLevel `json:"asks"` // strictly ascending by tick
	BaseDecimals  uint8        `json:"base_decimals"`
	QuoteDecimals uint8        `json:"quote_decimals"`
	BuiltAt       time.Time    `json:"built_at"`

	// BidOrders/AskOrders retain the raw decoded orders for inspection.
	BidOrders []Order `json:"-"`
	AskOrders []Order `json:"-"`
}

// PriceDivisor converts internal ticks to a human quote price. Ticks are
// normalized as if base tokens had 9 decimals, so the divisor folds in both
// the quote scale and the base normalization factor.
func (b *BookSnapshot) PriceDivisor() float64 {
	normalization := math.Pow10(9 - int(b.BaseDecimals))
	return math.Pow10(int(b.QuoteDecimals)) * normalization
}

// BestBid returns the highest bid price in quote units, or 0 if the side is
// empty.
func (b *BookSnapshot) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return float64(b.Bids[0].Tick) / b.PriceDivisor()
}

// BestAsk returns the lowest ask price in quote units, or 0 if the side is
// empty.
func (b *BookSnapshot) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return float64(b.Asks[0].Tick) / b.PriceDivisor()
}

// MidPrice returns the mid between best bid and best ask, or 0 when either
// side is empty.
func (b *BookSnapshot) MidPrice() float64 {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0
	}
	return (float64(b.Bids[0].Tick) + float64(b.Asks[0].Tick)) / 2 / b.PriceDivisor()
}

// SpreadBps returns the bid/ask spread in basis points, or 0 when either
// side is empty.
func (b *BookSnapshot) SpreadBps() uint64 {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0
	}
	bid, ask := b.Bids[0].Tick, b.Asks[0].Tick
	mid := (bid + ask) / 2
	if mid == 0 {
		return 0
	}
	var spread uint64
	if ask > bid {
		spread = ask - bid
	} else {
		spread = bid - ask
	}
	return spread * 10_000 / mid
}
