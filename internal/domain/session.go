package domain

import "time"

// Session is an isolated trading sandbox. Sessions start with zero balances,
// receive funds through the faucet and trade against the shared book without
// ever mutating it.
type Session struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Balances  map[string]uint64 `json:"balances"` // symbol -> smallest units
	Swaps     []SwapRecord      `json:"swaps"`
}

// Expired reports whether the session TTL has lapsed.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// SwapRecord is one executed swap in a session's history.
type SwapRecord struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	FromToken   string    `json:"from_token"`
	ToToken     string    `json:"to_token"`
	AmountIn    uint64    `json:"amount_in"`
	AmountOut   uint64    `json:"amount_out"`
	Route       string    `json:"route"`
	ImpactBps   int64     `json:"impact_bps"`
	ExecutedAt  time.Time `json:"executed_at"`
	BookCheckpt uint64    `json:"book_checkpoint"`
}
