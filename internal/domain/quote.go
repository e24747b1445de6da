package domain

// Swap route kinds.
const (
	RouteDirect = "direct"  // single book walk
	RouteTwoHop = "two_hop" // from -> settlement token -> to
)

// SwapStep is one leg of a quoted route.
type SwapStep struct {
	MarketID  string `json:"market_id"`
	FromToken string `json:"from_token"`
	ToToken   string `json:"to_token"`
	AmountIn  uint64 `json:"amount_in"`
	AmountOut uint64 `json:"amount_out"`
}

// Quote is a dry-run swap estimate against the current book snapshot.
// EffectivePrice is the volume-weighted price across consumed levels in
// quote units per base unit. ImpactBps is signed: positive means the taker
// paid worse than the reference mid price.
type Quote struct {
	FromToken      string     `json:"from_token"`
	ToToken        string     `json:"to_token"`
	AmountIn       uint64     `json:"amount_in"`
	AmountOut      uint64     `json:"amount_out"`
	EffectivePrice float64    `json:"effective_price"`
	ImpactBps      int64      `json:"impact_bps"`
	FullyFillable  bool       `json:"fully_fillable"`
	Route          string     `json:"route"`
	Steps          []SwapStep `json:"steps"`
	LevelsConsumed int        `json:"levels_consumed"`
	OrdersMatched  int        `json:"orders_matched"`
	BookCheckpoint uint64     `json:"book_checkpoint"`
}
