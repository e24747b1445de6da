package domain

// Token describes one asset traded on the venue.
type Token struct {
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals uint8  `json:"decimals" yaml:"decimals"`
}

// Market binds a trading pair to the ledger objects that hold its book.
// The two vector ids point at the big-vector containers for each side.
type Market struct {
	ID            string `json:"id" yaml:"id"` // e.g. "SUI_USDC"
	Name          string `json:"name" yaml:"name"`
	PoolID        string `json:"pool_id" yaml:"pool_id"`
	BidsVectorID  string `json:"bids_vector_id" yaml:"bids_vector_id"`
	AsksVectorID  string `json:"asks_vector_id" yaml:"asks_vector_id"`
	BaseSymbol    string `json:"base_symbol" yaml:"base_symbol"`
	QuoteSymbol   string `json:"quote_symbol" yaml:"quote_symbol"`
	BaseDecimals  uint8  `json:"base_decimals" yaml:"base_decimals"`
	QuoteDecimals uint8  `json:"quote_decimals" yaml:"quote_decimals"`
	LotSize       uint64 `json:"lot_size" yaml:"lot_size"`
	MinSize       uint64 `json:"min_size" yaml:"min_size"`
}
