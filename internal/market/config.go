package market

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"deepbook-sandbox/internal/domain"
)

// Config is the on-disk market configuration.
type Config struct {
	Markets []MarketConfig `yaml:"markets"`
}

// MarketConfig binds a market definition to its snapshot export file.
type MarketConfig struct {
	domain.Market `yaml:",inline"`
	SnapshotFile  string `yaml:"snapshot_file"`
}

// LoadConfig reads a YAML market configuration.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read market config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse market config: %w", err)
	}
	for i, m := range cfg.Markets {
		if m.ID == "" {
			return nil, fmt.Errorf("market config entry %d: missing id", i)
		}
		if m.BidsVectorID == "" || m.AsksVectorID == "" {
			return nil, fmt.Errorf("market %s: missing book container ids", m.ID)
		}
	}
	return &cfg, nil
}

// DefaultMarkets returns the three mainnet pools the sandbox ships with,
// wired to their live container object ids.
func DefaultMarkets() []domain.Market {
	return []domain.Market{
		{
			ID:            "SUI_USDC",
			Name:          "SUI/USDC",
			PoolID:        "0xe05dafb5133bcffb8d59f4e12465dc0e9faeaa05e3e342a08fe135800e3e4407",
			AsksVectorID:  "0x5f8f0e3a2728a161e529ecacdfdface88b2fa669279aa699afd5d6b462c68466",
			BidsVectorID:  "0x090a8eae3204c76e36eebf3440cbde577e062953391760c37c363530fc1de246",
			BaseSymbol:    "SUI",
			QuoteSymbol:   "USDC",
			BaseDecimals:  9,
			QuoteDecimals: 6,
			LotSize:       1_000_000,
			MinSize:       100_000_000,
		},
		{
			ID:            "WAL_USDC",
			Name:          "WAL/USDC",
			PoolID:        "0x56a1c985c1f1123181d6b881714793689321ba24301b3585eec427436eb1c76d",
			AsksVectorID:  "0x1bf5e16fcfb6c4d293c550bc1333ec7a6ed8323a929bb2db477f63ff0e9b6a4c",
			BidsVectorID:  "0x82ee32196ab12750268815e005fae4c4db23a4272e52610c0c25a8288f05515a",
			BaseSymbol:    "WAL",
			QuoteSymbol:   "USDC",
			BaseDecimals:  9,
			QuoteDecimals: 6,
			LotSize:       1_000_000,
			MinSize:       100_000_000,
		},
		{
			ID:            "DEEP_USDC",
			Name:          "DEEP/USDC",
			PoolID:        "0xf948981b806057580f91622417534f491da5f61aeaf33d0ed8e69fd5691c95ce",
			AsksVectorID:  "0x0f9d6fc9de7a0ee0dd98f7326619cd5ff74cc0bc6485cce80014f766e437c4ae",
			BidsVectorID:  "0xd1fcd1d0a554150fa097508eabcd76f6dbb0d2ce4fdfeffb2f6a4469ac81fd42",
			BaseSymbol:    "DEEP",
			QuoteSymbol:   "USDC",
			BaseDecimals:  6,
			QuoteDecimals: 6,
			LotSize:       1_000_000,
			MinSize:       100_000_000,
		},
	}
}
