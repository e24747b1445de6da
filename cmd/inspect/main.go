// Package main rebuilds one order book from a ledger export and prints it,
// for eyeballing exports before pointing the server at them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"deepbook-sandbox/internal/domain"
	"deepbook-sandbox/internal/layout"
	"deepbook-sandbox/internal/market"
	"deepbook-sandbox/internal/orderbook"
	"deepbook-sandbox/internal/queryvm"
	"deepbook-sandbox/internal/snapshot"
)

func main() {
	snapshotPath := flag.String("snapshot", "", "NDJSON ledger export to load (required)")
	marketID := flag.String("market", "SUI_USDC", "Market id to rebuild")
	configPath := flag.String("markets-config", "", "YAML markets configuration (built-in defaults when empty)")
	levels := flag.Int("levels", 10, "Price levels to print per side")
	timeout := flag.Duration("timeout", 30*time.Second, "Build timeout")

	flag.Parse()

	if *snapshotPath == "" {
		fmt.Fprintln(os.Stderr, "--snapshot is required")
		flag.Usage()
		os.Exit(2)
	}

	m, err := findMarket(*configPath, *marketID)
	if err != nil {
		fatal(err)
	}

	set, err := snapshot.LoadFile(*snapshotPath)
	if err != nil {
		fatal(fmt.Errorf("load snapshot: %w", err))
	}
	stats := set.Stats()
	fmt.Printf("loaded %d objects (%d lines, %d superseded), checkpoint %d\n",
		stats.Objects, stats.LinesRead, stats.Superseded, stats.MaxCheckpoint)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	engine := queryvm.NewEngine(set, layout.NewResolver(layout.NewStaticSource()))
	builder := orderbook.NewBuilder(engine, orderbook.Options{})
	nowMs := uint64(time.Now().UTC().UnixMilli())

	start := time.Now()
	book, err := builder.Build(ctx, m, stats.MaxCheckpoint, nowMs)
	if err != nil {
		fatal(fmt.Errorf("build %s: %w", m.ID, err))
	}

	fmt.Printf("\n%s at checkpoint %d (built in %v)\n", m.ID, book.Checkpoint, time.Since(start).Round(time.Millisecond))
	fmt.Printf("orders: %d bids, %d asks\n", len(book.BidOrders), len(book.AskOrders))
	fmt.Printf("best bid %.6f  best ask %.6f  mid %.6f  spread %d bps\n\n",
		book.BestBid(), book.BestAsk(), book.MidPrice(), book.SpreadBps())

	printSide(book, "ASKS", book.Asks, *levels)
	printSide(book, "BIDS", book.Bids, *levels)
}

func findMarket(configPath, id string) (domain.Market, error) {
	var markets []domain.Market
	if configPath == "" {
		markets = market.DefaultMarkets()
	} else {
		cfg, err := market.LoadConfig(configPath)
		if err != nil {
			return domain.Market{}, err
		}
		for _, mc := range cfg.Markets {
			markets = append(markets, mc.Market)
		}
	}
	for _, m := range markets {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.Market{}, fmt.Errorf("unknown market %s", id)
}

func printSide(book *domain.BookSnapshot, label string, side []domain.PriceLevel, levels int) {
	fmt.Println(label)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "price\tquantity\torders\t")
	for i := 0; i < len(side) && i < levels; i++ {
		fmt.Fprintf(w, "%.6f\t%d\t%d\t\n",
			float64(side[i].Tick)/book.PriceDivisor(), side[i].Quantity, side[i].Orders)
	}
	w.Flush()
	fmt.Println()
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
