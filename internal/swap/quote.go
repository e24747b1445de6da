package swap

import (
	"math"

	"deepbook-sandbox/internal/domain"
)

// walkResult is the outcome of consuming levels on one side of a book.
type walkResult struct {
	out            uint64
	outF           float64
	effectivePrice float64 // quote units per base unit, human scale
	levelsConsumed int
	ordersMatched  int
	fullyFilled    bool
}

// walkLevels consumes book liquidity for an input amount. When isSell, the
// input is base units and bids are walked highest first; otherwise the
// input is quote units and asks are walked lowest first. The shared book is
// read-only throughout.
func walkLevels(book *domain.BookSnapshot, amountIn uint64, isSell bool) walkResult {
	divisor := book.PriceDivisor()
	baseScale := math.Pow10(int(book.BaseDecimals))
	quoteScale := math.Pow10(int(book.QuoteDecimals))

	levels := book.Asks
	if isSell {
		levels = book.Bids
	}

	remaining := float64(amountIn)
	var total float64
	var consumed, orders int

	for _, level := range levels {
		if remaining <= 0 {
			break
		}
		price := float64(level.Tick) / divisor
		levelQty := float64(level.Quantity) / baseScale

		if isSell {
			inputBase := remaining / baseScale
			take := math.Min(levelQty, inputBase)
			if take > 0 {
				total += take * price * quoteScale
				remaining -= take * baseScale
				consumed++
				orders += level.Orders
			}
		} else {
			inputQuote := remaining / quoteScale
			levelCost := levelQty * price
			if levelCost <= inputQuote {
				total += levelQty * baseScale
				remaining -= levelCost * quoteScale
				consumed++
				orders += level.Orders
			} else {
				take := inputQuote / price
				total += take * baseScale
				remaining = 0
				consumed++
				orders += level.Orders
			}
		}
	}

	res := walkResult{
		out:            uint64(total),
		outF:           total,
		levelsConsumed: consumed,
		ordersMatched:  orders,
		fullyFilled:    remaining <= 0,
	}

	inputHuman := float64(amountIn) / baseScale
	outputHuman := total / quoteScale
	if !isSell {
		inputHuman = float64(amountIn) / quoteScale
		outputHuman = total / baseScale
	}
	switch {
	case isSell && outputHuman > 0:
		res.effectivePrice = outputHuman / inputHuman
	case !isSell && outputHuman > 0:
		res.effectivePrice = inputHuman / outputHuman
	}
	return res
}

// impactBps measures how far an effective price sits from the book mid, in
// basis points.
func impactBps(effective, mid float64) int64 {
	if mid <= 0 || effective <= 0 {
		return 0
	}
	return int64(math.Abs(effective-mid) / mid * 10_000)
}
