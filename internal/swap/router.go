package swap

import (
	"context"
	"fmt"

	"deepbook-sandbox/internal/domain"
)

// TwoHopQuote is a routed estimate through the settlement token.
type TwoHopQuote struct {
	Intermediate uint64 // settlement units produced by the first leg
	Output       uint64
	LevelsFirst  int
	LevelsSecond int
	Orders       int // resting orders matched across both legs
}

// Router quotes two-hop swaps. The primary implementation mirrors the
// venue's execution path and aborts on its constraints; callers fall back
// to a plain level walk when it errors.
type Router interface {
	QuoteTwoHop(ctx context.Context, firstBook, secondBook *domain.BookSnapshot,
		first, second domain.Market, amountIn uint64) (TwoHopQuote, error)
}

// StrictRouter enforces the venue's lot-size and min-size rules on both
// legs, as on-chain execution would.
type StrictRouter struct{}

func (StrictRouter) QuoteTwoHop(ctx context.Context, firstBook, secondBook *domain.BookSnapshot,
	first, second domain.Market, amountIn uint64) (TwoHopQuote, error) {
	if err := ctx.Err(); err != nil {
		return TwoHopQuote{}, err
	}
	if first.LotSize > 0 && amountIn%first.LotSize != 0 {
		return TwoHopQuote{}, fmt.Errorf("input %d not a multiple of %s lot size %d",
			amountIn, first.ID, first.LotSize)
	}
	if first.MinSize > 0 && amountIn < first.MinSize {
		return TwoHopQuote{}, fmt.Errorf("input %d below %s min size %d",
			amountIn, first.ID, first.MinSize)
	}

	leg1 := walkLevels(firstBook, amountIn, true)
	if !leg1.fullyFilled {
		return TwoHopQuote{}, fmt.Errorf("insufficient bid depth on %s", first.ID)
	}

	leg2 := walkLevels(secondBook, leg1.out, false)
	out := leg2.out
	if second.LotSize > 0 {
		out -= out % second.LotSize
	}
	if second.MinSize > 0 && out < second.MinSize {
		return TwoHopQuote{}, fmt.Errorf("output %d below %s min size %d",
			out, second.ID, second.MinSize)
	}

	return TwoHopQuote{
		Intermediate: leg1.out,
		Output:       out,
		LevelsFirst:  leg1.levelsConsumed,
		LevelsSecond: leg2.levelsConsumed,
		Orders:       leg1.ordersMatched + leg2.ordersMatched,
	}, nil
}
