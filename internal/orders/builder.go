package orders

import (
	"fmt"

	"github.com/shopspring/decimal"

	"polytrade/internal/clob"
)

const sizePrecision = 6

var (
	one        = decimal.NewFromInt(1)
	oneHundred = decimal.NewFromInt(100)
	tenK       = decimal.NewFromInt(10000)
)

// Build turns an intent plus a live book snapshot into a priced order.
// Market orders price off the best ask plus slippage; limit orders take the
// user's cent price verbatim. Anything that cannot be priced exactly is
// rejected rather than adjusted.
func Build(intent Intent, book *clob.OrderBook) (Built, error) {
	switch intent.Mode {
	case ModeMarket:
		return buildMarket(intent, book)
	case ModeLimit:
		return buildLimit(intent, book)
	default:
		return Built{}, fmt.Errorf("%w: unknown trade mode %q", ErrInvalidPrice, intent.Mode)
	}
}

func buildMarket(intent Intent, book *clob.OrderBook) (Built, error) {
	if book == nil || len(book.Asks) == 0 {
		return Built{}, ErrNoLiquidity
	}
	if intent.SpendAmount.Sign() <= 0 {
		return Built{}, fmt.Errorf("%w: spend amount must be positive", ErrInvalidPrice)
	}

	bestAsk := book.Asks[0].Price
	for _, ask := range book.Asks[1:] {
		if ask.Price.LessThan(bestAsk) {
			bestAsk = ask.Price
		}
	}
	if bestAsk.Sign() <= 0 {
		return Built{}, ErrNoLiquidity
	}

	slippage := decimal.NewFromInt(intent.SlippageBps).Div(tenK)
	price := bestAsk.Mul(one.Add(slippage))
	if price.GreaterThanOrEqual(one) {
		price = one.Sub(book.TickSize)
	}
	if price.Sign() <= 0 || price.GreaterThanOrEqual(one) {
		return Built{}, ErrInvalidPrice
	}

	// Round down so the computed size never spends more than asked.
	size := intent.SpendAmount.Div(price).RoundDown(sizePrecision)
	if size.Sign() <= 0 {
		return Built{}, fmt.Errorf("%w: computed size is zero", ErrInvalidPrice)
	}
	if book.MinOrderSize.Sign() > 0 && size.LessThan(book.MinOrderSize) {
		return Built{}, fmt.Errorf("%w: %s < %s", ErrBelowMinimumSize, size, book.MinOrderSize)
	}

	return Built{
		TokenID:  intent.TokenID,
		Price:    price,
		Size:     size,
		Notional: price.Mul(size),
	}, nil
}

func buildLimit(intent Intent, book *clob.OrderBook) (Built, error) {
	if intent.LimitPriceCents < 1 || intent.LimitPriceCents > 99 {
		return Built{}, fmt.Errorf("%w: limit price must be 1-99 cents", ErrInvalidPrice)
	}
	if intent.Size.Sign() <= 0 {
		return Built{}, fmt.Errorf("%w: size must be positive", ErrInvalidPrice)
	}

	price := decimal.NewFromInt(intent.LimitPriceCents).Div(oneHundred)
	if price.Sign() <= 0 || price.GreaterThanOrEqual(one) {
		return Built{}, ErrInvalidPrice
	}

	// Tick misalignment is a user error, never silently rounded away.
	if book != nil && book.TickSize.Sign() > 0 {
		if !price.Mod(book.TickSize).IsZero() {
			return Built{}, fmt.Errorf("%w: %s is not a multiple of tick size %s", ErrInvalidPrice, price, book.TickSize)
		}
	}

	size := intent.Size.RoundDown(sizePrecision)
	if book != nil && book.MinOrderSize.Sign() > 0 && size.LessThan(book.MinOrderSize) {
		return Built{}, fmt.Errorf("%w: %s < %s", ErrBelowMinimumSize, size, book.MinOrderSize)
	}

	return Built{
		TokenID:  intent.TokenID,
		Price:    price,
		Size:     size,
		Notional: price.Mul(size),
	}, nil
}
