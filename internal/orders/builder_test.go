package orders

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"polytrade/internal/clob"
)

func level(price, size string) clob.Level {
	return clob.Level{
		Price: decimal.RequireFromString(price),
		Size:  decimal.RequireFromString(size),
	}
}

func TestBuildMarket_SlippageAndFloor(t *testing.T) {
	bk := &clob.OrderBook{
		Asks:     []clob.Level{level("0.40", "1000")},
		TickSize: decimal.RequireFromString("0.01"),
	}
	built, err := Build(Intent{
		TokenID:     "123",
		Mode:        ModeMarket,
		SpendAmount: decimal.NewFromInt(10),
		SlippageBps: 50,
	}, bk)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	bestAsk := decimal.RequireFromString("0.40")
	cap := decimal.RequireFromString("0.402")
	if built.Price.LessThan(bestAsk) || built.Price.GreaterThan(cap) {
		t.Fatalf("price=%s want in [0.40, 0.402]", built.Price)
	}
	wantSize := decimal.NewFromInt(10).Div(built.Price).RoundDown(6)
	if !built.Size.Equal(wantSize) {
		t.Fatalf("size=%s want=%s", built.Size, wantSize)
	}
	if built.Notional.GreaterThan(decimal.NewFromInt(10)) {
		t.Fatalf("notional=%s exceeds spend", built.Notional)
	}
}

func TestBuildMarket_NoLiquidity(t *testing.T) {
	_, err := Build(Intent{
		TokenID:     "123",
		Mode:        ModeMarket,
		SpendAmount: decimal.NewFromInt(10),
	}, &clob.OrderBook{})
	if !errors.Is(err, ErrNoLiquidity) {
		t.Fatalf("err=%v want ErrNoLiquidity", err)
	}
}

func TestBuildMarket_BelowMinimum(t *testing.T) {
	bk := &clob.OrderBook{
		Asks:         []clob.Level{level("0.50", "1000")},
		MinOrderSize: decimal.NewFromInt(5),
	}
	_, err := Build(Intent{
		TokenID:     "123",
		Mode:        ModeMarket,
		SpendAmount: decimal.NewFromInt(1),
	}, bk)
	if !errors.Is(err, ErrBelowMinimumSize) {
		t.Fatalf("err=%v want ErrBelowMinimumSize", err)
	}
}

func TestBuildLimit_TickAlignment(t *testing.T) {
	intent := Intent{
		TokenID:         "123",
		Mode:            ModeLimit,
		Size:            decimal.NewFromInt(10),
		LimitPriceCents: 33,
	}

	built, err := Build(intent, &clob.OrderBook{TickSize: decimal.RequireFromString("0.01")})
	if err != nil {
		t.Fatalf("build with 0.01 tick failed: %v", err)
	}
	if !built.Price.Equal(decimal.RequireFromString("0.33")) {
		t.Fatalf("price=%s want=0.33", built.Price)
	}

	_, err = Build(intent, &clob.OrderBook{TickSize: decimal.RequireFromString("0.02")})
	if !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("err=%v want ErrInvalidPrice for 0.02 tick", err)
	}
}

func TestBuildLimit_CentBounds(t *testing.T) {
	for _, cents := range []int64{0, 100, -5} {
		_, err := Build(Intent{
			TokenID:         "123",
			Mode:            ModeLimit,
			Size:            decimal.NewFromInt(10),
			LimitPriceCents: cents,
		}, &clob.OrderBook{})
		if !errors.Is(err, ErrInvalidPrice) {
			t.Fatalf("cents=%d err=%v want ErrInvalidPrice", cents, err)
		}
	}
}

func TestBuildMarket_PicksBestAsk(t *testing.T) {
	bk := &clob.OrderBook{
		Asks: []clob.Level{
			level("0.55", "100"),
			level("0.50", "100"),
			level("0.60", "100"),
		},
	}
	built, err := Build(Intent{
		TokenID:     "123",
		Mode:        ModeMarket,
		SpendAmount: decimal.NewFromInt(5),
	}, bk)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !built.Price.Equal(decimal.RequireFromString("0.50")) {
		t.Fatalf("price=%s want best ask 0.50", built.Price)
	}
}
