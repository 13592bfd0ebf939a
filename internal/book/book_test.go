package book

import (
	"context"
	"fmt"
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

func TestBuildSnapshot_SortsAndAccumulates(t *testing.T) {
	raw := &clob.OrderBook{
		Bids: []clob.Level{level("0.30", "10"), level("0.35", "5"), level("0.20", "7")},
		Asks: []clob.Level{level("0.50", "4"), level("0.40", "2"), level("0.45", "6")},
	}
	snap := BuildSnapshot("tok", raw)

	wantBids := []string{"0.35", "0.30", "0.20"}
	for i, want := range wantBids {
		if !snap.Bids[i].Price.Equal(decimal.RequireFromString(want)) {
			t.Fatalf("bid[%d]=%s want=%s", i, snap.Bids[i].Price, want)
		}
	}
	wantAsks := []string{"0.40", "0.45", "0.50"}
	for i, want := range wantAsks {
		if !snap.Asks[i].Price.Equal(decimal.RequireFromString(want)) {
			t.Fatalf("ask[%d]=%s want=%s", i, snap.Asks[i].Price, want)
		}
	}

	if !snap.Bids[2].Cumulative.Equal(decimal.NewFromInt(22)) {
		t.Fatalf("bid cumulative=%s want=22", snap.Bids[2].Cumulative)
	}
	if !snap.Asks[1].Cumulative.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("ask cumulative=%s want=8", snap.Asks[1].Cumulative)
	}

	if ask, ok := snap.BestAsk(); !ok || !ask.Equal(decimal.RequireFromString("0.40")) {
		t.Fatalf("best ask=%s ok=%v", ask, ok)
	}
	if bid, ok := snap.BestBid(); !ok || !bid.Equal(decimal.RequireFromString("0.35")) {
		t.Fatalf("best bid=%s ok=%v", bid, ok)
	}
}

type scriptedSource struct {
	books []*clob.OrderBook
	errs  []error
	i     int
}

func (s *scriptedSource) GetBook(ctx context.Context, tokenID string) (*clob.OrderBook, error) {
	defer func() { s.i++ }()
	if s.errs[s.i] != nil {
		return nil, s.errs[s.i]
	}
	return s.books[s.i], nil
}

func TestSubscription_FailedPollKeepsPreviousSnapshot(t *testing.T) {
	good := &clob.OrderBook{Asks: []clob.Level{level("0.40", "2")}}
	src := &scriptedSource{
		books: []*clob.OrderBook{good, nil},
		errs:  []error{nil, fmt.Errorf("poll failed")},
	}
	sub := &Subscription{Source: src, TokenID: "tok"}

	sub.poll(context.Background())
	first := sub.Current()
	if first == nil || first.Stale {
		t.Fatalf("first snapshot=%+v", first)
	}

	sub.poll(context.Background())
	second := sub.Current()
	if second == nil {
		t.Fatal("snapshot lost after failed poll")
	}
	if !second.Stale {
		t.Fatal("holdover snapshot not flagged stale")
	}
	if len(second.Asks) != 1 || !second.Asks[0].Price.Equal(decimal.RequireFromString("0.40")) {
		t.Fatalf("holdover asks=%+v", second.Asks)
	}
}

func TestSubscription_FailedFirstPollLeavesNil(t *testing.T) {
	src := &scriptedSource{
		books: []*clob.OrderBook{nil},
		errs:  []error{fmt.Errorf("down")},
	}
	sub := &Subscription{Source: src, TokenID: "tok"}
	sub.poll(context.Background())
	if sub.Current() != nil {
		t.Fatal("snapshot fabricated from a failed poll")
	}
}
