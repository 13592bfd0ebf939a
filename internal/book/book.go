package book

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"polytrade/internal/clob"
)

// Polls slower than this are pointless and faster ones hammer the exchange,
// so the configured interval is floored here.
const minPollInterval = 5 * time.Second

// Level is one price level with the running cumulative size down the book.
type Level struct {
	Price      decimal.Decimal `json:"price"`
	Size       decimal.Decimal `json:"size"`
	Cumulative decimal.Decimal `json:"cumulative"`
}

// Snapshot is one complete view of a token's book. Snapshots are immutable
// once published; each poll replaces the whole thing.
type Snapshot struct {
	TokenID      string          `json:"tokenId"`
	Bids         []Level         `json:"bids"`
	Asks         []Level         `json:"asks"`
	TickSize     decimal.Decimal `json:"tickSize"`
	MinOrderSize decimal.Decimal `json:"minOrderSize"`
	NegRisk      bool            `json:"negRisk"`
	FetchedAt    time.Time       `json:"fetchedAt"`
	// Stale is set when the latest poll failed and this snapshot is a
	// holdover from the last good one.
	Stale bool `json:"stale"`
}

// BookSource is the slice of the exchange client the subscription needs.
type BookSource interface {
	GetBook(ctx context.Context, tokenID string) (*clob.OrderBook, error)
}

// Subscription polls one token's book on a fixed interval and keeps the
// latest snapshot. A failed poll never corrupts state: the previous snapshot
// stays visible, flagged stale.
type Subscription struct {
	Source   BookSource
	Logger   *zap.Logger
	TokenID  string
	Interval time.Duration

	mu      sync.RWMutex
	current *Snapshot
}

// Current returns the latest snapshot, nil before the first successful poll.
func (s *Subscription) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Prime fetches once synchronously and publishes the result. Unlike a poll,
// a failed prime reports its error to the caller.
func (s *Subscription) Prime(ctx context.Context) (*Snapshot, error) {
	raw, err := s.Source.GetBook(ctx, s.TokenID)
	if err != nil {
		return nil, err
	}
	snap := BuildSnapshot(s.TokenID, raw)
	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()
	return snap, nil
}

// Run polls until the context is cancelled. The first poll happens
// immediately unless a prime already published a snapshot.
func (s *Subscription) Run(ctx context.Context) {
	interval := s.Interval
	if interval < minPollInterval {
		interval = minPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if s.Current() == nil {
		s.poll(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Subscription) poll(ctx context.Context) {
	raw, err := s.Source.GetBook(ctx, s.TokenID)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("book poll failed", zap.String("token_id", s.TokenID), zap.Error(err))
		}
		s.mu.Lock()
		if s.current != nil && !s.current.Stale {
			stale := *s.current
			stale.Stale = true
			s.current = &stale
		}
		s.mu.Unlock()
		return
	}

	snap := BuildSnapshot(s.TokenID, raw)
	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()
}

// BuildSnapshot sorts and accumulates a raw book into a Snapshot. Bids come
// out descending, asks ascending, each level carrying the running sum.
func BuildSnapshot(tokenID string, raw *clob.OrderBook) *Snapshot {
	snap := &Snapshot{
		TokenID:      tokenID,
		TickSize:     raw.TickSize,
		MinOrderSize: raw.MinOrderSize,
		NegRisk:      raw.NegRisk,
		FetchedAt:    time.Now().UTC(),
	}
	snap.Bids = levels(raw.Bids, true)
	snap.Asks = levels(raw.Asks, false)
	return snap
}

func levels(in []clob.Level, descending bool) []Level {
	out := make([]Level, len(in))
	for i, l := range in {
		out[i] = Level{Price: l.Price, Size: l.Size}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if descending {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	running := decimal.Zero
	for i := range out {
		running = running.Add(out[i].Size)
		out[i].Cumulative = running
	}
	return out
}

// BestAsk returns the lowest ask, or zero when the side is empty.
func (s *Snapshot) BestAsk() (decimal.Decimal, bool) {
	if s == nil || len(s.Asks) == 0 {
		return decimal.Zero, false
	}
	return s.Asks[0].Price, true
}

// BestBid returns the highest bid, or zero when the side is empty.
func (s *Snapshot) BestBid() (decimal.Decimal, bool) {
	if s == nil || len(s.Bids) == 0 {
		return decimal.Zero, false
	}
	return s.Bids[0].Price, true
}
