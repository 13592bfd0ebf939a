package book

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Service hands out snapshots backed by per-token polling subscriptions. A
// token's subscription starts on its first request and keeps refreshing in
// the background until the service context is cancelled.
type Service struct {
	source   BookSource
	logger   *zap.Logger
	interval time.Duration
	base     context.Context

	mu   sync.Mutex
	subs map[string]*tokenBook
}

type tokenBook struct {
	sub     *Subscription
	running bool
}

func NewService(ctx context.Context, source BookSource, interval time.Duration, logger *zap.Logger) *Service {
	return &Service{
		source:   source,
		logger:   logger,
		interval: interval,
		base:     ctx,
		subs:     make(map[string]*tokenBook),
	}
}

// Snapshot returns the latest snapshot for a token. The first request for a
// token fills the subscription synchronously; later requests are served from
// the polled snapshot, stale-flagged when the last poll failed.
func (s *Service) Snapshot(ctx context.Context, tokenID string) (*Snapshot, error) {
	s.mu.Lock()
	tb, ok := s.subs[tokenID]
	if !ok {
		tb = &tokenBook{sub: &Subscription{
			Source:   s.source,
			Logger:   s.logger,
			TokenID:  tokenID,
			Interval: s.interval,
		}}
		s.subs[tokenID] = tb
	}
	s.mu.Unlock()

	if snap := tb.sub.Current(); snap != nil {
		return snap, nil
	}
	snap, err := tb.sub.Prime(ctx)
	if err != nil {
		return nil, err
	}

	// The poller only starts once the first fill worked, so a token with a
	// bad id never ties up a goroutine.
	s.mu.Lock()
	if !tb.running {
		tb.running = true
		go tb.sub.Run(s.base)
	}
	s.mu.Unlock()
	return snap, nil
}
