package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"polytrade/internal/clob"
	"polytrade/internal/orders"
)

// QuoteRequest is a pricing intent as the handler received it.
type QuoteRequest struct {
	TokenID         string          `json:"tokenId"`
	Mode            string          `json:"mode"`
	SpendAmount     decimal.Decimal `json:"spendAmount"`
	Size            decimal.Decimal `json:"size"`
	LimitPriceCents int64           `json:"limitPriceCents"`
	SlippageBps     int64           `json:"slippageBps"`
}

// QuoteResult is a priced buy plus the book constraints it was priced against.
type QuoteResult struct {
	TokenID      string          `json:"tokenId"`
	Price        decimal.Decimal `json:"price"`
	Size         decimal.Decimal `json:"size"`
	Notional     decimal.Decimal `json:"notional"`
	TickSize     decimal.Decimal `json:"tickSize"`
	MinOrderSize decimal.Decimal `json:"minOrderSize"`
	NegRisk      bool            `json:"negRisk"`
	QuotedAt     time.Time       `json:"quotedAt"`
}

// Quote prices intents against the live book without signing anything. The
// client signs the result locally; the server never sees a private key.
type Quote struct {
	Exchange *clob.Client
	Logger   *zap.Logger
}

func (q *Quote) Price(ctx context.Context, req QuoteRequest) (*QuoteResult, *Failure) {
	if req.TokenID == "" {
		return nil, failf(http.StatusBadRequest, CodeInvalidOrder, "missing tokenId")
	}
	mode := req.Mode
	if mode == "" {
		mode = orders.ModeMarket
	}

	rawBook, err := q.Exchange.GetBook(ctx, req.TokenID)
	if err != nil {
		if q.Logger != nil {
			q.Logger.Warn("quote book fetch failed", zap.String("token_id", req.TokenID), zap.Error(err))
		}
		return nil, failf(http.StatusBadGateway, CodeUpstreamUnavailable, "book unavailable")
	}

	built, err := orders.Build(orders.Intent{
		TokenID:         req.TokenID,
		Mode:            mode,
		SpendAmount:     req.SpendAmount,
		Size:            req.Size,
		LimitPriceCents: req.LimitPriceCents,
		SlippageBps:     req.SlippageBps,
	}, rawBook)
	if err != nil {
		return nil, buildFailure(err)
	}

	return &QuoteResult{
		TokenID:      built.TokenID,
		Price:        built.Price,
		Size:         built.Size,
		Notional:     built.Notional,
		TickSize:     rawBook.TickSize,
		MinOrderSize: rawBook.MinOrderSize,
		NegRisk:      rawBook.NegRisk,
		QuotedAt:     time.Now().UTC(),
	}, nil
}

func buildFailure(err error) *Failure {
	switch {
	case errors.Is(err, orders.ErrNoLiquidity):
		return failf(http.StatusBadRequest, CodeNoLiquidity, "%v", err)
	case errors.Is(err, orders.ErrBelowMinimumSize):
		return failf(http.StatusBadRequest, CodeBelowMinimumSize, "%v", err)
	case errors.Is(err, orders.ErrInvalidPrice):
		return failf(http.StatusBadRequest, CodeInvalidPrice, "%v", err)
	}
	return failf(http.StatusBadRequest, CodeInvalidOrder, "%v", err)
}
