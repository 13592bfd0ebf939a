package orders

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Trade sides and signature types use the exchange's integer encoding.
const (
	SideBuy  = 0
	SideSell = 1

	SignatureTypeEOA      = 0
	SignatureTypeProxy    = 1
	SignatureTypePolySafe = 2
)

// Trade modes.
const (
	ModeMarket = "market"
	ModeLimit  = "limit"
)

// Order types accepted by the exchange.
const (
	OrderTypeFOK = "FOK"
	OrderTypeGTC = "GTC"
	OrderTypeGTD = "GTD"
)

var (
	ErrNoLiquidity      = errors.New("no opposing liquidity")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrBelowMinimumSize = errors.New("size below market minimum")
	ErrMalformedOrder   = errors.New("malformed order payload")
)

// Intent is what the user asked for, before pricing. Buy-only by
// construction: there is no side field to get wrong.
type Intent struct {
	TokenID string
	Mode    string
	// SpendAmount is collateral to spend on a market order.
	SpendAmount decimal.Decimal
	// Size is the share count for a limit order.
	Size decimal.Decimal
	// LimitPriceCents is the user-facing limit price, 1 to 99.
	LimitPriceCents int64
	// SlippageBps adjusts the best ask on market orders.
	SlippageBps int64
}

// Built is a priced order ready for signing. Price is a probability in (0,1),
// size a share count with at most six decimal places.
type Built struct {
	TokenID string
	Price   decimal.Decimal
	Size    decimal.Decimal
	// Notional is price*size, what the buy will cost.
	Notional decimal.Decimal
}

// SignedOrder is the canonical wire shape. Every numeric-like field is a
// canonical decimal string; side and signatureType are small integers.
type SignedOrder struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          int    `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}
