package orders

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"polytrade/internal/signer"
)

// Collateral and share amounts go on the wire in 6-decimal base units.
const amountDecimals = 6

// Exchanges carries the two verifying contracts; neg-risk markets sign
// against the neg-risk exchange.
type Exchanges struct {
	ChainID *big.Int
	CTF     common.Address
	NegRisk common.Address
}

func (e Exchanges) verifying(negRisk bool) common.Address {
	if negRisk {
		return e.NegRisk
	}
	return e.CTF
}

// SignParams is everything beyond the priced order that signing needs.
type SignParams struct {
	// Funder is the maker address the exchange debits. For proxy funding it
	// differs from the signing wallet.
	Funder        common.Address
	NegRisk       bool
	SignatureType int
	// Expiration is a unix timestamp string, "0" for non-GTD orders.
	Expiration string
	Nonce      string
	FeeRateBps string
}

// Sign turns a priced buy into a canonical signed order. The side is fixed to
// buy here regardless of anything upstream; sells do not exist in this layer.
func Sign(ctx context.Context, built Built, s signer.Signer, exchanges Exchanges, params SignParams) (*SignedOrder, error) {
	if built.Price.Sign() <= 0 || built.Size.Sign() <= 0 {
		return nil, fmt.Errorf("%w: unpriced order", ErrInvalidPrice)
	}
	tokenID, ok := new(big.Int).SetString(built.TokenID, 10)
	if !ok {
		return nil, fmt.Errorf("%w: bad token id %q", ErrMalformedOrder, built.TokenID)
	}

	salt, err := newSalt()
	if err != nil {
		return nil, err
	}

	// Buying size shares at price: the maker gives price*size collateral and
	// takes size shares, both in base units.
	makerAmount := toBaseUnits(built.Price.Mul(built.Size))
	takerAmount := toBaseUnits(built.Size)
	if makerAmount.Sign() <= 0 || takerAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: zero amount", ErrInvalidPrice)
	}

	expiration := params.Expiration
	if expiration == "" {
		expiration = "0"
	}
	nonce := params.Nonce
	if nonce == "" {
		nonce = "0"
	}
	feeRateBps := params.FeeRateBps
	if feeRateBps == "" {
		feeRateBps = "0"
	}
	expirationInt, ok := new(big.Int).SetString(expiration, 10)
	if !ok {
		return nil, fmt.Errorf("%w: bad expiration %q", ErrMalformedOrder, expiration)
	}
	nonceInt, ok := new(big.Int).SetString(nonce, 10)
	if !ok {
		return nil, fmt.Errorf("%w: bad nonce %q", ErrMalformedOrder, nonce)
	}
	feeInt, ok := new(big.Int).SetString(feeRateBps, 10)
	if !ok {
		return nil, fmt.Errorf("%w: bad feeRateBps %q", ErrMalformedOrder, feeRateBps)
	}

	maker := params.Funder
	if maker == (common.Address{}) {
		maker = s.Address()
	}

	typed := &orderTypedData{
		Salt:          salt,
		Maker:         maker,
		Signer:        s.Address(),
		Taker:         common.Address{},
		TokenID:       tokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Expiration:    expirationInt,
		Nonce:         nonceInt,
		FeeRateBps:    feeInt,
		Side:          SideBuy,
		SignatureType: uint8(params.SignatureType),
	}

	digest := typed.signHash(exchanges.ChainID, exchanges.verifying(params.NegRisk))
	sig, err := s.SignDigest(ctx, digest)
	if err != nil {
		return nil, err
	}

	return &SignedOrder{
		Salt:          salt.String(),
		Maker:         maker.Hex(),
		Signer:        s.Address().Hex(),
		Taker:         typed.Taker.Hex(),
		TokenID:       tokenID.String(),
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		Expiration:    expiration,
		Nonce:         nonce,
		FeeRateBps:    feeRateBps,
		Side:          SideBuy,
		SignatureType: params.SignatureType,
		Signature:     "0x" + common.Bytes2Hex(sig),
	}, nil
}

// Salts stay below 2^53 so they survive JSON round-trips through
// number-typed clients.
var maxSalt = new(big.Int).Lsh(big.NewInt(1), 53)

func newSalt() (*big.Int, error) {
	salt, err := rand.Int(rand.Reader, maxSalt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

func toBaseUnits(d decimal.Decimal) *big.Int {
	return d.Shift(amountDecimals).RoundDown(0).BigInt()
}
