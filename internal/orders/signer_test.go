package orders

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"polytrade/internal/signer"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testExchanges() Exchanges {
	return Exchanges{
		ChainID: big.NewInt(137),
		CTF:     common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"),
		NegRisk: common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a"),
	}
}

func TestSign_ProducesCanonicalBuyOrder(t *testing.T) {
	s, err := signer.NewLocal(testKey)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	built := Built{
		TokenID: "12345",
		Price:   decimal.RequireFromString("0.40"),
		Size:    decimal.RequireFromString("25"),
	}

	order, err := Sign(context.Background(), built, s, testExchanges(), SignParams{})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if order.Side != SideBuy {
		t.Fatalf("side=%d want buy", order.Side)
	}
	if order.MakerAmount != "10000000" {
		t.Fatalf("makerAmount=%s want=10000000", order.MakerAmount)
	}
	if order.TakerAmount != "25000000" {
		t.Fatalf("takerAmount=%s want=25000000", order.TakerAmount)
	}
	if order.Expiration != "0" {
		t.Fatalf("expiration=%s want=0", order.Expiration)
	}
	if order.Maker != s.Address().Hex() || order.Signer != s.Address().Hex() {
		t.Fatalf("maker=%s signer=%s want=%s", order.Maker, order.Signer, s.Address().Hex())
	}
}

func TestSign_SignatureRecovers(t *testing.T) {
	s, err := signer.NewLocal(testKey)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	built := Built{
		TokenID: "777",
		Price:   decimal.RequireFromString("0.50"),
		Size:    decimal.RequireFromString("10"),
	}
	exchanges := testExchanges()

	order, err := Sign(context.Background(), built, s, exchanges, SignParams{NegRisk: true})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	salt, _ := new(big.Int).SetString(order.Salt, 10)
	typed := &orderTypedData{
		Salt:        salt,
		Maker:       common.HexToAddress(order.Maker),
		Signer:      common.HexToAddress(order.Signer),
		Taker:       common.HexToAddress(order.Taker),
		TokenID:     big.NewInt(777),
		MakerAmount: big.NewInt(5000000),
		TakerAmount: big.NewInt(10000000),
		Expiration:  big.NewInt(0),
		Nonce:       big.NewInt(0),
		FeeRateBps:  big.NewInt(0),
		Side:        SideBuy,
	}
	digest := typed.signHash(exchanges.ChainID, exchanges.NegRisk)

	sig := common.FromHex(order.Signature)
	if len(sig) != 65 {
		t.Fatalf("signature length=%d want 65", len(sig))
	}
	sig[64] -= 27
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered := crypto.PubkeyToAddress(*pub); recovered != s.Address() {
		t.Fatalf("recovered=%s want=%s", recovered.Hex(), s.Address().Hex())
	}
}

func TestSign_ProxyFunder(t *testing.T) {
	s, err := signer.NewLocal(testKey)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	funder := common.HexToAddress("0x2222222222222222222222222222222222222222")
	built := Built{
		TokenID: "1",
		Price:   decimal.RequireFromString("0.10"),
		Size:    decimal.RequireFromString("1"),
	}
	order, err := Sign(context.Background(), built, s, testExchanges(), SignParams{
		Funder:        funder,
		SignatureType: SignatureTypeProxy,
	})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if order.Maker != funder.Hex() {
		t.Fatalf("maker=%s want funder %s", order.Maker, funder.Hex())
	}
	if order.Signer != s.Address().Hex() {
		t.Fatalf("signer=%s want wallet %s", order.Signer, s.Address().Hex())
	}
	if order.SignatureType != SignatureTypeProxy {
		t.Fatalf("signatureType=%d want proxy", order.SignatureType)
	}
}
