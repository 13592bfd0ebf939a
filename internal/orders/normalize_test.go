package orders

import (
	"encoding/json"
	"errors"
	"testing"
)

const addrA = "0x1111111111111111111111111111111111111111"

func validPayload(overrides map[string]any) map[string]any {
	base := map[string]any{
		"salt":          "12345",
		"maker":         addrA,
		"signer":        addrA,
		"tokenId":       "999",
		"makerAmount":   "4000000",
		"takerAmount":   "10000000",
		"side":          "BUY",
		"signatureType": 0,
		"signature":     "0xabcdef12",
	}
	for k, v := range overrides {
		if v == nil {
			delete(base, k)
		} else {
			base[k] = v
		}
	}
	return base
}

func marshal(t *testing.T, payload map[string]any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestNormalize_Canonical(t *testing.T) {
	order, err := Normalize(marshal(t, validPayload(nil)))
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if order.Salt != "12345" || order.TokenID != "999" {
		t.Fatalf("salt=%s tokenId=%s", order.Salt, order.TokenID)
	}
	if order.Side != SideBuy {
		t.Fatalf("side=%d want buy", order.Side)
	}
	if order.Expiration != "0" || order.Nonce != "0" || order.FeeRateBps != "0" {
		t.Fatalf("defaults wrong: exp=%s nonce=%s fee=%s", order.Expiration, order.Nonce, order.FeeRateBps)
	}
}

func TestNormalize_HexAndNumberInputs(t *testing.T) {
	order, err := Normalize(marshal(t, validPayload(map[string]any{
		"salt":        json.Number("42"),
		"makerAmount": "0xff",
	})))
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if order.Salt != "42" {
		t.Fatalf("salt=%s want=42", order.Salt)
	}
	if order.MakerAmount != "255" {
		t.Fatalf("makerAmount=%s want=255", order.MakerAmount)
	}
}

func TestNormalize_TokenIDAliases(t *testing.T) {
	for _, key := range []string{"tokenId", "token_id", "asset", "asset_id"} {
		payload := validPayload(map[string]any{"tokenId": nil})
		payload[key] = "777"
		order, err := Normalize(marshal(t, payload))
		if err != nil {
			t.Fatalf("alias %s failed: %v", key, err)
		}
		if order.TokenID != "777" {
			t.Fatalf("alias %s: tokenId=%s", key, order.TokenID)
		}
	}
}

func TestNormalize_RejectsMalformed(t *testing.T) {
	cases := map[string]map[string]any{
		"missing maker":   {"maker": nil},
		"bad address":     {"maker": "0x123"},
		"bad salt":        {"salt": "not-a-number"},
		"negative amount": {"makerAmount": "-5"},
		"missing token":   {"tokenId": nil},
		"bad signature":   {"signature": "zzzz"},
		"bad side":        {"side": "HOLD"},
	}
	for name, overrides := range cases {
		_, err := Normalize(marshal(t, validPayload(overrides)))
		if !errors.Is(err, ErrMalformedOrder) {
			t.Fatalf("%s: err=%v want ErrMalformedOrder", name, err)
		}
	}
}

func TestNormalize_SellSideSurvivesParsing(t *testing.T) {
	order, err := Normalize(marshal(t, validPayload(map[string]any{"side": "SELL"})))
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	// Normalization itself keeps the sell so the policy layer can refuse it
	// with its dedicated code.
	if order.Side != SideSell {
		t.Fatalf("side=%d want sell", order.Side)
	}
}
