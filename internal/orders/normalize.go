package orders

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Normalize parses a raw order payload into the canonical SignedOrder.
// Clients of different vintages send numeric-like fields as JSON numbers,
// decimal strings, or 0x-hex strings; all are accepted and converted to
// canonical decimal strings. A field that parses as none of these fails the
// whole payload: nothing is forwarded best-effort.
func Normalize(raw json.RawMessage) (*SignedOrder, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedOrder)
	}

	order := &SignedOrder{}
	var err error

	if order.Salt, err = numericField(fields, true, "salt"); err != nil {
		return nil, err
	}
	if order.Maker, err = addressField(fields, true, "maker"); err != nil {
		return nil, err
	}
	if order.Signer, err = addressField(fields, true, "signer"); err != nil {
		return nil, err
	}
	if order.Taker, err = addressField(fields, false, "taker"); err != nil {
		return nil, err
	}
	if order.TokenID, err = numericField(fields, true, "tokenId", "token_id", "tokenID", "asset", "asset_id"); err != nil {
		return nil, err
	}
	if order.MakerAmount, err = numericField(fields, true, "makerAmount", "maker_amount"); err != nil {
		return nil, err
	}
	if order.TakerAmount, err = numericField(fields, true, "takerAmount", "taker_amount"); err != nil {
		return nil, err
	}
	if order.Expiration, err = numericField(fields, false, "expiration"); err != nil {
		return nil, err
	}
	if order.Nonce, err = numericField(fields, false, "nonce"); err != nil {
		return nil, err
	}
	if order.FeeRateBps, err = numericField(fields, false, "feeRateBps", "fee_rate_bps"); err != nil {
		return nil, err
	}
	if order.Side, err = sideField(fields); err != nil {
		return nil, err
	}
	if order.SignatureType, err = smallIntField(fields, "signatureType", "signature_type"); err != nil {
		return nil, err
	}
	if order.Signature, err = hexField(fields, "signature"); err != nil {
		return nil, err
	}

	if order.Expiration == "" {
		order.Expiration = "0"
	}
	if order.Nonce == "" {
		order.Nonce = "0"
	}
	if order.FeeRateBps == "" {
		order.FeeRateBps = "0"
	}
	if order.Taker == "" {
		order.Taker = "0x0000000000000000000000000000000000000000"
	}

	return order, nil
}

func lookup(fields map[string]json.RawMessage, keys ...string) (json.RawMessage, string, bool) {
	for _, key := range keys {
		if v, ok := fields[key]; ok && string(v) != "null" {
			return v, key, true
		}
	}
	return nil, "", false
}

// numericField returns the canonical decimal-string form of a field that may
// arrive as a JSON number, a decimal string, or a 0x-hex string.
func numericField(fields map[string]json.RawMessage, required bool, keys ...string) (string, error) {
	raw, key, ok := lookup(fields, keys...)
	if !ok {
		if required {
			return "", fmt.Errorf("%w: missing %s", ErrMalformedOrder, keys[0])
		}
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("%w: %s is not numeric", ErrMalformedOrder, key)
		}
		s = n.String()
	}
	s = strings.TrimSpace(s)

	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}
	v, ok2 := new(big.Int).SetString(digits, base)
	if !ok2 || v.Sign() < 0 {
		return "", fmt.Errorf("%w: %s=%q is not a non-negative integer", ErrMalformedOrder, key, s)
	}
	return v.String(), nil
}

func addressField(fields map[string]json.RawMessage, required bool, keys ...string) (string, error) {
	raw, key, ok := lookup(fields, keys...)
	if !ok {
		if required {
			return "", fmt.Errorf("%w: missing %s", ErrMalformedOrder, keys[0])
		}
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %s is not a string", ErrMalformedOrder, key)
	}
	s = strings.TrimSpace(s)
	if len(s) != 42 || !strings.HasPrefix(s, "0x") || !isHex(s[2:]) {
		return "", fmt.Errorf("%w: %s=%q is not an address", ErrMalformedOrder, key, s)
	}
	return s, nil
}

func hexField(fields map[string]json.RawMessage, keys ...string) (string, error) {
	raw, key, ok := lookup(fields, keys...)
	if !ok {
		return "", fmt.Errorf("%w: missing %s", ErrMalformedOrder, keys[0])
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %s is not a string", ErrMalformedOrder, key)
	}
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") || len(s) < 4 || !isHex(s[2:]) {
		return "", fmt.Errorf("%w: %s is not hex data", ErrMalformedOrder, key)
	}
	return s, nil
}

func sideField(fields map[string]json.RawMessage) (int, error) {
	raw, _, ok := lookup(fields, "side")
	if !ok {
		return 0, fmt.Errorf("%w: missing side", ErrMalformedOrder)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToUpper(strings.TrimSpace(s)) {
		case "BUY", "0":
			return SideBuy, nil
		case "SELL", "1":
			return SideSell, nil
		}
		return 0, fmt.Errorf("%w: side=%q", ErrMalformedOrder, s)
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil && (n == SideBuy || n == SideSell) {
		return n, nil
	}
	return 0, fmt.Errorf("%w: unparseable side", ErrMalformedOrder)
}

func smallIntField(fields map[string]json.RawMessage, keys ...string) (int, error) {
	raw, key, ok := lookup(fields, keys...)
	if !ok {
		return 0, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil && n >= 0 && n <= 2 {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.TrimSpace(s) {
		case "0":
			return 0, nil
		case "1":
			return 1, nil
		case "2":
			return 2, nil
		}
	}
	return 0, fmt.Errorf("%w: bad %s", ErrMalformedOrder, key)
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
