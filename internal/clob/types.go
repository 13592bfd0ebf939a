package clob

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type Decimal struct {
	decimal.Decimal
}

func (d *Decimal) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		d.Decimal = decimal.Zero
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		val, err := decimal.NewFromString(s)
		if err != nil {
			return err
		}
		d.Decimal = val
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		d.Decimal = decimal.NewFromFloat(f)
		return nil
	}
	return fmt.Errorf("invalid decimal: %s", string(b))
}

type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

func (l *Level) UnmarshalJSON(b []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(b, &arr); err == nil && len(arr) >= 2 {
		price, err := parseDecimalRaw(arr[0])
		if err != nil {
			return err
		}
		size, err := parseDecimalRaw(arr[1])
		if err != nil {
			return err
		}
		l.Price = price
		l.Size = size
		return nil
	}
	var obj struct {
		Price json.RawMessage `json:"price"`
		Size  json.RawMessage `json:"size"`
		Qty   json.RawMessage `json:"qty"`
	}
	if err := json.Unmarshal(b, &obj); err == nil {
		price, err := parseDecimalRaw(obj.Price)
		if err != nil {
			return err
		}
		sizeRaw := obj.Size
		if len(sizeRaw) == 0 {
			sizeRaw = obj.Qty
		}
		size, err := parseDecimalRaw(sizeRaw)
		if err != nil {
			return err
		}
		l.Price = price
		l.Size = size
		return nil
	}
	return fmt.Errorf("invalid book level: %s", string(b))
}

type OrderBook struct {
	Bids         []Level
	Asks         []Level
	TickSize     decimal.Decimal
	MinOrderSize decimal.Decimal
	NegRisk      bool
}

func parseOrderBook(body []byte) (*OrderBook, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	book := &OrderBook{}
	if bidsRaw := firstRaw(raw, "bids", "buys"); bidsRaw != nil {
		if err := json.Unmarshal(bidsRaw, &book.Bids); err != nil {
			return nil, err
		}
	}
	if asksRaw := firstRaw(raw, "asks", "sells"); asksRaw != nil {
		if err := json.Unmarshal(asksRaw, &book.Asks); err != nil {
			return nil, err
		}
	}
	if tickRaw := firstRaw(raw, "tick_size", "tickSize", "minimum_tick_size"); tickRaw != nil {
		if v, err := parseDecimalRaw(tickRaw); err == nil {
			book.TickSize = v
		}
	}
	if minRaw := firstRaw(raw, "min_order_size", "minOrderSize", "minimum_order_size"); minRaw != nil {
		if v, err := parseDecimalRaw(minRaw); err == nil {
			book.MinOrderSize = v
		}
	}
	if nrRaw := firstRaw(raw, "neg_risk", "negRisk"); nrRaw != nil {
		var v bool
		if err := json.Unmarshal(nrRaw, &v); err == nil {
			book.NegRisk = v
		}
	}
	return book, nil
}

func parseDecimalRaw(b json.RawMessage) (decimal.Decimal, error) {
	var d Decimal
	if err := json.Unmarshal(b, &d); err != nil {
		return decimal.Zero, err
	}
	return d.Decimal, nil
}

func firstRaw(m map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return nil
}
