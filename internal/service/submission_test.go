package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"polytrade/internal/clob"
	"polytrade/internal/session"
)

const makerAddr = "0x1111111111111111111111111111111111111111"

func activeSession() *session.Session {
	return &session.Session{
		APIKey:        "key",
		Secret:        "c2VjcmV0",
		Passphrase:    "pass",
		WalletAddress: makerAddr,
		CreatedAt:     time.Now().UTC(),
	}
}

func orderPayload(t *testing.T, overrides map[string]any) json.RawMessage {
	t.Helper()
	base := map[string]any{
		"salt":          "12345",
		"maker":         makerAddr,
		"signer":        makerAddr,
		"tokenId":       "999",
		"makerAmount":   "4000000",
		"takerAmount":   "10000000",
		"expiration":    "0",
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
	raw, err := json.Marshal(base)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func fastPolicy() clob.RetryPolicy {
	return clob.RetryPolicy{
		Attempts:       3,
		Delays:         []time.Duration{time.Millisecond, 2 * time.Millisecond},
		AttemptTimeout: time.Second,
	}
}

func TestSubmit_RequiresSession(t *testing.T) {
	svc := &Submission{}
	_, fail := svc.Submit(context.Background(), nil, SubmitParams{Order: orderPayload(t, nil)})
	if fail == nil || fail.Code != CodeSessionRequired {
		t.Fatalf("fail=%+v want SESSION_REQUIRED", fail)
	}

	expired := activeSession()
	expired.CreatedAt = time.Now().UTC().Add(-13 * time.Hour)
	_, fail = svc.Submit(context.Background(), expired, SubmitParams{Order: orderPayload(t, nil)})
	if fail == nil || fail.Code != CodeSessionRequired {
		t.Fatalf("fail=%+v want SESSION_REQUIRED for expired session", fail)
	}
}

func TestSubmit_SellNeverForwarded(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()
	svc := &Submission{Exchange: clob.NewClient(srv.Client(), srv.URL), Policy: fastPolicy()}

	cases := []SubmitParams{
		{Order: orderPayload(t, nil), RootSide: "SELL"},
		{Order: orderPayload(t, map[string]any{"side": "SELL"})},
		{Order: orderPayload(t, map[string]any{"side": 1})},
		{Order: orderPayload(t, map[string]any{"makerAmount": "-4000000"})},
		{Order: orderPayload(t, map[string]any{"size": "-3"})},
	}
	for i, params := range cases {
		_, fail := svc.Submit(context.Background(), activeSession(), params)
		if fail == nil || fail.Code != CodeSellDisabled {
			t.Fatalf("case %d: fail=%+v want SELL_DISABLED", i, fail)
		}
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("upstream called %d times for sell payloads", calls)
	}
}

func TestSubmit_ExpirationPolicy(t *testing.T) {
	svc := &Submission{}
	sess := activeSession()

	_, fail := svc.Submit(context.Background(), sess, SubmitParams{
		Order:     orderPayload(t, map[string]any{"expiration": "1700000000"}),
		OrderType: "FOK",
	})
	if fail == nil || fail.Code != CodeExpirationPolicy {
		t.Fatalf("fail=%+v want EXPIRATION_POLICY for non-GTD expiration", fail)
	}

	soon := strconv.FormatInt(time.Now().Add(10*time.Second).Unix(), 10)
	_, fail = svc.Submit(context.Background(), sess, SubmitParams{
		Order:     orderPayload(t, map[string]any{"expiration": soon}),
		OrderType: "GTD",
	})
	if fail == nil || fail.Code != CodeExpirationPolicy {
		t.Fatalf("fail=%+v want EXPIRATION_POLICY for near GTD expiration", fail)
	}
}

func TestSubmit_GTDWithLeadAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"orderID":"o-9"}`))
	}))
	defer srv.Close()
	svc := &Submission{Exchange: clob.NewClient(srv.Client(), srv.URL), Policy: fastPolicy()}

	later := strconv.FormatInt(time.Now().Add(10*time.Minute).Unix(), 10)
	result, fail := svc.Submit(context.Background(), activeSession(), SubmitParams{
		Order:     orderPayload(t, map[string]any{"expiration": later}),
		OrderType: "GTD",
	})
	if fail != nil {
		t.Fatalf("submit failed: %+v", fail)
	}
	if result.OrderID != "o-9" {
		t.Fatalf("orderID=%s", result.OrderID)
	}
}

func TestSubmit_FunderMismatch(t *testing.T) {
	svc := &Submission{}
	_, fail := svc.Submit(context.Background(), activeSession(), SubmitParams{
		Order:         orderPayload(t, nil),
		FunderAddress: "0x2222222222222222222222222222222222222222",
	})
	if fail == nil || fail.Code != CodeFunderMismatch {
		t.Fatalf("fail=%+v want FUNDER_MISMATCH", fail)
	}
}

func TestSubmit_FunderMatchCaseInsensitive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()
	svc := &Submission{Exchange: clob.NewClient(srv.Client(), srv.URL), Policy: fastPolicy()}

	_, fail := svc.Submit(context.Background(), activeSession(), SubmitParams{
		Order:         orderPayload(t, nil),
		FunderAddress: "0X1111111111111111111111111111111111111111",
	})
	if fail != nil {
		t.Fatalf("submit failed: %+v", fail)
	}
}

func TestSubmit_UnsafeSaltRejected(t *testing.T) {
	svc := &Submission{}
	_, fail := svc.Submit(context.Background(), activeSession(), SubmitParams{
		Order: orderPayload(t, map[string]any{"salt": "18446744073709551616"}),
	})
	if fail == nil || fail.Code != CodeInvalidOrder {
		t.Fatalf("fail=%+v want INVALID_ORDER for unsafe salt", fail)
	}
}

func TestSubmit_TransientUpstreamRetriedToSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"orderID":"o-3"}`))
	}))
	defer srv.Close()
	svc := &Submission{Exchange: clob.NewClient(srv.Client(), srv.URL), Policy: fastPolicy()}

	result, fail := svc.Submit(context.Background(), activeSession(), SubmitParams{Order: orderPayload(t, nil)})
	if fail != nil {
		t.Fatalf("submit failed: %+v", fail)
	}
	if result.OrderID != "o-3" {
		t.Fatalf("orderID=%s", result.OrderID)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls=%d want 3", calls)
	}
}

func TestSubmit_PersistentUpstreamFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	svc := &Submission{Exchange: clob.NewClient(srv.Client(), srv.URL), Policy: fastPolicy()}

	_, fail := svc.Submit(context.Background(), activeSession(), SubmitParams{Order: orderPayload(t, nil)})
	if fail == nil || fail.Code != CodeUpstreamUnavailable {
		t.Fatalf("fail=%+v want UPSTREAM_UNAVAILABLE", fail)
	}
	if fail.Status != http.StatusBadGateway {
		t.Fatalf("status=%d want 502", fail.Status)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls=%d want exactly 3 attempts", calls)
	}
}

func TestSubmit_UpstreamRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":false,"errorMsg":"not enough balance"}`))
	}))
	defer srv.Close()
	svc := &Submission{Exchange: clob.NewClient(srv.Client(), srv.URL), Policy: fastPolicy()}

	_, fail := svc.Submit(context.Background(), activeSession(), SubmitParams{Order: orderPayload(t, nil)})
	if fail == nil || fail.Code != CodeUpstreamRejected {
		t.Fatalf("fail=%+v want UPSTREAM_REJECTED", fail)
	}
	if fail.Status != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", fail.Status)
	}
}
