package clob

import (
	"errors"
	"strings"
	"testing"
)

func TestLooksLikeHTML(t *testing.T) {
	cases := []struct {
		contentType string
		body        string
		want        bool
	}{
		{"application/json", `{"ok":true}`, false},
		{"text/html; charset=utf-8", "anything", true},
		{"application/json", "  <html><body>blocked</body></html>", true},
		{"application/json", `{"note":"cf-ray trace id"}`, true},
		{"application/octet-stream", "challenge-platform script", true},
	}
	for i, c := range cases {
		if got := looksLikeHTML(c.contentType, []byte(c.body)); got != c.want {
			t.Fatalf("case %d: got=%v want=%v", i, got, c.want)
		}
	}
}

func TestClassifyBody_SuccessFalseIsRejection(t *testing.T) {
	_, err := classifyBody([]byte(`{"success":false,"errorMsg":"market closed"}`))
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("err=%v want RejectionError", err)
	}
	if rej.Message != "market closed" {
		t.Fatalf("message=%q", rej.Message)
	}
}

func TestClassifyBody_SuccessTruePassesThrough(t *testing.T) {
	raw, err := classifyBody([]byte(`{"success":true,"orderID":"abc"}`))
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if !strings.Contains(string(raw), "abc") {
		t.Fatalf("raw=%s", raw)
	}
}

func TestClassifyBody_MalformedJSON(t *testing.T) {
	if _, err := classifyBody([]byte("not json")); err == nil {
		t.Fatal("malformed body accepted")
	}
}

func TestBodySnippet_Bounded(t *testing.T) {
	long := strings.Repeat("x", 2*snippetLimit)
	if got := bodySnippet([]byte(long)); len(got) != snippetLimit {
		t.Fatalf("snippet length=%d want=%d", len(got), snippetLimit)
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.Attempts != 3 {
		t.Fatalf("attempts=%d want 3", p.Attempts)
	}
	first := RetryPolicy{Delays: p.Delays}.Backoff(0)
	second := RetryPolicy{Delays: p.Delays}.Backoff(1)
	beyond := RetryPolicy{Delays: p.Delays}.Backoff(5)
	if first != p.Delays[0] || second != p.Delays[1] || beyond != p.Delays[1] {
		t.Fatalf("backoffs %v %v %v", first, second, beyond)
	}
}

func TestRetryPolicy_RetryableStatuses(t *testing.T) {
	p := DefaultRetryPolicy()
	for _, code := range []int{408, 429, 500, 502, 503, 504, 520, 522, 523, 524} {
		if !p.Retryable(code) {
			t.Fatalf("status %d should be retryable", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		if p.Retryable(code) {
			t.Fatalf("status %d should not be retryable", code)
		}
	}
}
