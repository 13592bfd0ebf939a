package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func roundTrip(t *testing.T, store *CookieStore, sess *Session) *Session {
	t.Helper()
	rec := httptest.NewRecorder()
	if err := store.Set(rec, sess); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, cookie := range rec.Result().Cookies() {
		req.AddCookie(cookie)
	}
	got, err := store.Get(req)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	return got
}

func TestCookieStore_RoundTrip(t *testing.T) {
	store := NewCookieStore("test_session", "0123456789abcdef0123456789abcdef", false, 0)
	sess := &Session{
		APIKey:        "key",
		Secret:        "secret",
		Passphrase:    "pass",
		WalletAddress: "0x1111111111111111111111111111111111111111",
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
	got := roundTrip(t, store, sess)
	if got.APIKey != sess.APIKey || got.Secret != sess.Secret || got.WalletAddress != sess.WalletAddress {
		t.Fatalf("got=%+v want=%+v", got, sess)
	}
}

func TestCookieStore_TamperedValueRejected(t *testing.T) {
	store := NewCookieStore("test_session", "0123456789abcdef0123456789abcdef", false, 0)
	rec := httptest.NewRecorder()
	if err := store.Set(rec, &Session{APIKey: "key"}); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	cookie := rec.Result().Cookies()[0]
	cookie.Value = cookie.Value[:len(cookie.Value)-2] + "xx"

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	if _, err := store.Get(req); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err=%v want ErrNoSession for tampered cookie", err)
	}
}

func TestCookieStore_DifferentKeyCannotRead(t *testing.T) {
	a := NewCookieStore("test_session", "0123456789abcdef0123456789abcdef", false, 0)
	b := NewCookieStore("test_session", "fedcba9876543210fedcba9876543210", false, 0)

	rec := httptest.NewRecorder()
	if err := a.Set(rec, &Session{APIKey: "key"}); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, cookie := range rec.Result().Cookies() {
		req.AddCookie(cookie)
	}
	if _, err := b.Get(req); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err=%v want ErrNoSession under wrong key", err)
	}
}

func TestCookieStore_ConfiguredTTLEnforced(t *testing.T) {
	store := NewCookieStore("test_session", "0123456789abcdef0123456789abcdef", false, time.Hour)
	rec := httptest.NewRecorder()
	old := &Session{
		APIKey:    "key",
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
	}
	if err := store.Set(rec, old); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, cookie := range rec.Result().Cookies() {
		req.AddCookie(cookie)
	}
	if _, err := store.Get(req); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err=%v want ErrNoSession past the configured TTL", err)
	}
}

func TestCookieStore_TTLDefaultsToCap(t *testing.T) {
	if got := NewCookieStore("test_session", "0123456789abcdef0123456789abcdef", false, 0).TTL(); got != MaxAge {
		t.Fatalf("ttl=%s want %s", got, MaxAge)
	}
	if got := NewCookieStore("test_session", "0123456789abcdef0123456789abcdef", false, 48*time.Hour).TTL(); got != MaxAge {
		t.Fatalf("ttl=%s, lifetimes beyond the cap must clamp to %s", got, MaxAge)
	}
}

func TestCookieStore_Unconfigured(t *testing.T) {
	store := NewCookieStore("test_session", "", false, 0)
	if store.Configured() {
		t.Fatal("store without key reports configured")
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := store.Get(req); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err=%v want ErrNotConfigured", err)
	}
}
