package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// CookieStore persists sessions in a single AES-GCM encrypted httpOnly
// cookie. No other client-visible session token exists.
type CookieStore struct {
	name   string
	secure bool
	ttl    time.Duration
	gcm    cipher.AEAD
}

// NewCookieStore builds the store. A ttl of zero (or anything above MaxAge)
// falls back to the 12h cap.
func NewCookieStore(name, encryptionKey string, secure bool, ttl time.Duration) *CookieStore {
	if name == "" {
		name = "pt_session"
	}
	if ttl <= 0 || ttl > MaxAge {
		ttl = MaxAge
	}
	return &CookieStore{
		name:   name,
		secure: secure,
		ttl:    ttl,
		gcm:    newGCM(parseKey(encryptionKey)),
	}
}

// TTL is the effective session lifetime this store enforces.
func (s *CookieStore) TTL() time.Duration {
	return s.ttl
}

// Configured reports whether an encryption key was supplied. An unconfigured
// store is an operational error, not a user-fixable one.
func (s *CookieStore) Configured() bool {
	return s != nil && s.gcm != nil
}

func (s *CookieStore) Get(r *http.Request) (*Session, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	cookie, err := r.Cookie(s.name)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoSession
	}
	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil, ErrNoSession
	}
	nonceSize := s.gcm.NonceSize()
	if len(raw) <= nonceSize {
		return nil, ErrNoSession
	}
	plain, err := s.gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], []byte(s.name))
	if err != nil {
		return nil, ErrNoSession
	}
	var sess Session
	if err := json.Unmarshal(plain, &sess); err != nil {
		return nil, ErrNoSession
	}
	// The cookie MaxAge already ages sessions out of well-behaved clients;
	// this is the server-side check for replayed old cookies.
	if !sess.CreatedAt.IsZero() && time.Since(sess.CreatedAt) > s.ttl {
		return nil, ErrNoSession
	}
	return &sess, nil
}

func (s *CookieStore) Set(w http.ResponseWriter, sess *Session) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	plain, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	ct := s.gcm.Seal(nil, nonce, plain, []byte(s.name))
	value := base64.RawURLEncoding.EncodeToString(append(nonce, ct...))
	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(s.ttl / time.Second),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *CookieStore) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func parseKey(k string) []byte {
	k = strings.TrimSpace(k)
	if k == "" {
		return nil
	}
	// Prefer base64 key, fall back to raw bytes.
	keyBytes, err := base64.StdEncoding.DecodeString(k)
	if err != nil {
		keyBytes = []byte(k)
	}
	switch {
	case len(keyBytes) >= 32:
		return keyBytes[:32]
	case len(keyBytes) >= 24:
		return keyBytes[:24]
	case len(keyBytes) >= 16:
		return keyBytes[:16]
	}
	return nil
}

func newGCM(key []byte) cipher.AEAD {
	if len(key) == 0 {
		return nil
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil
	}
	return gcm
}
