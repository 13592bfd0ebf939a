package session

import (
	"errors"
	"time"
)

// MaxAge caps how long a Level-2 credential set may be reused. Expired
// sessions are destroyed, never silently reused.
const MaxAge = 12 * time.Hour

var (
	ErrNotConfigured  = errors.New("session store not configured")
	ErrNoSession      = errors.New("no active session")
	ErrInvalidPayload = errors.New("invalid auth payload")
	ErrInitFailed     = errors.New("session initialization failed")
)

// Session is a server-owned Level-2 exchange credential set bound to a wallet
// address.
type Session struct {
	APIKey        string    `json:"apiKey"`
	Secret        string    `json:"secret"`
	Passphrase    string    `json:"passphrase"`
	WalletAddress string    `json:"walletAddress"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return now.Sub(s.CreatedAt) > MaxAge
}
