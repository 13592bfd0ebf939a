package session

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"polytrade/internal/clob"
)

var (
	addressPattern   = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	signaturePattern = regexp.MustCompile(`^0x[0-9a-fA-F]{130}$`)
	decimalPattern   = regexp.MustCompile(`^[0-9]+$`)
)

// Proof is a Level-1 wallet-signature proof presented by a client.
type Proof struct {
	Address   string
	Signature string
	Timestamp string
	Nonce     string
}

func (p Proof) validate() error {
	if !addressPattern.MatchString(strings.TrimSpace(p.Address)) {
		return fmt.Errorf("%w: bad address", ErrInvalidPayload)
	}
	if !signaturePattern.MatchString(strings.TrimSpace(p.Signature)) {
		return fmt.Errorf("%w: bad signature", ErrInvalidPayload)
	}
	if !decimalPattern.MatchString(strings.TrimSpace(p.Timestamp)) {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidPayload)
	}
	if !decimalPattern.MatchString(strings.TrimSpace(p.Nonce)) {
		return fmt.Errorf("%w: bad nonce", ErrInvalidPayload)
	}
	return nil
}

// CredentialSource is the slice of the exchange client the authenticator
// needs: derive existing credentials or create new ones from an L1 proof.
type CredentialSource interface {
	DeriveAPIKey(ctx context.Context, l1 clob.L1Headers) (clob.APICreds, error)
	CreateAPIKey(ctx context.Context, l1 clob.L1Headers) (clob.APICreds, error)
}

type Authenticator struct {
	Exchange CredentialSource
	Logger   *zap.Logger
}

// Init produces or reuses a Level-2 session for the presented proof.
// The caller supplies the current session (nil when absent); the returned
// bool reports whether the existing session was reused with no upstream call.
// A current session bound to a different wallet is never reused: the caller
// must destroy it before persisting the replacement.
func (a *Authenticator) Init(ctx context.Context, current *Session, proof Proof) (*Session, bool, error) {
	if err := proof.validate(); err != nil {
		return nil, false, err
	}
	address := strings.TrimSpace(proof.Address)
	now := time.Now().UTC()

	if current != nil {
		if !strings.EqualFold(current.WalletAddress, address) {
			// Credential leakage across accounts: drop it.
			current = nil
		} else if current.Expired(now) {
			current = nil
		} else {
			return current, true, nil
		}
	}

	l1 := clob.L1Headers{
		Address:   address,
		Signature: strings.TrimSpace(proof.Signature),
		Timestamp: strings.TrimSpace(proof.Timestamp),
		Nonce:     strings.TrimSpace(proof.Nonce),
	}

	creds, err := a.Exchange.DeriveAPIKey(ctx, l1)
	if err != nil {
		if a.Logger != nil {
			a.Logger.Debug("derive api key failed, creating", zap.Error(err))
		}
		creds, err = a.Exchange.CreateAPIKey(ctx, l1)
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInitFailed, err)
	}

	return &Session{
		APIKey:        creds.APIKey,
		Secret:        creds.Secret,
		Passphrase:    creds.Passphrase,
		WalletAddress: address,
		CreatedAt:     now,
	}, false, nil
}
