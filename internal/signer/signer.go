package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrRejected is returned when the wallet owner declines a signature prompt.
// It is a cancellation, not a failure: callers must not retry.
var ErrRejected = errors.New("signature request rejected by user")

// Signer wraps a connected account's ability to produce signatures. Both
// methods block until the wallet responds; a prompt can hang indefinitely, so
// callers pass a context they control.
type Signer interface {
	Address() common.Address
	// SignDigest signs a 32-byte EIP-712 digest.
	SignDigest(ctx context.Context, digest common.Hash) ([]byte, error)
	// SignPersonal signs a message with the personal-message prefix.
	SignPersonal(ctx context.Context, msg []byte) ([]byte, error)
}

// Local signs with an in-process ECDSA key. Used by the trader CLI and tests;
// browser wallets satisfy the same interface through their own transports.
type Local struct {
	key *ecdsa.PrivateKey
}

func NewLocal(privateKeyHex string) (*Local, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if raw == "" {
		return nil, fmt.Errorf("empty private key")
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Local{key: key}, nil
}

func (s *Local) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

func (s *Local) SignDigest(ctx context.Context, digest common.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

func (s *Local) SignPersonal(ctx context.Context, msg []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest := accounts.TextHash(msg)
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	sig[64] += 27
	return sig, nil
}
