package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"polytrade/internal/clob"
)

type fakeCredSource struct {
	deriveCalls int
	createCalls int
	deriveErr   error
	createErr   error
}

func (f *fakeCredSource) DeriveAPIKey(ctx context.Context, l1 clob.L1Headers) (clob.APICreds, error) {
	f.deriveCalls++
	if f.deriveErr != nil {
		return clob.APICreds{}, f.deriveErr
	}
	return clob.APICreds{APIKey: "key-derived", Secret: "sec", Passphrase: "pass"}, nil
}

func (f *fakeCredSource) CreateAPIKey(ctx context.Context, l1 clob.L1Headers) (clob.APICreds, error) {
	f.createCalls++
	if f.createErr != nil {
		return clob.APICreds{}, f.createErr
	}
	return clob.APICreds{APIKey: "key-created", Secret: "sec", Passphrase: "pass"}, nil
}

func validProof() Proof {
	return Proof{
		Address:   "0xAbC1230000000000000000000000000000000001",
		Signature: "0x" + strings.Repeat("ab", 65),
		Timestamp: "1700000000",
		Nonce:     "0",
	}
}

func TestInit_InvalidPayload(t *testing.T) {
	src := &fakeCredSource{}
	auth := &Authenticator{Exchange: src}

	cases := []Proof{
		{Address: "nope", Signature: validProof().Signature, Timestamp: "1", Nonce: "0"},
		{Address: validProof().Address, Signature: "0x1234", Timestamp: "1", Nonce: "0"},
		{Address: validProof().Address, Signature: validProof().Signature, Timestamp: "-1", Nonce: "0"},
		{Address: validProof().Address, Signature: validProof().Signature, Timestamp: "1", Nonce: "abc"},
	}
	for i, proof := range cases {
		_, _, err := auth.Init(context.Background(), nil, proof)
		if !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("case %d: err=%v want ErrInvalidPayload", i, err)
		}
	}
	if src.deriveCalls+src.createCalls != 0 {
		t.Fatalf("upstream called %d times for invalid payloads", src.deriveCalls+src.createCalls)
	}
}

func TestInit_DeriveFirstThenCreate(t *testing.T) {
	src := &fakeCredSource{deriveErr: fmt.Errorf("unknown key")}
	auth := &Authenticator{Exchange: src}

	sess, reused, err := auth.Init(context.Background(), nil, validProof())
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if reused {
		t.Fatal("fresh session reported as reused")
	}
	if sess.APIKey != "key-created" {
		t.Fatalf("apiKey=%s want created credentials", sess.APIKey)
	}
	if src.deriveCalls != 1 || src.createCalls != 1 {
		t.Fatalf("derive=%d create=%d want 1/1", src.deriveCalls, src.createCalls)
	}
}

func TestInit_BothFail(t *testing.T) {
	src := &fakeCredSource{deriveErr: fmt.Errorf("no"), createErr: fmt.Errorf("also no")}
	auth := &Authenticator{Exchange: src}

	_, _, err := auth.Init(context.Background(), nil, validProof())
	if !errors.Is(err, ErrInitFailed) {
		t.Fatalf("err=%v want ErrInitFailed", err)
	}
}

func TestInit_ReuseIsIdempotent(t *testing.T) {
	src := &fakeCredSource{}
	auth := &Authenticator{Exchange: src}
	proof := validProof()

	first, _, err := auth.Init(context.Background(), nil, proof)
	if err != nil {
		t.Fatalf("first init failed: %v", err)
	}
	second, reused, err := auth.Init(context.Background(), first, proof)
	if err != nil {
		t.Fatalf("second init failed: %v", err)
	}
	if !reused {
		t.Fatal("matching unexpired session not reused")
	}
	if second != first {
		t.Fatal("reuse returned a different session")
	}
	if src.deriveCalls != 1 {
		t.Fatalf("derive called %d times, second init must not hit upstream", src.deriveCalls)
	}
}

func TestInit_AddressMismatchDropsSession(t *testing.T) {
	src := &fakeCredSource{}
	auth := &Authenticator{Exchange: src}

	current := &Session{
		APIKey:        "old",
		WalletAddress: "0x9999999999999999999999999999999999999999",
		CreatedAt:     time.Now().UTC(),
	}
	sess, reused, err := auth.Init(context.Background(), current, validProof())
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if reused {
		t.Fatal("mismatched session must not be reused")
	}
	if sess.APIKey == "old" {
		t.Fatal("credentials leaked across accounts")
	}
}

func TestInit_ExpiredSessionReplaced(t *testing.T) {
	src := &fakeCredSource{}
	auth := &Authenticator{Exchange: src}
	proof := validProof()

	current := &Session{
		APIKey:        "old",
		WalletAddress: proof.Address,
		CreatedAt:     time.Now().UTC().Add(-13 * time.Hour),
	}
	sess, reused, err := auth.Init(context.Background(), current, proof)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if reused {
		t.Fatal("expired session must not be reused")
	}
	if sess.APIKey == "old" {
		t.Fatal("expired credentials reused")
	}
}
