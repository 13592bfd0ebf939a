package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"polytrade/internal/approvals"
	"polytrade/internal/proxywallet"
	"polytrade/internal/session"
	"polytrade/internal/signer"
)

// allowanceTTL bounds how long a cached approval view is trusted. Clients can
// force a refresh after completing approvals on their side.
const allowanceTTL = 60 * time.Second

// AllowanceView is the server's picture of a funder's approvals.
type AllowanceView struct {
	Funder    string           `json:"funder"`
	Status    approvals.Status `json:"status"`
	CheckedAt time.Time        `json:"checkedAt"`
}

// Allowance serves approval status for the active session's funding address
// and lets clients invalidate the cached view after they complete an approval
// directly on-chain.
type Allowance struct {
	Engine   *approvals.Engine
	Resolver *proxywallet.Resolver
	Logger   *zap.Logger

	mu    sync.Mutex
	cache map[string]AllowanceView
}

// Get returns the approval view for the session's funder, from cache when
// fresh.
func (a *Allowance) Get(ctx context.Context, sess *session.Session, useProxy bool) (*AllowanceView, *Failure) {
	funder, fail := a.funderFor(ctx, sess, useProxy)
	if fail != nil {
		return nil, fail
	}
	key := strings.ToLower(funder.Hex())

	a.mu.Lock()
	if view, ok := a.cache[key]; ok && time.Since(view.CheckedAt) < allowanceTTL {
		a.mu.Unlock()
		return &view, nil
	}
	a.mu.Unlock()

	return a.refresh(ctx, funder)
}

// Refresh drops the cached view and recomputes from chain. Called after a
// client-side approval lands so the server never trades on a stale negative.
func (a *Allowance) Refresh(ctx context.Context, sess *session.Session, useProxy bool) (*AllowanceView, *Failure) {
	funder, fail := a.funderFor(ctx, sess, useProxy)
	if fail != nil {
		return nil, fail
	}
	return a.refresh(ctx, funder)
}

// Ensure establishes any missing approvals for the session's funder. Proxy
// funders get one relayed batch; direct mode sends sequential transactions
// from the server's signing key and stops at the first failure.
func (a *Allowance) Ensure(ctx context.Context, sess *session.Session, useProxy bool) (*AllowanceView, *Failure) {
	if sess == nil || sess.Expired(time.Now().UTC()) {
		return nil, failf(http.StatusUnauthorized, CodeSessionRequired, "no active session")
	}
	owner := common.HexToAddress(sess.WalletAddress)

	var (
		status approvals.Status
		err    error
	)
	if useProxy {
		status, err = a.Engine.EnsureRelayed(ctx, owner, a.logStep)
	} else {
		status, err = a.Engine.EnsureDirect(ctx, owner, a.logStep)
	}
	if err != nil {
		// A declined signature is a cancellation, not an approval failure,
		// and is never retried on the user's behalf.
		if errors.Is(err, signer.ErrRejected) {
			return nil, failf(http.StatusBadRequest, CodeUserRejected, "signature request declined")
		}
		var stepErr *approvals.StepError
		if errors.As(err, &stepErr) {
			fail := failf(http.StatusBadGateway, CodeApprovalStepFailed, "approval step %s failed", stepErr.Step)
			fail.Details = map[string]any{"step": string(stepErr.Step)}
			return nil, fail
		}
		return nil, failf(http.StatusBadGateway, CodeUpstreamUnavailable, "approval execution failed")
	}

	funder := owner
	if useProxy {
		wallet, rerr := a.Resolver.Resolve(ctx, owner)
		if rerr != nil {
			return nil, failf(http.StatusBadGateway, CodeUpstreamUnavailable, "proxy wallet resolution failed")
		}
		funder = wallet.Address
	}

	view := AllowanceView{
		Funder:    strings.ToLower(funder.Hex()),
		Status:    status,
		CheckedAt: time.Now().UTC(),
	}
	a.mu.Lock()
	if a.cache == nil {
		a.cache = make(map[string]AllowanceView)
	}
	a.cache[view.Funder] = view
	a.mu.Unlock()
	return &view, nil
}

func (a *Allowance) logStep(step approvals.Step, state approvals.StepState, err error) {
	if a.Logger == nil {
		return
	}
	if state == approvals.StateError {
		a.Logger.Warn("approval step failed", zap.String("step", string(step)), zap.Error(err))
		return
	}
	a.Logger.Info("approval step", zap.String("step", string(step)), zap.String("state", string(state)))
}

func (a *Allowance) refresh(ctx context.Context, funder common.Address) (*AllowanceView, *Failure) {
	status, err := a.Engine.GetStatus(ctx, funder)
	if err != nil {
		if a.Logger != nil {
			a.Logger.Error("approval status check failed", zap.String("funder", funder.Hex()), zap.Error(err))
		}
		return nil, failf(http.StatusBadGateway, CodeUpstreamUnavailable, "approval status unavailable")
	}
	view := AllowanceView{
		Funder:    strings.ToLower(funder.Hex()),
		Status:    status,
		CheckedAt: time.Now().UTC(),
	}
	a.mu.Lock()
	if a.cache == nil {
		a.cache = make(map[string]AllowanceView)
	}
	a.cache[view.Funder] = view
	a.mu.Unlock()
	return &view, nil
}

func (a *Allowance) funderFor(ctx context.Context, sess *session.Session, useProxy bool) (common.Address, *Failure) {
	if sess == nil || sess.Expired(time.Now().UTC()) {
		return common.Address{}, failf(http.StatusUnauthorized, CodeSessionRequired, "no active session")
	}
	owner := common.HexToAddress(sess.WalletAddress)
	if !useProxy {
		return owner, nil
	}
	wallet, err := a.Resolver.Resolve(ctx, owner)
	if err != nil {
		return common.Address{}, failf(http.StatusBadGateway, CodeUpstreamUnavailable, "proxy wallet resolution failed")
	}
	return wallet.Address, nil
}
