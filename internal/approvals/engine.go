package approvals

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"polytrade/internal/chain"
	"polytrade/internal/proxywallet"
)

// Status is the result of the three on-chain approval checks a funder needs
// before the exchange can move its money.
type Status struct {
	UsdcAllowanceOk bool `json:"usdcAllowanceOk"`
	CtfExchangeOk   bool `json:"ctfExchangeOk"`
	NegRiskOk       bool `json:"negRiskOk"`
}

func (s Status) Complete() bool {
	return s.UsdcAllowanceOk && s.CtfExchangeOk && s.NegRiskOk
}

// Step identifies one approval transaction in the fixed sequence.
type Step string

const (
	StepCollateral  Step = "collateral_allowance"
	StepCTFExchange Step = "ctf_exchange_operator"
	StepNegRisk     Step = "neg_risk_operator"
)

// StepState is reported to the progress callback as each step advances.
type StepState string

const (
	StatePending    StepState = "pending"
	StateInProgress StepState = "in_progress"
	StateDone       StepState = "done"
	StateError      StepState = "error"
)

// ProgressFunc observes step transitions. May be nil.
type ProgressFunc func(step Step, state StepState, err error)

// StepError wraps a failure of one approval step; steps after it never ran.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("approval step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// BatchExecutor runs calls through the relay on behalf of a proxy wallet.
type BatchExecutor interface {
	Execute(ctx context.Context, owner, proxyWallet string, calls []chain.Call, metadata map[string]any) error
}

// ContractBackend is the slice of the chain caller the engine needs: the
// three approval reads, call packing, and direct transaction submission.
type ContractBackend interface {
	CTFExchange() common.Address
	NegRiskExchange() common.Address
	CollateralAllowance(ctx context.Context, owner common.Address) (*big.Int, error)
	IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error)
	ApproveCollateralCall() (chain.Call, error)
	ApproveOperatorCall(operator common.Address) (chain.Call, error)
	Send(ctx context.Context, call chain.Call) (*types.Transaction, error)
	WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Engine inspects and establishes the exchange approvals for a funder. The
// funder is either the signing wallet itself (direct mode) or its proxy
// wallet (relayed mode).
type Engine struct {
	Chain    ContractBackend
	Resolver *proxywallet.Resolver
	Relay    BatchExecutor
	Logger   *zap.Logger

	// MinAllowance is the collateral allowance below which an approval is
	// considered missing. Zero means any positive allowance passes.
	MinAllowance *big.Int
}

// GetStatus runs the three read-only checks for a funder address.
func (e *Engine) GetStatus(ctx context.Context, funder common.Address) (Status, error) {
	var status Status

	allowance, err := e.Chain.CollateralAllowance(ctx, funder)
	if err != nil {
		return Status{}, fmt.Errorf("collateral allowance check failed: %w", err)
	}
	status.UsdcAllowanceOk = e.allowanceOk(allowance)

	status.CtfExchangeOk, err = e.Chain.IsApprovedForAll(ctx, funder, e.Chain.CTFExchange())
	if err != nil {
		return Status{}, fmt.Errorf("ctf exchange approval check failed: %w", err)
	}

	status.NegRiskOk, err = e.Chain.IsApprovedForAll(ctx, funder, e.Chain.NegRiskExchange())
	if err != nil {
		return Status{}, fmt.Errorf("neg risk approval check failed: %w", err)
	}

	return status, nil
}

func (e *Engine) allowanceOk(allowance *big.Int) bool {
	if allowance == nil || allowance.Sign() <= 0 {
		return false
	}
	if e.MinAllowance != nil && e.MinAllowance.Sign() > 0 {
		return allowance.Cmp(e.MinAllowance) >= 0
	}
	return true
}

// missingSteps maps a status onto the ordered list of approval calls to run.
func (e *Engine) missingSteps(status Status) ([]Step, []chain.Call, error) {
	var steps []Step
	var calls []chain.Call

	if !status.UsdcAllowanceOk {
		call, err := e.Chain.ApproveCollateralCall()
		if err != nil {
			return nil, nil, err
		}
		steps = append(steps, StepCollateral)
		calls = append(calls, call)
	}
	if !status.CtfExchangeOk {
		call, err := e.Chain.ApproveOperatorCall(e.Chain.CTFExchange())
		if err != nil {
			return nil, nil, err
		}
		steps = append(steps, StepCTFExchange)
		calls = append(calls, call)
	}
	if !status.NegRiskOk {
		call, err := e.Chain.ApproveOperatorCall(e.Chain.NegRiskExchange())
		if err != nil {
			return nil, nil, err
		}
		steps = append(steps, StepNegRisk)
		calls = append(calls, call)
	}
	return steps, calls, nil
}

// EnsureDirect checks and, where missing, establishes approvals with direct
// transactions from the signing wallet. Steps run strictly in order and the
// sequence stops at the first failure.
func (e *Engine) EnsureDirect(ctx context.Context, wallet common.Address, progress ProgressFunc) (Status, error) {
	status, err := e.GetStatus(ctx, wallet)
	if err != nil {
		return Status{}, err
	}
	if status.Complete() {
		return status, nil
	}

	steps, calls, err := e.missingSteps(status)
	if err != nil {
		return status, err
	}
	for _, step := range steps {
		notify(progress, step, StatePending, nil)
	}

	for i, step := range steps {
		notify(progress, step, StateInProgress, nil)
		tx, err := e.Chain.Send(ctx, calls[i])
		if err == nil {
			_, err = e.Chain.WaitMined(ctx, tx.Hash())
		}
		if err != nil {
			notify(progress, step, StateError, err)
			return status, &StepError{Step: step, Err: err}
		}
		e.markDone(&status, step)
		notify(progress, step, StateDone, nil)
		if e.Logger != nil {
			e.Logger.Info("approval established", zap.String("step", string(step)), zap.String("wallet", wallet.Hex()))
		}
	}
	return status, nil
}

// EnsureRelayed checks approvals for the owner's proxy wallet and establishes
// any missing ones as a single relayed batch. The proxy wallet is deployed
// first when absent.
func (e *Engine) EnsureRelayed(ctx context.Context, owner common.Address, progress ProgressFunc) (Status, error) {
	wallet, err := e.Resolver.EnsureDeployed(ctx, owner)
	if err != nil {
		return Status{}, err
	}

	status, err := e.GetStatus(ctx, wallet.Address)
	if err != nil {
		return Status{}, err
	}
	if status.Complete() {
		return status, nil
	}

	steps, calls, err := e.missingSteps(status)
	if err != nil {
		return status, err
	}
	for _, step := range steps {
		notify(progress, step, StatePending, nil)
	}
	for _, step := range steps {
		notify(progress, step, StateInProgress, nil)
	}

	metadata := map[string]any{"intent": "exchange_approvals"}
	if err := e.Relay.Execute(ctx, owner.Hex(), wallet.Address.Hex(), calls, metadata); err != nil {
		// The batch is atomic, so the first missing step carries the failure.
		notify(progress, steps[0], StateError, err)
		return status, &StepError{Step: steps[0], Err: err}
	}

	for _, step := range steps {
		e.markDone(&status, step)
		notify(progress, step, StateDone, nil)
	}
	if e.Logger != nil {
		e.Logger.Info("relayed approvals established",
			zap.String("owner", owner.Hex()),
			zap.String("proxy", wallet.Address.Hex()),
			zap.Int("steps", len(steps)))
	}
	return status, nil
}

func (e *Engine) markDone(status *Status, step Step) {
	switch step {
	case StepCollateral:
		status.UsdcAllowanceOk = true
	case StepCTFExchange:
		status.CtfExchangeOk = true
	case StepNegRisk:
		status.NegRiskOk = true
	}
}

func notify(progress ProgressFunc, step Step, state StepState, err error) {
	if progress != nil {
		progress(step, state, err)
	}
}
