package approvals

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"polytrade/internal/chain"
)

type fakeBackend struct {
	allowance *big.Int
	ctfOk     bool
	negOk     bool
	// sendErrAt fails the nth Send (1-based); zero fails none.
	sendErrAt int
	sendErr   error
	sends     int
}

func (f *fakeBackend) CTFExchange() common.Address {
	return common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")
}

func (f *fakeBackend) NegRiskExchange() common.Address {
	return common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a")
}

func (f *fakeBackend) CollateralAllowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return f.allowance, nil
}

func (f *fakeBackend) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	if operator == f.CTFExchange() {
		return f.ctfOk, nil
	}
	return f.negOk, nil
}

func (f *fakeBackend) ApproveCollateralCall() (chain.Call, error) {
	return chain.Call{Data: []byte{0x01}}, nil
}

func (f *fakeBackend) ApproveOperatorCall(operator common.Address) (chain.Call, error) {
	return chain.Call{To: operator, Data: []byte{0x02}}, nil
}

func (f *fakeBackend) Send(ctx context.Context, call chain.Call) (*types.Transaction, error) {
	f.sends++
	if f.sendErrAt > 0 && f.sends == f.sendErrAt {
		return nil, f.sendErr
	}
	return types.NewTransaction(uint64(f.sends), call.To, big.NewInt(0), 21000, big.NewInt(1), call.Data), nil
}

func (f *fakeBackend) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func TestAllowanceOk(t *testing.T) {
	e := &Engine{}
	if e.allowanceOk(nil) {
		t.Fatal("nil allowance passed")
	}
	if e.allowanceOk(big.NewInt(0)) {
		t.Fatal("zero allowance passed")
	}
	if !e.allowanceOk(big.NewInt(1)) {
		t.Fatal("positive allowance rejected without a floor")
	}

	e.MinAllowance = big.NewInt(1000)
	if e.allowanceOk(big.NewInt(999)) {
		t.Fatal("allowance below floor passed")
	}
	if !e.allowanceOk(big.NewInt(1000)) {
		t.Fatal("allowance at floor rejected")
	}
	if !e.allowanceOk(big.NewInt(5000)) {
		t.Fatal("allowance above floor rejected")
	}
}

func TestStatusComplete(t *testing.T) {
	if (Status{}).Complete() {
		t.Fatal("empty status complete")
	}
	if (Status{UsdcAllowanceOk: true, CtfExchangeOk: true}).Complete() {
		t.Fatal("two of three complete")
	}
	if !(Status{UsdcAllowanceOk: true, CtfExchangeOk: true, NegRiskOk: true}).Complete() {
		t.Fatal("full status not complete")
	}
}

func TestStepError(t *testing.T) {
	cause := errors.New("nonce too low")
	err := &StepError{Step: StepCTFExchange, Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("cause not unwrapped")
	}
	want := "approval step ctf_exchange_operator failed: nonce too low"
	if err.Error() != want {
		t.Fatalf("message=%q want=%q", err.Error(), want)
	}
}

func TestEnsureDirect_SendsMissingStepsInOrder(t *testing.T) {
	backend := &fakeBackend{negOk: true}
	e := &Engine{Chain: backend}
	var transitions []string
	progress := func(step Step, state StepState, err error) {
		transitions = append(transitions, fmt.Sprintf("%s:%s", step, state))
	}

	status, err := e.EnsureDirect(context.Background(), common.HexToAddress("0x1"), progress)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if !status.Complete() {
		t.Fatalf("status=%+v not complete", status)
	}
	if backend.sends != 2 {
		t.Fatalf("sends=%d want 2 for two missing approvals", backend.sends)
	}
	want := []string{
		"collateral_allowance:pending",
		"ctf_exchange_operator:pending",
		"collateral_allowance:in_progress",
		"collateral_allowance:done",
		"ctf_exchange_operator:in_progress",
		"ctf_exchange_operator:done",
	}
	if len(transitions) != len(want) {
		t.Fatalf("transitions=%v want=%v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transition[%d]=%s want=%s", i, transitions[i], want[i])
		}
	}
}

func TestEnsureDirect_HaltsAtFirstFailure(t *testing.T) {
	backend := &fakeBackend{
		sendErrAt: 2,
		sendErr:   errors.New("nonce too low"),
	}
	e := &Engine{Chain: backend}

	status, err := e.EnsureDirect(context.Background(), common.HexToAddress("0x1"), nil)
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("err=%v want StepError", err)
	}
	if stepErr.Step != StepCTFExchange {
		t.Fatalf("failed step=%s want %s", stepErr.Step, StepCTFExchange)
	}
	if backend.sends != 2 {
		t.Fatalf("sends=%d, the sequence must stop at the failed step", backend.sends)
	}
	if !status.UsdcAllowanceOk {
		t.Fatal("completed step not reflected in status")
	}
	if status.NegRiskOk {
		t.Fatal("step after the failure reported done")
	}
}

func TestEnsureDirect_CompleteStatusSendsNothing(t *testing.T) {
	backend := &fakeBackend{allowance: big.NewInt(1), ctfOk: true, negOk: true}
	e := &Engine{Chain: backend}

	status, err := e.EnsureDirect(context.Background(), common.HexToAddress("0x1"), nil)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if !status.Complete() {
		t.Fatalf("status=%+v", status)
	}
	if backend.sends != 0 {
		t.Fatalf("sends=%d for an already approved wallet", backend.sends)
	}
}

func TestMarkDone(t *testing.T) {
	e := &Engine{}
	var status Status
	for _, step := range []Step{StepCollateral, StepCTFExchange, StepNegRisk} {
		e.markDone(&status, step)
	}
	if !status.Complete() {
		t.Fatalf("status=%+v after all steps marked done", status)
	}
}
