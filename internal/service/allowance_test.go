package service

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"polytrade/internal/approvals"
	"polytrade/internal/chain"
	"polytrade/internal/signer"
)

// stubBackend reports every approval missing and fails each direct
// transaction with sendErr.
type stubBackend struct {
	sendErr error
	sends   int
}

func (s *stubBackend) CTFExchange() common.Address {
	return common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")
}

func (s *stubBackend) NegRiskExchange() common.Address {
	return common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a")
}

func (s *stubBackend) CollateralAllowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (s *stubBackend) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	return false, nil
}

func (s *stubBackend) ApproveCollateralCall() (chain.Call, error) {
	return chain.Call{Data: []byte{0x01}}, nil
}

func (s *stubBackend) ApproveOperatorCall(operator common.Address) (chain.Call, error) {
	return chain.Call{To: operator, Data: []byte{0x02}}, nil
}

func (s *stubBackend) Send(ctx context.Context, call chain.Call) (*types.Transaction, error) {
	s.sends++
	return nil, s.sendErr
}

func (s *stubBackend) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func TestEnsure_DeclinedSignatureIsCancellation(t *testing.T) {
	backend := &stubBackend{sendErr: signer.ErrRejected}
	a := &Allowance{Engine: &approvals.Engine{Chain: backend}}

	_, fail := a.Ensure(context.Background(), activeSession(), false)
	if fail == nil || fail.Code != CodeUserRejected {
		t.Fatalf("fail=%+v want USER_REJECTED", fail)
	}
	if fail.Status != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", fail.Status)
	}
	if backend.sends != 1 {
		t.Fatalf("sends=%d, a declined signature must never be retried", backend.sends)
	}
}

func TestEnsure_StepFailureCarriesStep(t *testing.T) {
	backend := &stubBackend{sendErr: errors.New("nonce too low")}
	a := &Allowance{Engine: &approvals.Engine{Chain: backend}}

	_, fail := a.Ensure(context.Background(), activeSession(), false)
	if fail == nil || fail.Code != CodeApprovalStepFailed {
		t.Fatalf("fail=%+v want APPROVAL_STEP_FAILED", fail)
	}
	details, ok := fail.Details.(map[string]any)
	if !ok || details["step"] != string(approvals.StepCollateral) {
		t.Fatalf("details=%+v want first failed step", fail.Details)
	}
}

func TestEnsure_RequiresSession(t *testing.T) {
	a := &Allowance{Engine: &approvals.Engine{Chain: &stubBackend{}}}
	_, fail := a.Ensure(context.Background(), nil, false)
	if fail == nil || fail.Code != CodeSessionRequired {
		t.Fatalf("fail=%+v want SESSION_REQUIRED", fail)
	}
}
