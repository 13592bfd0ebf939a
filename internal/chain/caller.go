package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"polytrade/internal/config"
)

// Caller reads and writes the handful of contracts the execution core touches:
// the collateral token, the conditional tokens contract, and the two exchange
// operators. The private key is optional; without it only reads work.
type Caller struct {
	client *ethclient.Client
	key    *ecdsa.PrivateKey

	collateral        common.Address
	conditionalTokens common.Address
	ctfExchange       common.Address
	negRiskExchange   common.Address

	receiptPoll    time.Duration
	receiptTimeout time.Duration
}

func NewCaller(cfg config.ChainConfig) (*Caller, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	c := &Caller{
		client:            client,
		collateral:        common.HexToAddress(cfg.CollateralToken),
		conditionalTokens: common.HexToAddress(cfg.ConditionalTokens),
		ctfExchange:       common.HexToAddress(cfg.CTFExchange),
		negRiskExchange:   common.HexToAddress(cfg.NegRiskExchange),
		receiptPoll:       cfg.ReceiptPollInterval,
		receiptTimeout:    cfg.ReceiptTimeout,
	}
	if c.receiptPoll <= 0 {
		c.receiptPoll = 2 * time.Second
	}
	if c.receiptTimeout <= 0 {
		c.receiptTimeout = 120 * time.Second
	}
	return c, nil
}

func NewCallerWithKey(cfg config.ChainConfig, privateKeyHex string) (*Caller, error) {
	c, err := NewCaller(cfg)
	if err != nil {
		return nil, err
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	c.key = key
	return c, nil
}

// Signer reports whether a signing key is configured; without one only reads
// and call packing work.
func (c *Caller) Signer() bool {
	return c.key != nil
}

func (c *Caller) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

func (c *Caller) CTFExchange() common.Address     { return c.ctfExchange }
func (c *Caller) NegRiskExchange() common.Address { return c.negRiskExchange }

// IsContract reports whether code is deployed at addr.
func (c *Caller) IsContract(ctx context.Context, addr common.Address) (bool, error) {
	code, err := c.client.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, fmt.Errorf("code lookup failed: %w", err)
	}
	return len(code) > 0, nil
}

// CollateralAllowance returns the collateral-token allowance granted by owner
// to the conditional tokens contract.
func (c *Caller) CollateralAllowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	parsed := erc20ABI()
	data, err := parsed.Pack("allowance", owner, c.conditionalTokens)
	if err != nil {
		return nil, err
	}
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.collateral, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	var allowance *big.Int
	if err := parsed.UnpackIntoInterface(&allowance, "allowance", result); err != nil {
		return nil, err
	}
	return allowance, nil
}

// IsApprovedForAll checks the ERC-1155 operator approval on the conditional
// tokens contract.
func (c *Caller) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	parsed := conditionalTokensABI()
	data, err := parsed.Pack("isApprovedForAll", owner, operator)
	if err != nil {
		return false, err
	}
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.conditionalTokens, Data: data}, nil)
	if err != nil {
		return false, err
	}
	var approved bool
	if err := parsed.UnpackIntoInterface(&approved, "isApprovedForAll", result); err != nil {
		return false, err
	}
	return approved, nil
}

// ApproveCollateralCall packs an unbounded approve of the collateral token to
// the conditional tokens contract, for relayed execution.
func (c *Caller) ApproveCollateralCall() (Call, error) {
	data, err := erc20ABI().Pack("approve", c.conditionalTokens, maxUint256())
	if err != nil {
		return Call{}, err
	}
	return Call{To: c.collateral, Data: data}, nil
}

// ApproveOperatorCall packs a setApprovalForAll for an exchange operator, for
// relayed execution.
func (c *Caller) ApproveOperatorCall(operator common.Address) (Call, error) {
	data, err := conditionalTokensABI().Pack("setApprovalForAll", operator, true)
	if err != nil {
		return Call{}, err
	}
	return Call{To: c.conditionalTokens, Data: data}, nil
}

// Call is a single encoded contract call, submittable directly or through the
// relay service.
type Call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Send signs and submits a call as a direct transaction from the configured
// key, returning once it is broadcast.
func (c *Caller) Send(ctx context.Context, call Call) (*types.Transaction, error) {
	if c.key == nil {
		return nil, fmt.Errorf("no signing key configured")
	}
	from := crypto.PubkeyToAddress(c.key.PublicKey)
	chainID, err := c.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	nonce, err := c.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	value := call.Value
	if value == nil {
		value = big.NewInt(0)
	}
	tx := types.NewTransaction(nonce, call.To, value, uint64(200000), gasPrice, call.Data)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}
	return signedTx, nil
}

// WaitMined polls for a receipt and fails on a reverted transaction.
func (c *Caller) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()
	for {
		receipt, err := c.client.TransactionReceipt(waitCtx, txHash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return nil, fmt.Errorf("transaction reverted: %s", txHash.Hex())
			}
			return receipt, nil
		}
		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("timeout waiting for receipt: %s", txHash.Hex())
		case <-time.After(c.receiptPoll):
		}
	}
}

func maxUint256() *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
}
