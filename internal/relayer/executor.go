package relayer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"polytrade/internal/chain"
)

// Executor wraps the relay client with session management. Relay sessions are
// cached per (chainId, txType, address) and reused until they age out; a
// submission that fails with a session error forces one refresh and one retry.
type Executor struct {
	Client     *Client
	Logger     *zap.Logger
	ChainID    int64
	TxType     string
	SessionTTL time.Duration

	DeployPollTick time.Duration
	DeployWaitMax  time.Duration

	mu       sync.Mutex
	sessions map[string]cachedSession
}

type cachedSession struct {
	token     string
	createdAt time.Time
}

const defaultSessionTTL = 10 * time.Minute

func (e *Executor) sessionKey(address string) string {
	return fmt.Sprintf("%d|%s|%s", e.ChainID, e.TxType, strings.ToLower(address))
}

func (e *Executor) ttl() time.Duration {
	if e.SessionTTL > 0 {
		return e.SessionTTL
	}
	return defaultSessionTTL
}

// session returns a cached relay session token, creating one when absent or
// stale. Pass force to discard whatever is cached first.
func (e *Executor) session(ctx context.Context, address string, force bool) (string, error) {
	key := e.sessionKey(address)

	e.mu.Lock()
	if e.sessions == nil {
		e.sessions = make(map[string]cachedSession)
	}
	if !force {
		if cached, ok := e.sessions[key]; ok && time.Since(cached.createdAt) < e.ttl() {
			e.mu.Unlock()
			return cached.token, nil
		}
	}
	delete(e.sessions, key)
	e.mu.Unlock()

	token, err := e.Client.CreateSession(ctx, e.ChainID, e.TxType, address)
	if err != nil {
		return "", fmt.Errorf("relay session init failed: %w", err)
	}

	e.mu.Lock()
	e.sessions[key] = cachedSession{token: token, createdAt: time.Now()}
	e.mu.Unlock()

	if e.Logger != nil {
		e.Logger.Info("relay session established",
			zap.String("address", strings.ToLower(address)),
			zap.String("tx_type", e.TxType))
	}
	return token, nil
}

// Sweep drops expired relay sessions from the cache.
func (e *Executor) Sweep() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, cached := range e.sessions {
		if time.Since(cached.createdAt) >= e.ttl() {
			delete(e.sessions, key)
		}
	}
}

func isSessionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if apiErr, ok := err.(*APIError); ok && apiErr.Status == 401 {
		return true
	}
	return strings.Contains(msg, "session not initialized") ||
		strings.Contains(msg, "session expired") ||
		strings.Contains(msg, "invalid session")
}

// Execute runs a batch of contract calls through the relay on behalf of the
// owner's proxy wallet and waits until the batch is mined. A stale relay
// session is refreshed and the batch retried exactly once.
func (e *Executor) Execute(ctx context.Context, owner, proxyWallet string, calls []chain.Call, metadata map[string]any) (TransactionState, error) {
	payloads := make([]CallPayload, 0, len(calls))
	for _, call := range calls {
		value := "0"
		if call.Value != nil {
			value = call.Value.String()
		}
		payloads = append(payloads, CallPayload{
			To:    call.To.Hex(),
			Value: value,
			Data:  EncodeCallData(call.Data),
		})
	}

	id, err := e.executeOnce(ctx, owner, proxyWallet, payloads, metadata, false)
	if isSessionError(err) {
		if e.Logger != nil {
			e.Logger.Warn("relay session rejected, refreshing once", zap.Error(err))
		}
		id, err = e.executeOnce(ctx, owner, proxyWallet, payloads, metadata, true)
	}
	if err != nil {
		return TransactionState{}, err
	}
	return e.Client.WaitTransaction(ctx, id, e.DeployPollTick, e.DeployWaitMax)
}

func (e *Executor) executeOnce(ctx context.Context, owner, proxyWallet string, payloads []CallPayload, metadata map[string]any, force bool) (string, error) {
	token, err := e.session(ctx, owner, force)
	if err != nil {
		return "", err
	}
	return e.Client.Execute(ctx, owner, proxyWallet, e.TxType, token, payloads, metadata)
}

// Deploy asks the relay to deploy the owner's proxy wallet and waits for the
// deployment to land. Same single-retry contract as Execute. When the caller
// supplies its own derived address, the relay's derivation must agree before
// anything is spent; a relay that cannot answer is tolerated and checked
// implicitly by the deploy itself.
func (e *Executor) Deploy(ctx context.Context, owner, expected string) (TransactionState, error) {
	if expected != "" {
		relayAddr, err := e.Client.ExpectedSafeAddress(ctx, owner)
		if err == nil && !strings.EqualFold(relayAddr, expected) {
			return TransactionState{}, fmt.Errorf("relay derives safe %s for %s, expected %s", relayAddr, owner, expected)
		}
	}

	id, err := e.deployOnce(ctx, owner, false)
	if isSessionError(err) {
		if e.Logger != nil {
			e.Logger.Warn("relay session rejected, refreshing once", zap.Error(err))
		}
		id, err = e.deployOnce(ctx, owner, true)
	}
	if err != nil {
		return TransactionState{}, err
	}
	return e.Client.WaitTransaction(ctx, id, e.DeployPollTick, e.DeployWaitMax)
}

func (e *Executor) deployOnce(ctx context.Context, owner string, force bool) (string, error) {
	token, err := e.session(ctx, owner, force)
	if err != nil {
		return "", err
	}
	return e.Client.Deploy(ctx, owner, token)
}
