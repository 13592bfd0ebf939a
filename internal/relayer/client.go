package relayer

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the relay service: safe-address derivation, deployment, and
// batched meta-transaction execution on behalf of a proxy wallet.
type Client struct {
	host       string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("relayer API error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host string) *Client {
	host = strings.TrimRight(host, "/")
	return &Client{host: host, httpClient: httpClient}
}

// CallPayload is the wire shape of one batched contract call.
type CallPayload struct {
	To    string `json:"to"`
	Value string `json:"value"`
	Data  string `json:"data"`
}

func EncodeCallData(data []byte) string {
	return "0x" + hex.EncodeToString(data)
}

type sessionResponse struct {
	Token string `json:"token"`
}

// CreateSession establishes a relay session for (chainId, txType, address).
func (c *Client) CreateSession(ctx context.Context, chainID int64, txType, address string) (string, error) {
	body := map[string]any{
		"address": address,
		"chainId": chainID,
		"type":    txType,
	}
	raw, err := c.doJSON(ctx, http.MethodPost, "/auth/session", body, "")
	if err != nil {
		return "", err
	}
	var resp sessionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("relayer session response missing token")
	}
	return resp.Token, nil
}

// ExpectedSafeAddress asks the relay service for the deterministic proxy
// wallet address of an owner.
func (c *Client) ExpectedSafeAddress(ctx context.Context, owner string) (string, error) {
	q := url.Values{}
	q.Set("address", owner)
	raw, err := c.doJSON(ctx, http.MethodGet, "/expected-safe?"+q.Encode(), nil, "")
	if err != nil {
		return "", err
	}
	var resp struct {
		Address string `json:"address"`
		Safe    string `json:"safe"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	addr := resp.Safe
	if addr == "" {
		addr = resp.Address
	}
	if addr == "" {
		return "", fmt.Errorf("relayer safe-address response empty")
	}
	return addr, nil
}

// Deploy asks the relay service to deploy the proxy wallet for owner and
// returns the relay transaction id.
func (c *Client) Deploy(ctx context.Context, owner, token string) (string, error) {
	raw, err := c.doJSON(ctx, http.MethodPost, "/deploy", map[string]any{"from": owner}, token)
	if err != nil {
		return "", err
	}
	return parseTransactionID(raw)
}

// Execute submits a batch of calls as one meta-transaction. The batch is
// atomic from the relay's perspective: callers must not assume partial
// application.
func (c *Client) Execute(ctx context.Context, owner, proxyWallet, txType, token string, calls []CallPayload, metadata map[string]any) (string, error) {
	body := map[string]any{
		"from":         owner,
		"proxyWallet":  proxyWallet,
		"type":         txType,
		"transactions": calls,
	}
	if len(metadata) > 0 {
		body["metadata"] = metadata
	}
	raw, err := c.doJSON(ctx, http.MethodPost, "/execute", body, token)
	if err != nil {
		return "", err
	}
	return parseTransactionID(raw)
}

// TransactionState is the relay's view of a submitted transaction.
type TransactionState struct {
	ID    string `json:"transactionID"`
	State string `json:"state"`
	Hash  string `json:"transactionHash"`
}

func (s TransactionState) Terminal() bool {
	switch strings.ToUpper(s.State) {
	case "STATE_EXECUTED", "STATE_MINED", "STATE_CONFIRMED", "STATE_FAILED":
		return true
	}
	return false
}

func (s TransactionState) Failed() bool {
	return strings.ToUpper(s.State) == "STATE_FAILED"
}

func (c *Client) GetTransaction(ctx context.Context, id string) (TransactionState, error) {
	q := url.Values{}
	q.Set("id", id)
	raw, err := c.doJSON(ctx, http.MethodGet, "/transaction?"+q.Encode(), nil, "")
	if err != nil {
		return TransactionState{}, err
	}
	// The endpoint answers with either a single object or a one-element list.
	var single TransactionState
	if err := json.Unmarshal(raw, &single); err == nil && single.State != "" {
		return single, nil
	}
	var list []TransactionState
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0], nil
	}
	return TransactionState{}, fmt.Errorf("unknown transaction state response")
}

// WaitTransaction polls until the relay transaction reaches a terminal state.
func (c *Client) WaitTransaction(ctx context.Context, id string, tick, max time.Duration) (TransactionState, error) {
	if tick <= 0 {
		tick = 2 * time.Second
	}
	waitCtx := ctx
	if max > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, max)
		defer cancel()
	}
	for {
		state, err := c.GetTransaction(waitCtx, id)
		if err == nil && state.Terminal() {
			if state.Failed() {
				return state, fmt.Errorf("relayed transaction failed: %s", id)
			}
			return state, nil
		}
		select {
		case <-waitCtx.Done():
			return TransactionState{}, fmt.Errorf("timeout waiting for relayed transaction %s", id)
		case <-time.After(tick):
		}
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, token string) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.host+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

func parseTransactionID(raw []byte) (string, error) {
	var resp struct {
		TransactionID string `json:"transactionID"`
		ID            string `json:"id"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	id := resp.TransactionID
	if id == "" {
		id = resp.ID
	}
	if id == "" {
		return "", fmt.Errorf("relayer response missing transaction id")
	}
	return id, nil
}
