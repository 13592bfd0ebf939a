package clob

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Exchange auth header names. HeaderPrefix marks the private namespace: the
// gateway attaches these server-side and never accepts them from clients.
const (
	HeaderPrefix     = "POLY"
	HeaderAddress    = "POLY_ADDRESS"
	HeaderSignature  = "POLY_SIGNATURE"
	HeaderTimestamp  = "POLY_TIMESTAMP"
	HeaderNonce      = "POLY_NONCE"
	HeaderAPIKey     = "POLY_API_KEY"
	HeaderPassphrase = "POLY_PASSPHRASE"
)

// L1Headers is the wallet-signature proof exchanged for API credentials.
type L1Headers struct {
	Address   string
	Signature string
	Timestamp string
	Nonce     string
}

func (h L1Headers) apply(req *http.Request) {
	req.Header.Set(HeaderAddress, h.Address)
	req.Header.Set(HeaderSignature, h.Signature)
	req.Header.Set(HeaderTimestamp, h.Timestamp)
	req.Header.Set(HeaderNonce, h.Nonce)
}

// APICreds is a Level-2 credential set minted by the exchange.
type APICreds struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

func (c APICreds) valid() bool {
	return c.APIKey != "" && c.Secret != "" && c.Passphrase != ""
}

// DeriveAPIKey recovers previously created credentials from an L1 proof.
func (c *Client) DeriveAPIKey(ctx context.Context, l1 L1Headers) (APICreds, error) {
	return c.authRequest(ctx, http.MethodGet, "/auth/derive-api-key", l1)
}

// CreateAPIKey mints a fresh credential set from an L1 proof.
func (c *Client) CreateAPIKey(ctx context.Context, l1 L1Headers) (APICreds, error) {
	return c.authRequest(ctx, http.MethodPost, "/auth/api-key", l1)
}

func (c *Client) authRequest(ctx context.Context, method, path string, l1 L1Headers) (APICreds, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.host+path, nil)
	if err != nil {
		return APICreds{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	l1.apply(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return APICreds{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return APICreds{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return APICreds{}, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	creds, err := parseAPICreds(body)
	if err != nil {
		return APICreds{}, err
	}
	return creds, nil
}

func parseAPICreds(raw []byte) (APICreds, error) {
	var root map[string]any
	if err := json.Unmarshal(raw, &root); err != nil {
		return APICreds{}, err
	}
	creds := APICreds{
		APIKey:     firstString(root, "apiKey", "api_key", "key"),
		Secret:     firstString(root, "secret", "api_secret"),
		Passphrase: firstString(root, "passphrase", "api_passphrase"),
	}
	if !creds.valid() {
		return APICreds{}, fmt.Errorf("incomplete credential response")
	}
	return creds, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			s := strings.TrimSpace(fmt.Sprintf("%v", v))
			if s != "" && s != "<nil>" {
				return s
			}
		}
	}
	return ""
}
