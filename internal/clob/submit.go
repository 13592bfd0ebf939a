package clob

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// SubmitRequest is the exchange order envelope.
type SubmitRequest struct {
	Order     any    `json:"order"`
	Owner     string `json:"owner"`
	OrderType string `json:"orderType"`
}

// SubmitAuth binds a Level-2 credential set to the wallet address it was
// minted for.
type SubmitAuth struct {
	Creds   APICreds
	Address string
}

// BuilderSigner produces optional third-party attribution headers for an
// outgoing submission.
type BuilderSigner interface {
	Headers(timestamp, method, path string, body []byte) map[string]string
}

// HMACBuilder signs attribution headers with a builder-program secret.
type HMACBuilder struct {
	Name   string
	APIKey string
	Secret string
}

func (b *HMACBuilder) Headers(timestamp, method, path string, body []byte) map[string]string {
	if b == nil || b.Secret == "" {
		return nil
	}
	sig := signHMAC(b.Secret, timestamp, method, path, body)
	return map[string]string{
		"POLY_BUILDER":           b.Name,
		"POLY_BUILDER_API_KEY":   b.APIKey,
		"POLY_BUILDER_SIGNATURE": sig,
		"POLY_BUILDER_TIMESTAMP": timestamp,
	}
}

// SubmitOrder posts a signed order with bounded retries. Transient statuses
// and per-attempt timeouts are retried per the policy; business rejections
// and policy errors return immediately.
func (c *Client) SubmitOrder(ctx context.Context, req SubmitRequest, auth SubmitAuth, builder BuilderSigner, policy RetryPolicy) (json.RawMessage, error) {
	if policy.Attempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < policy.Attempts; attempt++ {
		if attempt > 0 {
			if policy.OnRetry != nil {
				policy.OnRetry(attempt)
			}
			select {
			case <-ctx.Done():
				return nil, &UnavailableError{Cause: ctx.Err()}
			case <-time.After(policy.Backoff(attempt - 1)):
			}
		}
		data, retryable, err := c.submitOnce(ctx, body, auth, builder, policy)
		if err == nil {
			return data, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) submitOnce(ctx context.Context, body []byte, auth SubmitAuth, builder BuilderSigner, policy RetryPolicy) (json.RawMessage, bool, error) {
	attemptCtx := ctx
	if policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, policy.AttemptTimeout)
		defer cancel()
	}

	const path = "/order"
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.host+path, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	ts := strconv.FormatInt(time.Now().UTC().Unix(), 10)
	req.Header.Set(HeaderAddress, auth.Address)
	req.Header.Set(HeaderAPIKey, auth.Creds.APIKey)
	req.Header.Set(HeaderPassphrase, auth.Creds.Passphrase)
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, signHMAC(auth.Creds.Secret, ts, http.MethodPost, path, body))
	if builder != nil {
		for k, v := range builder.Headers(ts, http.MethodPost, path, body) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and transport failures are transient from our side.
		return nil, true, &UnavailableError{Cause: err}
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, &UnavailableError{Cause: err}
	}

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if looksLikeHTML(contentType, respBody) {
			return nil, true, &UnavailableError{
				Status:      resp.StatusCode,
				ContentType: contentType,
				Snippet:     bodySnippet(respBody),
			}
		}
		data, err := classifyBody(respBody)
		if err != nil {
			return nil, false, err
		}
		return data, false, nil
	}

	upErr := &UnavailableError{
		Status:      resp.StatusCode,
		ContentType: contentType,
		Snippet:     bodySnippet(respBody),
	}
	if policy.Retryable(resp.StatusCode) {
		return nil, true, upErr
	}
	if looksLikeHTML(contentType, respBody) {
		return nil, false, upErr
	}
	// Non-retryable JSON error: surface the upstream message as a rejection.
	var root map[string]any
	if json.Unmarshal(respBody, &root) == nil {
		if msg := firstString(root, "errorMsg", "error", "message"); msg != "" {
			return nil, false, &RejectionError{Message: msg, Raw: json.RawMessage(respBody)}
		}
	}
	return nil, false, upErr
}

// signHMAC computes the Level-2 request signature over
// timestamp + method + path + body using the base64url-decoded secret.
func signHMAC(secret, timestamp, method, path string, body []byte) string {
	key, err := base64.URLEncoding.DecodeString(secret)
	if err != nil {
		key = []byte(secret)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(timestamp + strings.ToUpper(method) + path))
	mac.Write(body)
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}
