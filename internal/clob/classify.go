package clob

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RejectionError is a structurally valid exchange response that declined the
// order. It is never retried.
type RejectionError struct {
	Message string
	Raw     json.RawMessage
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("exchange rejected order: %s", e.Message)
}

// UnavailableError is an infrastructure-level failure: timeouts, retryable
// statuses after the budget is spent, or an HTML/CDN-challenge body where JSON
// was expected. Snippet is bounded and safe to log.
type UnavailableError struct {
	Status      int
	ContentType string
	Snippet     string
	Cause       error
}

func (e *UnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("exchange unavailable: %v", e.Cause)
	}
	return fmt.Sprintf("exchange unavailable: status=%d content-type=%q", e.Status, e.ContentType)
}

func (e *UnavailableError) Unwrap() error { return e.Cause }

const snippetLimit = 300

func bodySnippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > snippetLimit {
		s = s[:snippetLimit]
	}
	return s
}

// looksLikeHTML sniffs for edge-server challenge pages that arrive with a 2xx
// or non-retryable status but are not exchange responses.
func looksLikeHTML(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "text/html") {
		return true
	}
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "<") {
		return true
	}
	lower := strings.ToLower(trimmed)
	return strings.Contains(lower, "cf-ray") || strings.Contains(lower, "challenge-platform")
}

// classifyBody splits a 2xx exchange response into acceptance or business
// rejection. A JSON body with explicit success=false carries the upstream
// message through verbatim.
func classifyBody(body []byte) (json.RawMessage, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("malformed exchange response: %w", err)
	}
	if successRaw, ok := root["success"]; ok {
		var success bool
		if err := json.Unmarshal(successRaw, &success); err == nil && !success {
			msg := "order rejected"
			if errRaw, ok := root["errorMsg"]; ok {
				var s string
				if json.Unmarshal(errRaw, &s) == nil && s != "" {
					msg = s
				}
			} else if errRaw, ok := root["error"]; ok {
				var s string
				if json.Unmarshal(errRaw, &s) == nil && s != "" {
					msg = s
				}
			}
			return nil, &RejectionError{Message: msg, Raw: json.RawMessage(body)}
		}
	}
	return json.RawMessage(body), nil
}
