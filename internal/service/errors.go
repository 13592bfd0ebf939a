package service

import "fmt"

// Failure is a machine-readable request outcome carried to the HTTP layer.
type Failure struct {
	Code    string `json:"error"`
	Status  int    `json:"-"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

func (f *Failure) Error() string {
	if f.Message != "" {
		return fmt.Sprintf("%s: %s", f.Code, f.Message)
	}
	return f.Code
}

// Error codes shared across the API surface.
const (
	CodeInvalidAuthPayload   = "INVALID_AUTH_PAYLOAD"
	CodeSessionInitFailed    = "SESSION_INIT_FAILED"
	CodeSessionRequired      = "SESSION_REQUIRED"
	CodeSessionNotConfigured = "SESSION_NOT_CONFIGURED"
	CodeInvalidOrder         = "INVALID_ORDER"
	CodeSellDisabled         = "SELL_DISABLED"
	CodeExpirationPolicy     = "EXPIRATION_POLICY"
	CodeFunderMismatch       = "FUNDER_MISMATCH"
	CodeNoLiquidity          = "NO_LIQUIDITY"
	CodeInvalidPrice         = "INVALID_PRICE"
	CodeBelowMinimumSize     = "BELOW_MINIMUM_SIZE"
	CodeUpstreamRejected     = "UPSTREAM_REJECTED"
	CodeUpstreamUnavailable  = "UPSTREAM_UNAVAILABLE"
	CodeApprovalStepFailed   = "APPROVAL_STEP_FAILED"
	CodeUserRejected         = "USER_REJECTED"
)

func failf(status int, code, format string, args ...any) *Failure {
	return &Failure{Code: code, Status: status, Message: fmt.Sprintf(format, args...)}
}
