package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"polytrade/internal/metrics"
	"polytrade/internal/service"
	"polytrade/internal/session"
)

type AuthHandler struct {
	Store  *session.CookieStore
	Auth   *session.Authenticator
	Logger *zap.Logger
}

func (h *AuthHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/auth")
	group.POST("/init", h.initSession)
	group.DELETE("/session", h.destroySession)
}

// @Summary Initialize a Level-2 exchange session from a wallet signature
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 401 {object} apiResponse
// @Router /api/v1/auth/init [post]
func (h *AuthHandler) initSession(c *gin.Context) {
	if !h.Store.Configured() {
		FailWith(c, http.StatusInternalServerError, service.CodeSessionNotConfigured,
			"session encryption key not configured")
		return
	}

	proof, ok := parseProof(c)
	if !ok {
		metrics.SessionInits.WithLabelValues("invalid").Inc()
		FailWith(c, http.StatusBadRequest, service.CodeInvalidAuthPayload, "malformed auth payload")
		return
	}

	current, err := h.Store.Get(c.Request)
	if err != nil && !errors.Is(err, session.ErrNoSession) {
		current = nil
	}
	// A session bound to another wallet dies before the upstream call: a
	// failed init for the new address must not leave the old credentials
	// behind in the cookie.
	if current != nil && !strings.EqualFold(current.WalletAddress, strings.TrimSpace(proof.Address)) {
		h.Store.Clear(c.Writer)
		current = nil
	}

	sess, reused, err := h.Auth.Init(c.Request.Context(), current, proof)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidPayload):
			metrics.SessionInits.WithLabelValues("invalid").Inc()
			FailWith(c, http.StatusBadRequest, service.CodeInvalidAuthPayload, err.Error())
		case errors.Is(err, session.ErrInitFailed):
			metrics.SessionInits.WithLabelValues("failed").Inc()
			if h.Logger != nil {
				h.Logger.Warn("session init failed", zap.String("address", proof.Address), zap.Error(err))
			}
			FailWith(c, http.StatusUnauthorized, service.CodeSessionInitFailed,
				"could not derive or create exchange credentials")
		default:
			metrics.SessionInits.WithLabelValues("failed").Inc()
			FailWith(c, http.StatusInternalServerError, service.CodeSessionInitFailed, "session init error")
		}
		return
	}

	if !reused {
		if err := h.Store.Set(c.Writer, sess); err != nil {
			FailWith(c, http.StatusInternalServerError, service.CodeSessionInitFailed, "could not persist session")
			return
		}
	}
	metrics.SessionInits.WithLabelValues(result(reused)).Inc()

	Ok(c, gin.H{
		"address":   strings.ToLower(sess.WalletAddress),
		"reused":    reused,
		"createdAt": sess.CreatedAt,
		"expiresAt": sess.CreatedAt.Add(h.Store.TTL()),
	})
}

// @Summary Destroy the current session
// @Tags auth
// @Success 200 {object} apiResponse
// @Router /api/v1/auth/session [delete]
func (h *AuthHandler) destroySession(c *gin.Context) {
	h.Store.Clear(c.Writer)
	Ok(c, gin.H{"destroyed": true})
}

// parseProof accepts the uppercase exchange field names and their snake and
// camel case aliases in the request body.
func parseProof(c *gin.Context) (session.Proof, bool) {
	var fields map[string]json.RawMessage
	if err := c.ShouldBindJSON(&fields); err != nil {
		return session.Proof{}, false
	}
	proof := session.Proof{
		Address:   firstString(fields, "POLY_ADDRESS", "address", "poly_address"),
		Signature: firstString(fields, "POLY_SIGNATURE", "signature", "poly_signature"),
		Timestamp: firstString(fields, "POLY_TIMESTAMP", "timestamp", "poly_timestamp"),
		Nonce:     firstString(fields, "POLY_NONCE", "nonce", "poly_nonce"),
	}
	if proof.Address == "" || proof.Signature == "" {
		return session.Proof{}, false
	}
	return proof, true
}

func firstString(fields map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

func result(reused bool) string {
	if reused {
		return "reused"
	}
	return "created"
}
