package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"polytrade/internal/service"
	"polytrade/internal/session"
)

type OrderHandler struct {
	Store      *session.CookieStore
	Submission *service.Submission
	Logger     *zap.Logger
}

func (h *OrderHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/order", NoStore(), h.submitOrder)
}

type orderEnvelope struct {
	Order         json.RawMessage `json:"order"`
	OrderType     string          `json:"orderType"`
	Side          string          `json:"side"`
	FunderAddress string          `json:"funderAddress"`
	ClientID      string          `json:"clientId"`
	ClientMeta    map[string]any  `json:"clientMeta"`
}

// @Summary Submit a signed order to the exchange
// @Tags orders
// @Accept json
// @Produce json
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 401 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/v1/order [post]
func (h *OrderHandler) submitOrder(c *gin.Context) {
	var env orderEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		FailWith(c, http.StatusBadRequest, service.CodeInvalidOrder, "malformed request body")
		return
	}

	sess, err := h.Store.Get(c.Request)
	if err != nil {
		if errors.Is(err, session.ErrNotConfigured) {
			FailWith(c, http.StatusInternalServerError, service.CodeSessionNotConfigured,
				"session encryption key not configured")
			return
		}
		FailWith(c, http.StatusUnauthorized, service.CodeSessionRequired, "no active session")
		return
	}

	result, fail := h.Submission.Submit(c.Request.Context(), sess, service.SubmitParams{
		Order:         env.Order,
		OrderType:     env.OrderType,
		RootSide:      env.Side,
		FunderAddress: env.FunderAddress,
		ClientID:      env.ClientID,
		ClientMeta:    env.ClientMeta,
	})
	if fail != nil {
		if h.Logger != nil && fail.Status >= 500 {
			h.Logger.Error("order submission failed", zap.String("code", fail.Code), zap.String("message", fail.Message))
		}
		Fail(c, fail)
		return
	}
	Ok(c, result)
}
