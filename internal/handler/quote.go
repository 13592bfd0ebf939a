package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"polytrade/internal/service"
)

type QuoteHandler struct {
	Quote *service.Quote
}

func (h *QuoteHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/quote", NoStore(), h.quote)
}

// @Summary Price a buy intent against the live order book
// @Tags orders
// @Accept json
// @Produce json
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/v1/quote [post]
func (h *QuoteHandler) quote(c *gin.Context) {
	var req service.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		FailWith(c, http.StatusBadRequest, service.CodeInvalidOrder, "malformed request body")
		return
	}
	result, fail := h.Quote.Price(c.Request.Context(), req)
	if fail != nil {
		Fail(c, fail)
		return
	}
	Ok(c, result)
}
