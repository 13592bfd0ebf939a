package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"polytrade/internal/repository"
	"polytrade/internal/service"
)

type OrdersListHandler struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (h *OrdersListHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/orders", h.listOrders)
}

// @Summary List journaled order submissions
// @Tags orders
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Param status query string false "filter by terminal status"
// @Param maker query string false "filter by maker address"
// @Success 200 {object} apiResponse
// @Router /api/v1/orders [get]
func (h *OrdersListHandler) listOrders(c *gin.Context) {
	params := repository.ListOrderRecordsParams{
		Limit:  intQuery(c, "limit", 50),
		Offset: intQuery(c, "offset", 0),
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		params.Status = &status
	}
	if maker := strings.ToLower(strings.TrimSpace(c.Query("maker"))); maker != "" {
		params.Maker = &maker
	}

	records, err := h.Repo.ListOrderRecords(c.Request.Context(), params)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("order journal query failed", zap.Error(err))
		}
		FailWith(c, http.StatusInternalServerError, service.CodeUpstreamUnavailable, "journal unavailable")
		return
	}
	Ok(c, records)
}

func intQuery(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
