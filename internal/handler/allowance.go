package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"polytrade/internal/service"
	"polytrade/internal/session"
)

type AllowanceHandler struct {
	Store     *session.CookieStore
	Allowance *service.Allowance
}

func (h *AllowanceHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/allowance")
	group.GET("", h.getAllowance)
	group.POST("/refresh", h.refreshAllowance)
	group.POST("/ensure", h.ensureAllowance)
}

// @Summary Approval status for the session's funding address
// @Tags allowance
// @Param proxy query bool false "check the proxy wallet instead of the signing wallet"
// @Success 200 {object} apiResponse
// @Failure 401 {object} apiResponse
// @Router /api/v1/allowance [get]
func (h *AllowanceHandler) getAllowance(c *gin.Context) {
	sess, _ := h.Store.Get(c.Request)
	view, fail := h.Allowance.Get(c.Request.Context(), sess, boolQuery(c, "proxy", true))
	if fail != nil {
		Fail(c, fail)
		return
	}
	Ok(c, view)
}

// @Summary Recompute approval status, bypassing the cached view
// @Tags allowance
// @Param proxy query bool false "check the proxy wallet instead of the signing wallet"
// @Success 200 {object} apiResponse
// @Failure 401 {object} apiResponse
// @Router /api/v1/allowance/refresh [post]
func (h *AllowanceHandler) refreshAllowance(c *gin.Context) {
	sess, _ := h.Store.Get(c.Request)
	view, fail := h.Allowance.Refresh(c.Request.Context(), sess, boolQuery(c, "proxy", true))
	if fail != nil {
		Fail(c, fail)
		return
	}
	Ok(c, view)
}

// @Summary Establish any missing exchange approvals for the funding address
// @Tags allowance
// @Param proxy query bool false "run through the relay for the proxy wallet"
// @Success 200 {object} apiResponse
// @Failure 401 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/v1/allowance/ensure [post]
func (h *AllowanceHandler) ensureAllowance(c *gin.Context) {
	sess, _ := h.Store.Get(c.Request)
	view, fail := h.Allowance.Ensure(c.Request.Context(), sess, boolQuery(c, "proxy", true))
	if fail != nil {
		Fail(c, fail)
		return
	}
	Ok(c, view)
}

func boolQuery(c *gin.Context, key string, def bool) bool {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}
