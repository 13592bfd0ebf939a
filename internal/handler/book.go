package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"polytrade/internal/book"
	"polytrade/internal/service"
)

type BookHandler struct {
	Books  *book.Service
	Logger *zap.Logger
}

func (h *BookHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/book/:tokenId", h.getBook)
}

// @Summary Order book snapshot for a token
// @Tags book
// @Param tokenId path string true "outcome token id"
// @Success 200 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/v1/book/{tokenId} [get]
func (h *BookHandler) getBook(c *gin.Context) {
	tokenID := strings.TrimSpace(c.Param("tokenId"))
	if tokenID == "" {
		FailWith(c, http.StatusBadRequest, service.CodeInvalidOrder, "missing token id")
		return
	}
	snap, err := h.Books.Snapshot(c.Request.Context(), tokenID)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("book fetch failed", zap.String("token_id", tokenID), zap.Error(err))
		}
		FailWith(c, http.StatusBadGateway, service.CodeUpstreamUnavailable, "book unavailable")
		return
	}
	Ok(c, snap)
}
