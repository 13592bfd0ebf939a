package handler

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"polytrade/internal/metrics"
	"polytrade/internal/proxywallet"
	"polytrade/internal/service"
	"polytrade/internal/session"
)

type RelayerHandler struct {
	Store    *session.CookieStore
	Resolver *proxywallet.Resolver
	Logger   *zap.Logger
}

func (h *RelayerHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/relayer")
	group.GET("/wallet", h.getWallet)
	group.POST("/deploy", h.deploy)
}

// @Summary Resolve the session wallet's proxy wallet
// @Tags relayer
// @Success 200 {object} apiResponse
// @Failure 401 {object} apiResponse
// @Router /api/v1/relayer/wallet [get]
func (h *RelayerHandler) getWallet(c *gin.Context) {
	sess, ok := h.requireSession(c)
	if !ok {
		return
	}
	wallet, err := h.Resolver.Resolve(c.Request.Context(), common.HexToAddress(sess.WalletAddress))
	if err != nil {
		FailWith(c, http.StatusBadGateway, service.CodeUpstreamUnavailable, "proxy wallet resolution failed")
		return
	}
	Ok(c, gin.H{
		"proxyWalletAddress": wallet.Address.Hex(),
		"deployed":           wallet.Deployed,
	})
}

// @Summary Deploy the session wallet's proxy wallet through the relay
// @Tags relayer
// @Success 200 {object} apiResponse
// @Failure 401 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/v1/relayer/deploy [post]
func (h *RelayerHandler) deploy(c *gin.Context) {
	sess, ok := h.requireSession(c)
	if !ok {
		return
	}
	owner := common.HexToAddress(sess.WalletAddress)

	wallet, err := h.Resolver.Resolve(c.Request.Context(), owner)
	if err != nil {
		FailWith(c, http.StatusBadGateway, service.CodeUpstreamUnavailable, "proxy wallet resolution failed")
		return
	}
	if wallet.Deployed {
		Ok(c, gin.H{
			"proxyWalletAddress": wallet.Address.Hex(),
			"deployed":           true,
			"cached":             true,
		})
		return
	}

	wallet, err = h.Resolver.EnsureDeployed(c.Request.Context(), owner)
	if err != nil {
		metrics.RelayDeploys.WithLabelValues("failed").Inc()
		if h.Logger != nil {
			h.Logger.Error("proxy wallet deployment failed",
				zap.String("owner", sess.WalletAddress), zap.Error(err))
		}
		FailWith(c, http.StatusBadGateway, service.CodeUpstreamUnavailable, "proxy wallet deployment failed")
		return
	}
	metrics.RelayDeploys.WithLabelValues("deployed").Inc()
	Ok(c, gin.H{
		"proxyWalletAddress": wallet.Address.Hex(),
		"deployed":           wallet.Deployed,
		"cached":             false,
	})
}

func (h *RelayerHandler) requireSession(c *gin.Context) (*session.Session, bool) {
	sess, err := h.Store.Get(c.Request)
	if err != nil || sess == nil || sess.Expired(time.Now().UTC()) {
		FailWith(c, http.StatusUnauthorized, service.CodeSessionRequired, "no active session")
		return nil, false
	}
	return sess, true
}
