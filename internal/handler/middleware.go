package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"polytrade/internal/service"
)

// RejectSpoofedAuthHeaders refuses any request carrying exchange-auth-looking
// headers. Those headers are attached server-side only; a client sending them
// is either confused or probing.
func RejectSpoofedAuthHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		for name := range c.Request.Header {
			upper := strings.ToUpper(name)
			if strings.HasPrefix(upper, "POLY_") || strings.HasPrefix(upper, "POLY-") {
				FailWith(c, http.StatusBadRequest, service.CodeInvalidOrder,
					"exchange auth headers are not accepted from clients")
				c.Abort()
				return
			}
		}
		c.Next()
	}
}

// NoStore marks responses as uncacheable. Order responses carry per-user
// exchange state and must never land in a shared cache.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// CORS allows the configured origin for the browser client. An empty origin
// list leaves CORS off.
func CORS(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && allowed[strings.TrimRight(origin, "/")] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
