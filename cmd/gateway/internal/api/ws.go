package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gobwas/ws"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/cmd/gateway/internal/gateway"
)

// Stream handles GET /ws
func (h *Handler) Stream(c *gin.Context) {
	if h.limiter != nil {
		allowed, err := h.limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			// fail open
			h.logger.Warn("Rate limiter unavailable", zap.Error(err))
		} else if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"detail": "too many connections"})
			return
		}
	}

	conn, _, _, err := ws.UpgradeHTTP(c.Request, c.Writer)
	if err != nil {
		h.logger.Debug("Upgrade failed", zap.Error(err))
		return
	}

	client := gateway.NewClient(conn, h.hub, h.logger, h.opts)
	if err := client.Start(h.baseCtx); err != nil {
		h.logger.Warn("Client rejected", zap.Error(err))
	}
}
