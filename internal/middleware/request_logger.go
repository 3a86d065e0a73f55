package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"chat_server/pkg/logger"
)

// RequestLogger emits one structured line per request. Websocket
// upgrades log on connection close, so their latency is the session
// lifetime; that is expected.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}
