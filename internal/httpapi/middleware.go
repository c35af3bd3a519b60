package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"

	"mockingbird/internal/logging"
)

// bearerAuth rejects requests that do not carry "Authorization: Bearer
// <token>". An empty configured token disables the check, matching the
// default localhost bind. The comparison is constant-time so response timing
// never narrows the token.
func bearerAuth(token string) gin.HandlerFunc {
	if token == "" {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		presented, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	logger = logging.NewComponentLogger(logger, "httpapi")
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("request handled",
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("duration", time.Since(start)),
		)
	}
}
