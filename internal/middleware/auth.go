package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/JonnyWalker81/healthlytics/internal/apierror"
	"github.com/JonnyWalker81/healthlytics/internal/logger"
)

// TriggerAuth requires "Authorization: Bearer <key>". An empty key disables
// the check.
func TriggerAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		log := logger.Ctx(c.Request.Context())

		authHeader := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			log.Debug("authentication failed: missing or malformed authorization header")
			apierror.WriteProblem(c, apierror.NewUnauthorizedError(apierror.GetRequestID(c)))
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
			log.Warn("authentication failed: trigger key mismatch",
				logger.String("client_ip", c.ClientIP()),
			)
			apierror.WriteProblem(c, apierror.NewUnauthorizedError(apierror.GetRequestID(c)))
			c.Abort()
			return
		}

		c.Next()
	}
}
