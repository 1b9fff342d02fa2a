package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JonnyWalker81/healthlytics/internal/apierror"
	"github.com/JonnyWalker81/healthlytics/internal/logger"
)

// RequestIDHeader carries the correlation id in and out.
const RequestIDHeader = "X-Request-ID"

// RequestID reuses the caller's X-Request-ID or generates one, and stores it
// on the gin and request contexts.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := logger.WithRequestID(c.Request.Context(), c.GetHeader(RequestIDHeader))
		id := logger.RequestIDFromContext(ctx)

		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Logger middleware for logging HTTP requests
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		fields := []logger.Field{
			logger.String("method", method),
			logger.String("path", path),
			logger.Int("status", status),
			logger.Duration("latency", time.Since(start)),
		}
		log := logger.Ctx(c.Request.Context())
		switch {
		case status >= 500:
			log.Error("request completed", fields...)
		case status >= 400:
			log.Warn("request completed", fields...)
		default:
			log.Info("request completed", fields...)
		}
	}
}

// Recovery turns a handler panic into a 500 problem response.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Ctx(c.Request.Context()).Error("handler panicked",
					logger.String("panic", fmt.Sprint(r)),
					logger.String("path", c.Request.URL.Path),
				)
				apierror.WriteProblem(c, apierror.NewInternalError(apierror.GetRequestID(c), ""))
				c.Abort()
			}
		}()
		c.Next()
	}
}
