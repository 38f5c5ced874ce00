// Package httpapi exposes the persistence engine over a thin HTTP
// surface.
package httpapi

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"

	"tabula/internal/core/apperror"
	"tabula/internal/core/session"
	"tabula/pkg/logger"
)

// Recovery recovers from panics and returns 500. Logs the stack trace
// but never exposes internals to the client.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
				)
				_ = c.Error(apperror.NewInternal(fmt.Errorf("panic: %v", err)))
				c.Abort()
			}
		}()
		c.Next()
	}
}

// Logger logs HTTP requests with timing and status.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.WithContext(c.Request.Context()).Infow("http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"error", c.Errors.ByType(gin.ErrorTypePrivate).String(),
		)
	}
}

// SessionContext places the caller's identity from request headers
// into the request context. Upstream auth is expected to have
// validated the identity; here it only needs to be carried.
func SessionContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := session.Session{
			UserID:    c.GetHeader("X-User-ID"),
			SessionID: c.GetHeader("X-Session-ID"),
		}
		if s.UserID != "" || s.SessionID != "" {
			ctx := session.WithSession(c.Request.Context(), s)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// ErrorHandler transforms errors into consistent JSON responses.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code, "cause", appErr.Err)
			}
			c.JSON(appErr.HTTPStatus, gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			})
			return
		}

		logger.Error(c.Request.Context(), "unhandled error", "error", err)
		c.JSON(500, gin.H{
			"code":    apperror.CodeInternal,
			"message": "Internal server error",
		})
	}
}
