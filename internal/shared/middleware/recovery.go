package middleware

import (
	"runtime/debug"

	"github.com/gin-gonic/gin"
	apperrors "github.com/steyzi/server/internal/shared/errors"
	"go.uber.org/zap"
)

// Recovery returns a middleware that recovers from panics.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					zap.Any("panic", err),
					zap.String("path", c.Request.URL.Path),
					zap.ByteString("stack", debug.Stack()),
				)
				appErr := apperrors.Internal("internal server error", nil)
				c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
			}
		}()
		c.Next()
	}
}
