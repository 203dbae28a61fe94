package middleware

import (
	"fmt"

	"PPDirect/logger"
	"PPDirect/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler turns the last error a handler pushed with c.Error into the
// response. Internal faults are logged with their stack and answered with a
// generic body.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		status := errs.HTTPStatus(err)
		if status >= 500 {
			logger.Error("request failed",
				zap.String("path", c.FullPath()),
				zap.String("requestId", RequestID(c)),
				zap.String("error", fmt.Sprintf("%+v", err)))
		} else {
			logger.Debug("request rejected", zap.String("path", c.FullPath()), zap.Error(err))
		}
		if c.Writer.Written() {
			return
		}
		c.JSON(status, gin.H{"error": errs.Public(err)})
	}
}
