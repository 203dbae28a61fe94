package middleware

import (
	"fmt"
	"net/http"

	"PPDirect/logger"
	"PPDirect/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery replaces gin's default recovery so panics land in the zap log
// with the request id.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				err := errs.ErrPanic(r)
				logger.Error("handler panic",
					zap.String("path", c.Request.URL.Path),
					zap.String("requestId", RequestID(c)),
					zap.String("error", fmt.Sprintf("%+v", err)))
				if !c.Writer.Written() {
					c.JSON(http.StatusInternalServerError, gin.H{"error": errs.ErrInternalServer})
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}
