package middleware

import (
	"time"

	"PPDirect/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AccessLog 每个请求一条 zap 日志
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("requestId", RequestID(c)),
		}
		if status >= 500 {
			logger.Warn("http", fields...)
			return
		}
		logger.Info("http", fields...)
	}
}
