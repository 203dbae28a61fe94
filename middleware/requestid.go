package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-Id"
	ctxRequestIDKey = "ppRequestId"
)

// RequestIDMiddleware 复用客户端带来的 X-Request-Id，没有就生成一个
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(ctxRequestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

func RequestID(c *gin.Context) string {
	return c.GetString(ctxRequestIDKey)
}
