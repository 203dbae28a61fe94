package security

import (
	"strings"

	"PPDirect/tools/errs"
	tokens "PPDirect/tools/security"

	"github.com/gin-gonic/gin"
)

// context key
// 后续模块统一用它读取调用者
const PPCtxUserIDKey = "ppUserId"

// BearerToken 兼容 Authorization: Bearer xxx 与裸 token
func BearerToken(c *gin.Context) string {
	authz := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return authz
}

// Middleware verifies the bearer token and stores the caller id. Failures
// go through the error handler as 401.
func Middleware(opts tokens.Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			_ = c.Error(errs.ErrTokenInvalid.WrapMsg("missing bearer token"))
			c.Abort()
			return
		}
		claims, err := tokens.Verify(opts, token)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Set(PPCtxUserIDKey, claims.UserID())
		c.Next()
	}
}

// UserID returns the caller set by Middleware, or "" on public routes.
func UserID(c *gin.Context) string {
	return c.GetString(PPCtxUserIDKey)
}
