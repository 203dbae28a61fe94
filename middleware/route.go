package middleware

import (
	"github.com/gin-gonic/gin"
)

// 配置选项
type RouteOpt struct {
	IsAuth bool
}

// Router 在注册路由时按需挂上鉴权中间件
type Router struct {
	r    gin.IRoutes
	auth gin.HandlerFunc
}

func NewRouter(r gin.IRoutes, auth gin.HandlerFunc) *Router {
	return &Router{r: r, auth: auth}
}

func (rt *Router) chain(handler gin.HandlerFunc, opt RouteOpt) []gin.HandlerFunc {
	if opt.IsAuth && rt.auth != nil {
		return []gin.HandlerFunc{rt.auth, handler}
	}
	return []gin.HandlerFunc{handler}
}

// 封装 POST
func (rt *Router) POST(path string, handler gin.HandlerFunc, opt RouteOpt) {
	rt.r.POST(path, rt.chain(handler, opt)...)
}

// 封装 GET
func (rt *Router) GET(path string, handler gin.HandlerFunc, opt RouteOpt) {
	rt.r.GET(path, rt.chain(handler, opt)...)
}

func (rt *Router) PUT(path string, handler gin.HandlerFunc, opt RouteOpt) {
	rt.r.PUT(path, rt.chain(handler, opt)...)
}

func (rt *Router) DELETE(path string, handler gin.HandlerFunc, opt RouteOpt) {
	rt.r.DELETE(path, rt.chain(handler, opt)...)
}

// HandlerE 返回 error 的处理函数，错误统一交给 ErrorHandler
type HandlerE func(c *gin.Context) error

// E 适配为 gin.HandlerFunc
func E(h HandlerE) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h(c); err != nil {
			_ = c.Error(err)
			c.Abort()
		}
	}
}
