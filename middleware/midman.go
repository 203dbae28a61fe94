package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
)

// MiddlewareManager 收集全局中间件，启动时一次性挂到 Engine 上
type MiddlewareManager struct {
	mu   sync.RWMutex
	mids []gin.HandlerFunc
}

// NewManager 创建新的实例
func NewManager() *MiddlewareManager {
	return &MiddlewareManager{}
}

// Add 注册中间件，按注册顺序执行
func (m *MiddlewareManager) Add(h ...gin.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mids = append(m.mids, h...)
}

// Clear 清空全部中间件
func (m *MiddlewareManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mids = nil
}

// Handlers 返回快照，用于 engine.Use(m.Handlers()...)
func (m *MiddlewareManager) Handlers() []gin.HandlerFunc {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]gin.HandlerFunc{}, m.mids...)
}

// Install 挂到 Engine 上
func (m *MiddlewareManager) Install(e *gin.Engine) {
	e.Use(m.Handlers()...)
}
