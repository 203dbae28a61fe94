package chat

import (
	"net/http"
	"strings"

	"PPDirect/logger"
	"PPDirect/tools/errs"
	"PPDirect/tools/safe"
	"PPDirect/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type ServerConfig struct {
	SendQueue   int                       // 每个连接的待发帧上限
	CheckOrigin func(r *http.Request) bool // nil 表示不校验
}

// Server upgrades HTTP requests into relay connections.
type Server struct {
	relay    *Relay
	tokens   security.Options
	upgrader websocket.Upgrader
	queue    int
}

func NewServer(relay *Relay, tokens security.Options, cfg ServerConfig) *Server {
	check := cfg.CheckOrigin
	if check == nil {
		check = func(r *http.Request) bool { return true }
	}
	return &Server{
		relay:    relay,
		tokens:   tokens,
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: check},
		queue:    cfg.SendQueue,
	}
}

func (s *Server) Relay() *Relay { return s.relay }

// identify 有 token 以 token 为准，否则使用 userId 参数（可为空，即匿名连接）
func (s *Server) identify(c *gin.Context) (string, error) {
	if token := strings.TrimSpace(c.Query("token")); token != "" {
		claims, err := security.Verify(s.tokens, token)
		if err != nil {
			return "", err
		}
		return claims.UserID(), nil
	}
	return c.Query("userId"), nil
}

// HandleWS serves GET /ws?userId=<id> or GET /ws?token=<jwt>.
func (s *Server) HandleWS(c *gin.Context) {
	userID, err := s.identify(c)
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": errs.Public(err)})
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败，Upgrade 已写回错误
		logger.Debug("ws upgrade failed", zap.Error(err))
		return
	}

	conn := NewWsConn(ws, s.queue)
	safe.Go("ws writer", conn.writeLoop)

	s.relay.Connect(conn, userID)
	conn.readLoop(func(raw []byte) { s.relay.HandleFrame(conn, raw) })

	s.relay.Disconnect(conn)
	conn.Close()
	<-conn.Done()
}
