package chat

import (
	"errors"
	"net"
	"sync"
	"time"

	"PPDirect/logger"
	"PPDirect/tools/ids"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ---- 连接参数 ----
const (
	pingInterval   = 25 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxFrameBytes  = 64 << 10
	defaultSendCap = 256
)

var (
	ErrConnClosed = errors.New("connection closed")
	ErrQueueFull  = errors.New("send queue full")
)

// WsConn is a websocket connection with a bounded outbound queue drained by
// one writer goroutine.
type WsConn struct {
	SnowID    string
	Remote    net.Addr
	CreatedAt time.Time

	ws     *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
	done   chan struct{} // writer 退出
}

func NewWsConn(ws *websocket.Conn, queue int) *WsConn {
	if queue <= 0 {
		queue = defaultSendCap
	}
	c := &WsConn{
		SnowID:    ids.GenerateString(),
		CreatedAt: time.Now(),
		ws:        ws,
		send:      make(chan []byte, queue),
		closed:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	if ws != nil {
		c.Remote = ws.RemoteAddr()
	}
	return c
}

func (c *WsConn) ID() string { return c.SnowID }

// Push encodes f and queues it. A full queue drops the frame.
func (c *WsConn) Push(f Frame) error {
	b, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	case <-c.closed:
		return ErrConnClosed
	default:
		return ErrQueueFull
	}
}

// Close stops the writer, which then closes the socket.
func (c *WsConn) Close() {
	c.once.Do(func() { close(c.closed) })
}

// Done is closed after the writer has closed the socket.
func (c *WsConn) Done() <-chan struct{} { return c.done }

// writeLoop 唯一的写协程：业务帧优先，其次定时 ping
func (c *WsConn) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.ws.Close()
		close(c.done)
	}()

	for {
		select {
		case <-c.closed:
			return
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug("ws write failed", zap.String("conn", c.SnowID), zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Debug("ws ping failed", zap.String("conn", c.SnowID), zap.Error(err))
				c.Close()
				return
			}
		}
	}
}

// readLoop hands every text frame to fn in arrival order until the peer goes
// away or the connection is closed.
func (c *WsConn) readLoop(fn func(raw []byte)) {
	c.ws.SetReadLimit(maxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			var ne net.Error
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				logger.Debug("ws peer closed", zap.String("conn", c.SnowID))
			case errors.As(err, &ne) && ne.Timeout():
				logger.Debug("ws read timeout", zap.String("conn", c.SnowID))
			default:
				logger.Debug("ws read failed", zap.String("conn", c.SnowID), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		fn(data)
	}
}
