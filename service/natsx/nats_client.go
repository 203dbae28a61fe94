package natsx

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NatsxMode 工作模式
type NatsxMode int

const (
	Core      NatsxMode = iota // 无持久化
	JetStream                  // 需要服务端已有覆盖该 subject 的 stream
)

// NatsxRoute 路由配置（按事件类型注册）
type NatsxRoute struct {
	Biz     string
	Subject string
	Mode    NatsxMode
}

// NatsxConfig 客户端配置
type NatsxConfig struct {
	Servers         []string
	Name            string
	User            string
	Password        string
	ReconnectWait   time.Duration
	Timeout         time.Duration
	PublishAsyncMax int
}

// NatsxClient 统一客户端
type NatsxClient struct {
	cfg NatsxConfig
	nc  *nats.Conn
	js  nats.JetStreamContext

	mu     sync.RWMutex
	routes map[string]NatsxRoute // biz -> route
}

// NewNatsxClient 连接 NATS
func NewNatsxClient(cfg NatsxConfig) (*NatsxClient, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.PublishAsyncMax == 0 {
		cfg.PublishAsyncMax = 4096
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, err
	}
	return &NatsxClient{
		cfg:    cfg,
		nc:     nc,
		routes: make(map[string]NatsxRoute),
	}, nil
}

// Close 优雅关闭
func (c *NatsxClient) Close() error {
	if c.nc != nil {
		return c.nc.Drain()
	}
	return nil
}

// ensureJS 初始化 JetStream 上下文
func (c *NatsxClient) ensureJS() error {
	if c.js != nil {
		return nil
	}
	js, err := c.nc.JetStream(nats.PublishAsyncMaxPending(c.cfg.PublishAsyncMax))
	if err != nil {
		return err
	}
	c.js = js
	return nil
}

// RegisterRoute 注册路由
func (c *NatsxClient) RegisterRoute(r NatsxRoute) error {
	if r.Biz == "" || r.Subject == "" {
		return errors.New("invalid route")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.Mode == JetStream {
		if err := c.ensureJS(); err != nil {
			return fmt.Errorf("init jetstream: %w", err)
		}
	}
	c.routes[r.Biz] = r
	return nil
}

// route 查询已注册路由
func (c *NatsxClient) route(biz string) (NatsxRoute, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.routes[biz]
	return r, ok
}
