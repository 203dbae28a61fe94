package natsx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NatsxProducer 生产端
type NatsxProducer struct{ c *NatsxClient }

func NewNatsxProducer(c *NatsxClient) *NatsxProducer { return &NatsxProducer{c: c} }

// Publish 按 Biz 路由发送
func (p *NatsxProducer) Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error {
	r, ok := p.c.route(biz)
	if !ok {
		return fmt.Errorf("route not found: %s", biz)
	}
	switch r.Mode {
	case Core:
		return p.c.sendCore(r.Subject, data, hdr)
	case JetStream:
		return p.c.sendJS(ctx, r.Subject, data, hdr)
	default:
		return fmt.Errorf("unsupported mode")
	}
}

// PublishOnce 带 Nats-Msg-Id 的发布，JetStream 用它去重；msgID 为空则自动生成
func (p *NatsxProducer) PublishOnce(ctx context.Context, biz string, data []byte, hdr map[string]string, msgID string) error {
	if hdr == nil {
		hdr = map[string]string{}
	}
	if msgID == "" {
		msgID = genMsgID()
	}
	hdr["Nats-Msg-Id"] = msgID
	return p.Publish(ctx, biz, data, hdr)
}

func genMsgID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
