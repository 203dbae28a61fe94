package natsx

import (
	"context"
	"fmt"
	"strings"

	"PPDirect/tools/ids"
)

// NatsManager 统一门面：把领域事件发到 <prefix>.<kind> subject
type NatsManager struct {
	client   *NatsxClient
	producer *NatsxProducer
	prefix   string
	mode     NatsxMode
}

// NewNatsManager 连接并返回门面；kinds 会被预先注册成路由
func NewNatsManager(cfg NatsxConfig, prefix string, mode NatsxMode, kinds ...string) (*NatsManager, error) {
	c, err := NewNatsxClient(cfg)
	if err != nil {
		return nil, err
	}
	m := &NatsManager{
		client:   c,
		producer: NewNatsxProducer(c),
		prefix:   strings.TrimSuffix(prefix, "."),
		mode:     mode,
	}
	for _, k := range kinds {
		if err := m.RegisterKind(k); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return m, nil
}

// Subject 事件类型对应的 subject，例如 ppdirect.chat.message.sent
func (m *NatsManager) Subject(kind string) string {
	return m.prefix + "." + kind
}

func (m *NatsManager) RegisterKind(kind string) error {
	return m.client.RegisterRoute(NatsxRoute{Biz: kind, Subject: m.Subject(kind), Mode: m.mode})
}

// Name implements events.Sink.
func (m *NatsManager) Name() string { return "nats" }

// Send implements events.Sink. Unknown kinds get a route on first use.
func (m *NatsManager) Send(ctx context.Context, kind, key string, payload []byte) error {
	if m == nil || m.producer == nil {
		return fmt.Errorf("manager not initialized")
	}
	if _, ok := m.client.route(kind); !ok {
		if err := m.RegisterKind(kind); err != nil {
			return err
		}
	}
	hdr := map[string]string{"Ppd-Key": key}
	return m.producer.PublishOnce(ctx, kind, payload, hdr, ids.GenerateString())
}

// Close 释放连接
func (m *NatsManager) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}
