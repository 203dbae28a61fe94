package kafka

import (
	"context"
	"fmt"

	"github.com/Shopify/sarama"
)

// Producer 同步生产者，把领域事件写进一个 topic
type Producer struct {
	topic  string
	client sarama.Client
	sync   sarama.SyncProducer
}

// NewProducer 连接集群；EnsureTopic 为 true 时先建 topic
func NewProducer(app AppConfig) (*Producer, error) {
	if len(app.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers missing")
	}
	if app.Topic == "" {
		return nil, fmt.Errorf("kafka topic missing")
	}
	client, err := sarama.NewClient(app.Brokers, BuildBaseConfig(app))
	if err != nil {
		return nil, err
	}
	if app.EnsureTopic {
		admin, err := sarama.NewClusterAdminFromClient(client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		// admin.Close would close the shared client
		if err := EnsureTopic(admin, app.Topic, app); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	sp, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Producer{topic: app.Topic, client: client, sync: sp}, nil
}

// NewProducerWith wraps an existing SyncProducer.
func NewProducerWith(topic string, sp sarama.SyncProducer) *Producer {
	return &Producer{topic: topic, sync: sp}
}

func (p *Producer) Name() string { return "kafka" }

// Send implements events.Sink. The event kind travels as a record header.
func (p *Producer) Send(ctx context.Context, kind, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic:   p.topic,
		Value:   sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{{Key: []byte("kind"), Value: []byte(kind)}},
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	_, _, err := p.sync.SendMessage(msg)
	return err
}

func (p *Producer) Close() error {
	err := p.sync.Close()
	if p.client != nil && !p.client.Closed() {
		if cerr := p.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
