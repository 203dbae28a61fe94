package kafka

import (
	"strings"
	"time"

	"github.com/Shopify/sarama"
)

// AppConfig 事件外发使用的 Kafka 配置
type AppConfig struct {
	Brokers             []string
	Topic               string
	PartitionsPerTopic  int32 // 单机演示 8；生产按需
	ReplicationFactor   int16 // 单机=1；生产=3
	ProducerRetries     int
	ProducerCompression string // none/snappy/lz4/zstd
	KafkaVersion        sarama.KafkaVersion
	EnsureTopic         bool
}

func DefaultConfig() AppConfig {
	return AppConfig{
		Brokers:             []string{"127.0.0.1:9092"},
		Topic:               "ppdirect.events",
		PartitionsPerTopic:  8,
		ReplicationFactor:   1,
		ProducerRetries:     5,
		ProducerCompression: "snappy",
		KafkaVersion:        sarama.V2_1_0_0,
	}
}

func BuildBaseConfig(app AppConfig) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = app.KafkaVersion
	cfg.ClientID = "ppdirect"

	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	if app.ProducerRetries <= 0 {
		app.ProducerRetries = 1
	}
	cfg.Producer.Retry.Max = app.ProducerRetries
	cfg.Producer.Partitioner = sarama.NewHashPartitioner // Key 决定分区，同一会话保序
	switch strings.ToLower(app.ProducerCompression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg
}
