package kafka

import (
	"errors"
	"fmt"

	"PPDirect/logger"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// EnsureTopic 不存在就创建；已存在且分区数不足时扩分区（Kafka 只能增加分区）
func EnsureTopic(admin sarama.ClusterAdmin, topic string, app AppConfig) error {
	descs, err := admin.DescribeTopics([]string{topic})
	if err != nil {
		return fmt.Errorf("describe topic %s: %w", topic, err)
	}
	exists := len(descs) == 1 && errors.Is(descs[0].Err, sarama.ErrNoError)

	minISR := "1"
	if app.ReplicationFactor >= 3 {
		minISR = "2"
	}

	if !exists {
		td := &sarama.TopicDetail{
			NumPartitions:     app.PartitionsPerTopic,
			ReplicationFactor: app.ReplicationFactor,
			ConfigEntries: map[string]*string{
				"cleanup.policy":                 strPtr("delete"),
				"min.insync.replicas":            strPtr(minISR),
				"unclean.leader.election.enable": strPtr("false"),
				"compression.type":               strPtr("producer"),
			},
		}
		if err := admin.CreateTopic(topic, td, false); err != nil {
			var te *sarama.TopicError
			if (errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists) || errors.Is(err, sarama.ErrTopicAlreadyExists) {
				logger.Info("kafka topic exists (race)", zap.String("topic", topic))
				return nil
			}
			return fmt.Errorf("create topic %s: %w", topic, err)
		}
		logger.Info("kafka topic created", zap.String("topic", topic),
			zap.Int32("partitions", app.PartitionsPerTopic), zap.Int16("rf", app.ReplicationFactor))
		return nil
	}

	cur := int32(len(descs[0].Partitions))
	if app.PartitionsPerTopic > cur {
		if err := admin.CreatePartitions(topic, app.PartitionsPerTopic, nil, false); err != nil {
			return fmt.Errorf("expand partitions %s from %d to %d: %w", topic, cur, app.PartitionsPerTopic, err)
		}
		logger.Info("kafka partitions expanded", zap.String("topic", topic),
			zap.Int32("from", cur), zap.Int32("to", app.PartitionsPerTopic))
	}
	return nil
}

func strPtr(s string) *string { return &s }
