package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// KafkaNotifier publishes notification requests for the mailer to consume.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	logger   *zap.Logger
}

func NewKafkaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	return config
}

func NewKafkaNotifier(brokers []string, logger *zap.Logger) (*KafkaNotifier, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewKafkaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaNotifierWithProducer(producer, logger), nil
}

func NewKafkaNotifierWithProducer(producer sarama.SyncProducer, logger *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, logger: logger}
}

func (n *KafkaNotifier) NotifyDelivered(ctx context.Context, evt DeliveredEvent) error {
	return n.publish(TopicDelivered, evt.OrderID.String(), evt)
}

func (n *KafkaNotifier) NotifyRiskFlag(ctx context.Context, evt RiskFlagEvent) error {
	return n.publish(TopicRiskFlagged, evt.OrderID.String(), evt)
}

func (n *KafkaNotifier) publish(topic, key string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	partition, offset, err := n.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		n.logger.Error("failed to send message",
			zap.Error(err),
			zap.String("topic", topic),
			zap.String("key", key))
		return fmt.Errorf("failed to send message: %w", err)
	}

	n.logger.Debug("message sent",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.producer.Close()
}
