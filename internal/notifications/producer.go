package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"summitpass/internal/shared/config"
)

// NotificationProducer publishes notifications to the Kafka pipeline.
type NotificationProducer interface {
	PublishNotification(ctx context.Context, notification *EmailNotification) error
	Close() error
}

// KafkaNotificationProducer is a synchronous, idempotent producer. A
// successful publish means the message is durably acknowledged by all
// in-sync replicas; upstream flag-setting relies on that guarantee.
type KafkaNotificationProducer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaNotificationProducer creates a new Kafka notification producer
func NewKafkaNotificationProducer(cfg config.KafkaConfig) (NotificationProducer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Timeout = 10 * time.Second
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1

	// Hash partitioner keeps one recipient's messages in order
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &KafkaNotificationProducer{
		producer: producer,
		topic:    cfg.NotificationTopic,
	}, nil
}

func (p *KafkaNotificationProducer) PublishNotification(ctx context.Context, notification *EmailNotification) error {
	notification.Status = NotificationStatusQueued

	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(notification.RecipientEmail),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(notification.Type)},
			{Key: []byte("order_id"), Value: []byte(notification.OrderID)},
		},
	}

	if _, _, err := p.producer.SendMessage(message); err != nil {
		notification.Status = NotificationStatusFailed
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

func (p *KafkaNotificationProducer) Close() error {
	return p.producer.Close()
}
