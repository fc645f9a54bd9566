package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"summitpass/pkg/logger"
)

// NotificationConsumer reads notifications off Kafka and delivers them via
// the email service. Messages that exhaust their retries go to the dead
// letter topic for manual inspection.
type NotificationConsumer interface {
	Start(ctx context.Context) error
	Stop() error
}

type kafkaNotificationConsumer struct {
	consumerGroup sarama.ConsumerGroup
	dlqProducer   sarama.SyncProducer
	topics        []string
	dlqTopic      string
	emailService  EmailService
	log           *logger.Logger
	cancel        context.CancelFunc
}

// NewKafkaNotificationConsumer creates a consumer-group worker for the
// notification topic.
func NewKafkaNotificationConsumer(brokers []string, groupID, topic, dlqTopic string, emailService EmailService, log *logger.Logger) (NotificationConsumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Group.Session.Timeout = 30 * time.Second
	saramaConfig.Consumer.Group.Heartbeat.Interval = 3 * time.Second
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	dlqConfig := sarama.NewConfig()
	dlqConfig.Producer.Return.Successes = true
	dlqConfig.Producer.RequiredAcks = sarama.WaitForAll
	dlqProducer, err := sarama.NewSyncProducer(brokers, dlqConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create DLQ producer: %w", err)
	}

	return &kafkaNotificationConsumer{
		consumerGroup: consumerGroup,
		dlqProducer:   dlqProducer,
		topics:        []string{topic},
		dlqTopic:      dlqTopic,
		emailService:  emailService,
		log:           log,
	}, nil
}

func (c *kafkaNotificationConsumer) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	go func() {
		for err := range c.consumerGroup.Errors() {
			c.log.ErrorWithContext(ctx, "Notification consumer error", err, nil)
		}
	}()

	go func() {
		handler := &consumerGroupHandler{consumer: c}
		for {
			if err := c.consumerGroup.Consume(ctx, c.topics, handler); err != nil {
				c.log.ErrorWithContext(ctx, "Notification consume loop failed", err, nil)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	return nil
}

func (c *kafkaNotificationConsumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	if err := c.consumerGroup.Close(); err != nil {
		return err
	}
	return c.dlqProducer.Close()
}

// deliver attempts SMTP delivery with bounded retries, then dead-letters.
func (c *kafkaNotificationConsumer) deliver(ctx context.Context, raw []byte) {
	var notification EmailNotification
	if err := json.Unmarshal(raw, &notification); err != nil {
		c.log.ErrorWithContext(ctx, "Undecodable notification message", err, nil)
		return
	}

	var lastErr error
	for attempt := 0; attempt <= notification.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
		if lastErr = c.emailService.SendNotification(ctx, &notification); lastErr == nil {
			now := time.Now().UTC()
			notification.Status = NotificationStatusSent
			notification.SentAt = &now
			return
		}
		notification.RetryCount = attempt + 1
	}

	errMsg := lastErr.Error()
	notification.Status = NotificationStatusFailed
	notification.LastError = &errMsg
	c.log.ErrorWithContext(ctx, "Notification delivery failed, dead-lettering", lastErr, map[string]interface{}{
		"order_id": notification.OrderID,
		"type":     string(notification.Type),
	})
	c.deadLetter(&notification)
}

func (c *kafkaNotificationConsumer) deadLetter(notification *EmailNotification) {
	payload, err := json.Marshal(notification)
	if err != nil {
		return
	}
	_, _, _ = c.dlqProducer.SendMessage(&sarama.ProducerMessage{
		Topic: c.dlqTopic,
		Key:   sarama.StringEncoder(notification.RecipientEmail),
		Value: sarama.ByteEncoder(payload),
	})
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *kafkaNotificationConsumer
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		h.consumer.deliver(session.Context(), message.Value)
		session.MarkMessage(message, "")
	}
	return nil
}
