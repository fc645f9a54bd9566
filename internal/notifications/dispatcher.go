package notifications

import (
	"context"
	"fmt"

	"summitpass/internal/orders"
)

// Dispatcher is the outbound email contract consumed by reconciliation.
// A nil error means the notification is durably queued; delivery retries
// and dead-lettering are the pipeline's concern.
type Dispatcher interface {
	SendTicketEmail(ctx context.Context, order *orders.Order) error
	SendConfirmationEmail(ctx context.Context, order *orders.Order) error
}

type dispatcher struct {
	producer NotificationProducer
}

// NewDispatcher creates a Dispatcher backed by the Kafka producer.
func NewDispatcher(producer NotificationProducer) Dispatcher {
	return &dispatcher{producer: producer}
}

// ErrDispatchDisabled is returned by the disabled dispatcher. Completion
// flags stay false, so deliveries are retried once the pipeline is back.
var ErrDispatchDisabled = fmt.Errorf("notification pipeline disabled")

type disabledDispatcher struct{}

// NewDisabledDispatcher is the degraded-mode stand-in used when the broker
// is unreachable at startup.
func NewDisabledDispatcher() Dispatcher {
	return disabledDispatcher{}
}

func (disabledDispatcher) SendTicketEmail(context.Context, *orders.Order) error {
	return ErrDispatchDisabled
}

func (disabledDispatcher) SendConfirmationEmail(context.Context, *orders.Order) error {
	return ErrDispatchDisabled
}

func (d *dispatcher) SendTicketEmail(ctx context.Context, order *orders.Order) error {
	notification := NewEmailNotification(
		NotificationTypeTicket,
		order.ID.String(),
		order.CustomerEmail,
		order.CustomerName,
		"Your SummitPass ticket is here",
		map[string]interface{}{
			"customerName": order.CustomerName,
			"orderId":      order.ID.String(),
			"ticketType":   order.TicketType.String(),
			"quantity":     order.Quantity,
			"ticketCode":   order.TicketCode,
		},
	)

	if err := d.producer.PublishNotification(ctx, notification); err != nil {
		return fmt.Errorf("failed to queue ticket email: %w", err)
	}
	return nil
}

func (d *dispatcher) SendConfirmationEmail(ctx context.Context, order *orders.Order) error {
	notification := NewEmailNotification(
		NotificationTypePaymentConfirmation,
		order.ID.String(),
		order.CustomerEmail,
		order.CustomerName,
		"Payment received for your SummitPass order",
		map[string]interface{}{
			"customerName": order.CustomerName,
			"orderId":      order.ID.String(),
			"ticketType":   order.TicketType.String(),
			"quantity":     order.Quantity,
		},
	)

	if err := d.producer.PublishNotification(ctx, notification); err != nil {
		return fmt.Errorf("failed to queue confirmation email: %w", err)
	}
	return nil
}
