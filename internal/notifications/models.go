package notifications

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType distinguishes the transactional emails this system
// sends.
type NotificationType string

const (
	NotificationTypeTicket              NotificationType = "TICKET"
	NotificationTypePaymentConfirmation NotificationType = "PAYMENT_CONFIRMATION"
)

// NotificationStatus tracks a message through the pipeline.
type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "PENDING"
	NotificationStatusQueued  NotificationStatus = "QUEUED"
	NotificationStatusSent    NotificationStatus = "SENT"
	NotificationStatusFailed  NotificationStatus = "FAILED"
)

// EmailNotification is the message published to the notification topic
// and consumed by the SMTP workers.
type EmailNotification struct {
	ID   uuid.UUID        `json:"id"`
	Type NotificationType `json:"type"`

	RecipientEmail string `json:"recipient_email"`
	RecipientName  string `json:"recipient_name"`

	Subject      string                 `json:"subject"`
	TemplateData map[string]interface{} `json:"template_data"`

	OrderID string `json:"order_id"`

	Status     NotificationStatus `json:"status"`
	RetryCount int                `json:"retry_count"`
	MaxRetries int                `json:"max_retries"`
	LastError  *string            `json:"last_error,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	SentAt     *time.Time         `json:"sent_at,omitempty"`
}

// NewEmailNotification creates a pending notification for an order.
func NewEmailNotification(notificationType NotificationType, orderID, email, name, subject string, data map[string]interface{}) *EmailNotification {
	return &EmailNotification{
		ID:             uuid.New(),
		Type:           notificationType,
		RecipientEmail: email,
		RecipientName:  name,
		Subject:        subject,
		TemplateData:   data,
		OrderID:        orderID,
		Status:         NotificationStatusPending,
		MaxRetries:     3,
		CreatedAt:      time.Now().UTC(),
	}
}
