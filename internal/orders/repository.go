package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrStatusConflict is returned when a conditional status write lost a
// race: the stored status changed between the caller's read and its write.
var ErrStatusConflict = errors.New("order status changed concurrently")

// Repository is the storage contract for orders. UpdateStatus is a
// compare-and-set on the stored status, and every fulfillment flag is a
// one-way conditional claim, so concurrent webhook and poll processing can
// never apply an effect twice.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*Order, error)

	// AttachPayment records the gateway payment intent fields.
	AttachPayment(ctx context.Context, orderID uuid.UUID, paymentID, payAddress string, payAmount float64, payCurrency string) error

	// UpdateStatus moves payment_status from `from` to `to` in one
	// conditional write. Returns ErrStatusConflict when the stored status
	// was no longer `from`.
	UpdateStatus(ctx context.Context, paymentID string, from, to PaymentStatus) error

	// ForceStatus overwrites the status unconditionally; reserved for the
	// admin resync escape hatch.
	ForceStatus(ctx context.Context, paymentID string, to PaymentStatus) error

	// ClaimTicketGeneration flips ticket_generated false->true and stores
	// the code. Returns (false, nil) if the flag was already claimed.
	ClaimTicketGeneration(ctx context.Context, orderID uuid.UUID, ticketCode string) (bool, error)

	// MarkTicketEmailSent flips email_sent false->true. Returns (false,
	// nil) if already set.
	MarkTicketEmailSent(ctx context.Context, orderID uuid.UUID, sentAt time.Time) (bool, error)

	// MarkConfirmationEmailSent flips payment_confirmation_email_sent
	// false->true. Returns (false, nil) if already set.
	MarkConfirmationEmailSent(ctx context.Context, orderID uuid.UUID, sentAt time.Time) (bool, error)

	// TouchEmailSentAt records a manual re-send for cooldown accounting.
	TouchEmailSentAt(ctx context.Context, orderID uuid.UUID, sentAt time.Time) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, order *Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetByPaymentID(ctx context.Context, paymentID string) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) AttachPayment(ctx context.Context, orderID uuid.UUID, paymentID, payAddress string, payAmount float64, payCurrency string) error {
	result := r.db.WithContext(ctx).
		Model(&Order{}).
		Where("id = ? AND payment_id IS NULL", orderID).
		Updates(map[string]interface{}{
			"payment_id":   paymentID,
			"pay_address":  payAddress,
			"pay_amount":   payAmount,
			"pay_currency": payCurrency,
			"updated_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) UpdateStatus(ctx context.Context, paymentID string, from, to PaymentStatus) error {
	result := r.db.WithContext(ctx).
		Model(&Order{}).
		Where("payment_id = ? AND payment_status = ?", paymentID, from).
		Updates(map[string]interface{}{
			"payment_status": to,
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *repository) ForceStatus(ctx context.Context, paymentID string, to PaymentStatus) error {
	result := r.db.WithContext(ctx).
		Model(&Order{}).
		Where("payment_id = ?", paymentID).
		Updates(map[string]interface{}{
			"payment_status": to,
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) ClaimTicketGeneration(ctx context.Context, orderID uuid.UUID, ticketCode string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&Order{}).
		Where("id = ? AND ticket_generated = false", orderID).
		Updates(map[string]interface{}{
			"ticket_generated": true,
			"ticket_code":      ticketCode,
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) MarkTicketEmailSent(ctx context.Context, orderID uuid.UUID, sentAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&Order{}).
		Where("id = ? AND email_sent = false", orderID).
		Updates(map[string]interface{}{
			"email_sent":         true,
			"last_email_sent_at": sentAt,
			"updated_at":         time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) MarkConfirmationEmailSent(ctx context.Context, orderID uuid.UUID, sentAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&Order{}).
		Where("id = ? AND payment_confirmation_email_sent = false", orderID).
		Updates(map[string]interface{}{
			"payment_confirmation_email_sent": true,
			"updated_at":                      time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) TouchEmailSentAt(ctx context.Context, orderID uuid.UUID, sentAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"last_email_sent_at": sentAt,
			"updated_at":         time.Now().UTC(),
		}).Error
}
