package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository is the storage contract for reservations. Status transitions
// are conditional updates guarded on the current status so replayed events
// and concurrent sweeps cannot apply a transition twice.
type Repository interface {
	Create(ctx context.Context, reservation *Reservation) error
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*Reservation, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*Reservation, error)

	// AttachPayment records the gateway-assigned payment id; only legal
	// while the payment id is still unset.
	AttachPayment(ctx context.Context, orderID uuid.UUID, paymentID string) error

	// TransitionFromActive moves the reservation out of active into the
	// given terminal status. Returns (false, nil) when the reservation was
	// no longer active, so the caller can treat a replay as a no-op.
	TransitionFromActive(ctx context.Context, id uuid.UUID, to Status) (bool, error)

	// ListExpiredActive returns active reservations whose deadline passed
	// before now.
	ListExpiredActive(ctx context.Context, now time.Time) ([]Reservation, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, reservation *Reservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *repository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*Reservation, error) {
	var reservation Reservation
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) GetByPaymentID(ctx context.Context, paymentID string) (*Reservation, error) {
	var reservation Reservation
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) AttachPayment(ctx context.Context, orderID uuid.UUID, paymentID string) error {
	result := r.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("order_id = ? AND payment_id IS NULL", orderID).
		Updates(map[string]interface{}{
			"payment_id": paymentID,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) TransitionFromActive(ctx context.Context, id uuid.UUID, to Status) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("id = ? AND status = ?", id, StatusActive).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) ListExpiredActive(ctx context.Context, now time.Time) ([]Reservation, error) {
	var rows []Reservation
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", StatusActive, now).
		Find(&rows).Error
	return rows, err
}
