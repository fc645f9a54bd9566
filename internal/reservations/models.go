package reservations

import (
	"time"

	"github.com/google/uuid"

	"summitpass/internal/stock"
)

// Reservation is a time-boxed hold of stock tied to one purchase attempt.
// It joins the order (user-facing state) to the ledger (capacity) and
// carries the expiry contract.
type Reservation struct {
	ID            uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OrderID       uuid.UUID        `gorm:"type:uuid;uniqueIndex;not null" json:"order_id"`
	PaymentID     *string          `gorm:"type:varchar(64);uniqueIndex" json:"payment_id,omitempty"`
	TicketType    stock.TicketType `gorm:"type:varchar(20);not null" json:"ticket_type"`
	Quantity      int              `gorm:"not null" json:"quantity"`
	CustomerEmail string           `gorm:"type:varchar(255);not null" json:"customer_email"`
	Status        Status           `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	ExpiresAt     time.Time        `gorm:"index" json:"expires_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// TableName sets the table name for Reservation
func (Reservation) TableName() string {
	return "reservations"
}

// IsActive reports whether the reservation still holds stock.
func (r *Reservation) IsActive() bool {
	return r.Status == StatusActive
}

// ExpiredAt reports whether the reservation had passed its deadline at t.
func (r *Reservation) ExpiredAt(t time.Time) bool {
	return t.After(r.ExpiresAt)
}

// RemainingAt returns the time left on the hold at t, floored at zero.
func (r *Reservation) RemainingAt(t time.Time) time.Duration {
	remaining := r.ExpiresAt.Sub(t)
	if remaining < 0 {
		return 0
	}
	return remaining
}
