package orders

import (
	"time"

	"github.com/google/uuid"

	"summitpass/internal/stock"
)

// Order is the durable record of a purchase attempt and the source of
// truth for user-facing state. Orders are never deleted; they are the
// audit trail of the sale.
type Order struct {
	ID            uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CustomerName  string           `gorm:"type:varchar(255);not null" json:"customer_name"`
	CustomerEmail string           `gorm:"type:varchar(255);not null;index" json:"customer_email"`
	TicketType    stock.TicketType `gorm:"type:varchar(20);not null" json:"ticket_type"`
	Quantity      int              `gorm:"not null" json:"quantity"`
	UnitPrice     float64          `gorm:"not null" json:"unit_price"`
	TotalAmount   float64          `gorm:"not null" json:"total_amount"`
	Currency      string           `gorm:"type:varchar(10);not null;default:'usd'" json:"currency"`

	// Gateway-assigned payment fields
	PaymentID     *string       `gorm:"type:varchar(64);uniqueIndex" json:"payment_id,omitempty"`
	PaymentStatus PaymentStatus `gorm:"type:varchar(20);not null;default:'waiting';index" json:"payment_status"`
	PayAddress    string        `gorm:"type:varchar(255)" json:"pay_address,omitempty"`
	PayAmount     float64       `json:"pay_amount,omitempty"`
	PayCurrency   string        `gorm:"type:varchar(10)" json:"pay_currency,omitempty"`

	// Fulfillment flags; each transitions false -> true exactly once via a
	// conditional claim in the repository
	TicketGenerated              bool       `gorm:"not null;default:false" json:"ticket_generated"`
	TicketCode                   string     `gorm:"type:varchar(255)" json:"ticket_code,omitempty"`
	EmailSent                    bool       `gorm:"not null;default:false" json:"email_sent"`
	PaymentConfirmationEmailSent bool       `gorm:"not null;default:false" json:"payment_confirmation_email_sent"`
	LastEmailSentAt              *time.Time `json:"last_email_sent_at,omitempty"`

	Notes     string    `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName sets the table name for Order
func (Order) TableName() string {
	return "orders"
}

// IsFinished reports whether the order is fully paid.
func (o *Order) IsFinished() bool {
	return o.PaymentStatus == StatusFinished
}

// Snapshot is the order representation returned by the polling endpoint.
type Snapshot struct {
	OrderID         string     `json:"orderId"`
	PaymentID       string     `json:"paymentId,omitempty"`
	CustomerName    string     `json:"customerName"`
	CustomerEmail   string     `json:"customerEmail"`
	TicketType      string     `json:"ticketType"`
	Quantity        int        `json:"quantity"`
	UnitPrice       float64    `json:"unitPrice"`
	TotalAmount     float64    `json:"totalAmount"`
	Currency        string     `json:"currency"`
	PaymentStatus   string     `json:"paymentStatus"`
	PayAddress      string     `json:"payAddress,omitempty"`
	PayAmount       float64    `json:"payAmount,omitempty"`
	PayCurrency     string     `json:"payCurrency,omitempty"`
	TicketGenerated bool       `json:"ticketGenerated"`
	EmailSent       bool       `json:"emailSent"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	LastEmailSentAt *time.Time `json:"lastEmailSentAt,omitempty"`
}

// ToSnapshot converts an Order into its polling representation.
func (o *Order) ToSnapshot() Snapshot {
	paymentID := ""
	if o.PaymentID != nil {
		paymentID = *o.PaymentID
	}
	return Snapshot{
		OrderID:         o.ID.String(),
		PaymentID:       paymentID,
		CustomerName:    o.CustomerName,
		CustomerEmail:   o.CustomerEmail,
		TicketType:      o.TicketType.String(),
		Quantity:        o.Quantity,
		UnitPrice:       o.UnitPrice,
		TotalAmount:     o.TotalAmount,
		Currency:        o.Currency,
		PaymentStatus:   o.PaymentStatus.String(),
		PayAddress:      o.PayAddress,
		PayAmount:       o.PayAmount,
		PayCurrency:     o.PayCurrency,
		TicketGenerated: o.TicketGenerated,
		EmailSent:       o.EmailSent,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		LastEmailSentAt: o.LastEmailSentAt,
	}
}
