package stock

import (
	"time"
)

// TicketType identifies one of the fixed pool of ticket classes sold for
// the event.
type TicketType string

const (
	TicketTypeTwoDay   TicketType = "2-day"
	TicketTypeThreeDay TicketType = "3-day"
	TicketTypeVIP      TicketType = "vip"
)

// AllTicketTypes lists every sellable ticket type.
var AllTicketTypes = []TicketType{TicketTypeTwoDay, TicketTypeThreeDay, TicketTypeVIP}

// IsValid checks if the ticket type is one of the known classes
func (t TicketType) IsValid() bool {
	switch t {
	case TicketTypeTwoDay, TicketTypeThreeDay, TicketTypeVIP:
		return true
	}
	return false
}

// String returns the string representation of TicketType
func (t TicketType) String() string {
	return string(t)
}

// TicketTypeStock is the per-type capacity ledger. Invariant:
// sold + reserved <= total.
type TicketTypeStock struct {
	TicketType TicketType `gorm:"type:varchar(20);primaryKey" json:"ticket_type"`
	Total      int        `gorm:"not null;check:total >= 0" json:"total"`
	Sold       int        `gorm:"not null;default:0" json:"sold"`
	Reserved   int        `gorm:"not null;default:0" json:"reserved"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName sets the table name for TicketTypeStock
func (TicketTypeStock) TableName() string {
	return "ticket_type_stocks"
}

// Remaining returns the units still purchasable right now.
func (s *TicketTypeStock) Remaining() int {
	return s.Total - s.Sold - s.Reserved
}

// SoldOut reports whether no unit can currently be reserved.
func (s *TicketTypeStock) SoldOut() bool {
	return s.Remaining() <= 0
}

// StockView is the public availability payload for one ticket type.
type StockView struct {
	Type      string `json:"type"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
	Total     int    `json:"total"`
	Sold      int    `json:"sold"`
	SoldOut   bool   `json:"soldOut"`
}

// ToView converts a ledger row into its public representation.
func (s *TicketTypeStock) ToView() StockView {
	return StockView{
		Type:      s.TicketType.String(),
		Available: s.Remaining(),
		Reserved:  s.Reserved,
		Total:     s.Total,
		Sold:      s.Sold,
		SoldOut:   s.SoldOut(),
	}
}
