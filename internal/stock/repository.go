package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInsufficientStock is returned when a reserve attempt cannot be
	// satisfied by the remaining capacity.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInconsistentLedger is returned when a confirm-sale found fewer
	// reserved units than it was asked to convert.
	ErrInconsistentLedger = errors.New("inconsistent stock ledger")

	// ErrUnknownTicketType is returned for ticket types outside the fixed enum.
	ErrUnknownTicketType = errors.New("unknown ticket type")
)

// Repository is the storage contract of the stock ledger. Every mutation is
// a single conditional UPDATE: correctness under concurrent purchase
// requests depends on the database applying check and increment in one
// statement, never on the caller reading first.
type Repository interface {
	GetStock(ctx context.Context, ticketType TicketType) (*TicketTypeStock, error)
	ListStock(ctx context.Context) ([]TicketTypeStock, error)

	// TryReserve increments reserved by quantity only if the remaining
	// capacity covers it. Returns ErrInsufficientStock when it does not.
	TryReserve(ctx context.Context, ticketType TicketType, quantity int) error

	// ConfirmSale converts quantity reserved units into sold units.
	// Returns ErrInconsistentLedger when fewer than quantity units were
	// reserved.
	ConfirmSale(ctx context.Context, ticketType TicketType, quantity int) error

	// ReleaseReservation returns quantity reserved units to the pool,
	// floored at zero.
	ReleaseReservation(ctx context.Context, ticketType TicketType, quantity int) error

	// Seed creates or updates the capacity row for a ticket type.
	Seed(ctx context.Context, ticketType TicketType, total int) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetStock(ctx context.Context, ticketType TicketType) (*TicketTypeStock, error) {
	var row TicketTypeStock
	err := r.db.WithContext(ctx).
		Where("ticket_type = ?", ticketType).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) ListStock(ctx context.Context) ([]TicketTypeStock, error) {
	var rows []TicketTypeStock
	err := r.db.WithContext(ctx).
		Order("ticket_type ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) TryReserve(ctx context.Context, ticketType TicketType, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("invalid quantity %d", quantity)
	}

	// Check-and-increment in one statement. Two racing callers for the
	// last unit serialize on the row; only one UPDATE matches.
	result := r.db.WithContext(ctx).
		Model(&TicketTypeStock{}).
		Where("ticket_type = ? AND sold + reserved + ? <= total", ticketType, quantity).
		Updates(map[string]interface{}{
			"reserved":   gorm.Expr("reserved + ?", quantity),
			"updated_at": time.Now().UTC(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to reserve stock: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (r *repository) ConfirmSale(ctx context.Context, ticketType TicketType, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("invalid quantity %d", quantity)
	}

	result := r.db.WithContext(ctx).
		Model(&TicketTypeStock{}).
		Where("ticket_type = ? AND reserved >= ?", ticketType, quantity).
		Updates(map[string]interface{}{
			"reserved":   gorm.Expr("reserved - ?", quantity),
			"sold":       gorm.Expr("sold + ?", quantity),
			"updated_at": time.Now().UTC(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to confirm sale: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInconsistentLedger
	}
	return nil
}

func (r *repository) ReleaseReservation(ctx context.Context, ticketType TicketType, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("invalid quantity %d", quantity)
	}

	result := r.db.WithContext(ctx).
		Model(&TicketTypeStock{}).
		Where("ticket_type = ?", ticketType).
		Updates(map[string]interface{}{
			"reserved":   gorm.Expr("GREATEST(reserved - ?, 0)", quantity),
			"updated_at": time.Now().UTC(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to release reservation: %w", result.Error)
	}
	return nil
}

func (r *repository) Seed(ctx context.Context, ticketType TicketType, total int) error {
	if total < 0 {
		return fmt.Errorf("invalid total %d", total)
	}

	row := TicketTypeStock{
		TicketType: ticketType,
		Total:      total,
		UpdatedAt:  time.Now().UTC(),
	}

	// Upsert: seeding an existing type adjusts capacity without touching
	// sold/reserved counters.
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ticket_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"total", "updated_at"}),
		}).
		Create(&row).Error
}
