package reservations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"summitpass/internal/shared/clock"
	"summitpass/internal/stock"
	"summitpass/pkg/logger"
)

var (
	// ErrInvalidTransition is returned when cancel is attempted on a
	// reservation that is not active. Confirm treats the same situation as
	// a no-op instead, because reconciliation replays events.
	ErrInvalidTransition = errors.New("invalid reservation transition")

	// ErrNotFound is returned when no reservation matches the identifier.
	ErrNotFound = errors.New("reservation not found")
)

// StockLedger is the slice of the stock service the reservation manager
// needs (avoids the full dependency and keeps tests small).
type StockLedger interface {
	TryReserve(ctx context.Context, ticketType stock.TicketType, quantity int) error
	ReleaseReservation(ctx context.Context, ticketType stock.TicketType, quantity int) error
}

// Service interface defines the contract for reservation business logic
type Service interface {
	// Reserve checks capacity and creates a time-boxed hold in one flow.
	// Returns stock.ErrInsufficientStock without any ledger mutation when
	// capacity is exhausted.
	Reserve(ctx context.Context, orderID uuid.UUID, ticketType stock.TicketType, quantity int, customerEmail string) (*Reservation, error)

	// AttachPayment records the gateway payment id once the intent exists.
	AttachPayment(ctx context.Context, orderID uuid.UUID, paymentID string) error

	// Confirm transitions the reservation to confirmed. Confirming a
	// non-active reservation is a no-op, not an error. The boolean reports
	// whether this call performed the transition: exactly one caller ever
	// sees true, which gates the one-time sale confirmation in the ledger.
	Confirm(ctx context.Context, paymentID string) (bool, error)

	// Cancel transitions to cancelled and releases the held stock. Only
	// legal from active.
	Cancel(ctx context.Context, paymentID string) error

	// CancelByOrderID is Cancel keyed by order id, for holds that never
	// got a payment intent attached.
	CancelByOrderID(ctx context.Context, orderID uuid.UUID) error

	// Expire transitions to expired and releases the held stock. Only
	// legal from active; a replay is a no-op.
	Expire(ctx context.Context, paymentID string) error

	// SweepExpired expires every active reservation past its deadline and
	// releases its stock. Safe to run concurrently with itself.
	SweepExpired(ctx context.Context) (int, error)

	// TimeRemaining reports the validity window left on the hold.
	TimeRemaining(ctx context.Context, paymentID string) (*RemainingTime, error)
}

// RemainingTime is the countdown payload for a payment's reservation.
type RemainingTime struct {
	Valid         bool  `json:"valid"`
	TimeRemaining int64 `json:"timeRemaining"` // seconds
	Expired       bool  `json:"expired"`
}

type service struct {
	repo   Repository
	ledger StockLedger
	clock  clock.Clock
	ttl    time.Duration
	log    *logger.Logger
}

// NewService creates a new reservation service instance
func NewService(repo Repository, ledger StockLedger, clk clock.Clock, ttl time.Duration, log *logger.Logger) Service {
	return &service{
		repo:   repo,
		ledger: ledger,
		clock:  clk,
		ttl:    ttl,
		log:    log,
	}
}

func (s *service) Reserve(ctx context.Context, orderID uuid.UUID, ticketType stock.TicketType, quantity int, customerEmail string) (*Reservation, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("invalid quantity %d", quantity)
	}

	// Capacity check and increment happen atomically in the ledger
	if err := s.ledger.TryReserve(ctx, ticketType, quantity); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	reservation := &Reservation{
		OrderID:       orderID,
		TicketType:    ticketType,
		Quantity:      quantity,
		CustomerEmail: customerEmail,
		Status:        StatusActive,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, reservation); err != nil {
		// The ledger increment already happened; give the units back so a
		// failed insert cannot leak held stock.
		if releaseErr := s.ledger.ReleaseReservation(ctx, ticketType, quantity); releaseErr != nil {
			s.log.ErrorWithContext(ctx, "Failed to release stock after reservation insert failure", releaseErr, map[string]interface{}{
				"order_id": orderID.String(),
			})
		}
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}

	return reservation, nil
}

func (s *service) AttachPayment(ctx context.Context, orderID uuid.UUID, paymentID string) error {
	if err := s.repo.AttachPayment(ctx, orderID, paymentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to attach payment: %w", err)
	}
	return nil
}

func (s *service) Confirm(ctx context.Context, paymentID string) (bool, error) {
	reservation, err := s.getByPaymentID(ctx, paymentID)
	if err != nil {
		return false, err
	}

	transitioned, err := s.repo.TransitionFromActive(ctx, reservation.ID, StatusConfirmed)
	if err != nil {
		return false, fmt.Errorf("failed to confirm reservation: %w", err)
	}
	// transitioned == false means a replayed confirmation hit a reservation
	// that already left the active state. Not an error.
	return transitioned, nil
}

func (s *service) Cancel(ctx context.Context, paymentID string) error {
	reservation, err := s.getByPaymentID(ctx, paymentID)
	if err != nil {
		return err
	}

	transitioned, err := s.repo.TransitionFromActive(ctx, reservation.ID, StatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to cancel reservation: %w", err)
	}
	if !transitioned {
		return ErrInvalidTransition
	}

	return s.ledger.ReleaseReservation(ctx, reservation.TicketType, reservation.Quantity)
}

func (s *service) CancelByOrderID(ctx context.Context, orderID uuid.UUID) error {
	reservation, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load reservation: %w", err)
	}

	transitioned, err := s.repo.TransitionFromActive(ctx, reservation.ID, StatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to cancel reservation: %w", err)
	}
	if !transitioned {
		return ErrInvalidTransition
	}

	return s.ledger.ReleaseReservation(ctx, reservation.TicketType, reservation.Quantity)
}

func (s *service) Expire(ctx context.Context, paymentID string) error {
	reservation, err := s.getByPaymentID(ctx, paymentID)
	if err != nil {
		return err
	}

	transitioned, err := s.repo.TransitionFromActive(ctx, reservation.ID, StatusExpired)
	if err != nil {
		return fmt.Errorf("failed to expire reservation: %w", err)
	}
	if !transitioned {
		return nil
	}

	return s.ledger.ReleaseReservation(ctx, reservation.TicketType, reservation.Quantity)
}

func (s *service) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.repo.ListExpiredActive(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to list expired reservations: %w", err)
	}

	count := 0
	for i := range expired {
		reservation := &expired[i]

		// Conditional per-row transition: a concurrent sweep (or a webhook
		// landing at the same moment) loses the race and skips the release.
		transitioned, err := s.repo.TransitionFromActive(ctx, reservation.ID, StatusExpired)
		if err != nil {
			s.log.ErrorWithContext(ctx, "Failed to expire reservation", err, map[string]interface{}{
				"reservation_id": reservation.ID.String(),
			})
			continue
		}
		if !transitioned {
			continue
		}

		if err := s.ledger.ReleaseReservation(ctx, reservation.TicketType, reservation.Quantity); err != nil {
			s.log.ErrorWithContext(ctx, "Failed to release stock for expired reservation", err, map[string]interface{}{
				"reservation_id": reservation.ID.String(),
			})
			continue
		}
		count++
	}

	return count, nil
}

func (s *service) TimeRemaining(ctx context.Context, paymentID string) (*RemainingTime, error) {
	reservation, err := s.getByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	expired := reservation.ExpiredAt(now) || reservation.Status == StatusExpired

	return &RemainingTime{
		Valid:         reservation.IsActive() && !expired,
		TimeRemaining: int64(reservation.RemainingAt(now).Seconds()),
		Expired:       expired,
	}, nil
}

func (s *service) getByPaymentID(ctx context.Context, paymentID string) (*Reservation, error) {
	reservation, err := s.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load reservation: %w", err)
	}
	return reservation, nil
}
