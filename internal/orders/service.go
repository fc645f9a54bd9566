package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"summitpass/internal/payments"
	"summitpass/internal/reservations"
	"summitpass/internal/shared/clock"
	"summitpass/internal/shared/config"
	"summitpass/internal/stock"
	"summitpass/pkg/logger"
)

var (
	// ErrNotFound is returned when no order matches the lookup.
	ErrNotFound = errors.New("order not found")

	// ErrInvalidTicketType is returned for ticket types outside the event's
	// fixed catalogue.
	ErrInvalidTicketType = errors.New("invalid ticket type")

	// ErrInvalidQuantity is returned when the requested quantity is out of
	// the allowed range.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrNotCancellable is returned when a cancel request arrives for an
	// order whose payment already left the waiting state.
	ErrNotCancellable = errors.New("order can no longer be cancelled")

	// ErrResendNotEligible is returned when a manual re-send is requested
	// for an order that is not finished yet.
	ErrResendNotEligible = errors.New("order has no ticket email to re-send")
)

// CooldownError carries the remaining wait when a manual re-send lands
// inside the cooldown window.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("re-send on cooldown for another %s", e.Remaining.Round(time.Second))
}

// TicketEmailSender re-sends the ticket email for a finished order.
// Satisfied by the notification dispatcher; declared here so the purchase
// surface does not depend on the pipeline package.
type TicketEmailSender interface {
	SendTicketEmail(ctx context.Context, order *Order) error
}

// Reconciler is the slice of the reconciliation engine the status poll
// endpoint needs.
type Reconciler interface {
	PollStatus(ctx context.Context, paymentID string) (*Order, error)
}

// Service owns the customer-facing purchase lifecycle: create the hold,
// open the payment intent, cancel while still possible, and manual ticket
// re-sends.
type Service interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*PurchaseResponse, error)
	CancelOrder(ctx context.Context, paymentID string) (*Order, error)
	PollStatus(ctx context.Context, paymentID string) (*Order, error)
	ResendTicketEmail(ctx context.Context, orderID uuid.UUID) error
	ReservationTime(ctx context.Context, paymentID string) (*reservations.RemainingTime, error)
}

type service struct {
	repo         Repository
	reservations reservations.Service
	gateway      payments.Client
	reconciler   Reconciler
	emailSender  TicketEmailSender
	clock        clock.Clock
	cfg          *config.Config
	log          *logger.Logger
}

func NewService(
	repo Repository,
	reservationSvc reservations.Service,
	gateway payments.Client,
	reconciler Reconciler,
	emailSender TicketEmailSender,
	clk clock.Clock,
	cfg *config.Config,
	log *logger.Logger,
) Service {
	return &service{
		repo:         repo,
		reservations: reservationSvc,
		gateway:      gateway,
		reconciler:   reconciler,
		emailSender:  emailSender,
		clock:        clk,
		cfg:          cfg,
		log:          log,
	}
}

func (s *service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*PurchaseResponse, error) {
	ticketType := stock.TicketType(req.TicketType)
	if !ticketType.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTicketType, req.TicketType)
	}
	if req.Quantity < 1 || req.Quantity > s.cfg.Tickets.MaxQuantityPerOrder {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, req.Quantity)
	}

	unitPrice, ok := s.cfg.Tickets.Prices[req.TicketType]
	if !ok {
		return nil, fmt.Errorf("%w: no price for %q", ErrInvalidTicketType, req.TicketType)
	}
	totalAmount := unitPrice * float64(req.Quantity)

	orderID := uuid.New()

	// Hold stock first: the payment intent is only worth opening if the
	// tickets are actually there.
	if _, err := s.reservations.Reserve(ctx, orderID, ticketType, req.Quantity, req.CustomerEmail); err != nil {
		return nil, err
	}

	intent, err := s.gateway.CreatePayment(ctx, payments.CreatePaymentRequest{
		PriceAmount:      totalAmount,
		PriceCurrency:    s.cfg.Gateway.PriceCurrency,
		PayCurrency:      s.cfg.Gateway.PayCurrency,
		OrderID:          orderID.String(),
		OrderDescription: fmt.Sprintf("%d x %s pass", req.Quantity, req.TicketType),
		IPNCallbackURL:   s.cfg.Gateway.CallbackURL,
	})
	if err != nil {
		// No payment, no order. Give the tickets back.
		if cancelErr := s.cancelFreshHold(ctx, orderID); cancelErr != nil {
			s.log.ErrorWithContext(ctx, "Failed to release hold after gateway failure", cancelErr, map[string]interface{}{
				"order_id": orderID.String(),
			})
		}
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	paymentID := intent.PaymentID.String()

	order := &Order{
		ID:            orderID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		TicketType:    ticketType,
		Quantity:      req.Quantity,
		UnitPrice:     unitPrice,
		TotalAmount:   totalAmount,
		Currency:      s.cfg.Gateway.PriceCurrency,
		PaymentStatus: StatusWaiting,
	}
	if err := s.repo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}

	if err := s.repo.AttachPayment(ctx, orderID, paymentID, intent.PayAddress, intent.PayAmount, intent.PayCurrency); err != nil {
		return nil, fmt.Errorf("failed to attach payment to order: %w", err)
	}
	if err := s.reservations.AttachPayment(ctx, orderID, paymentID); err != nil {
		return nil, fmt.Errorf("failed to attach payment to reservation: %w", err)
	}

	s.log.LogOrderCreated(ctx, orderID.String(), req.TicketType, req.Quantity)

	return &PurchaseResponse{
		OrderID:     orderID.String(),
		PaymentID:   paymentID,
		PayAddress:  intent.PayAddress,
		PayAmount:   intent.PayAmount,
		PayCurrency: intent.PayCurrency,
		TotalAmount: totalAmount,
		Currency:    s.cfg.Gateway.PriceCurrency,
	}, nil
}

// cancelFreshHold releases a reservation that never got a payment
// attached, keyed by order id rather than payment id.
func (s *service) cancelFreshHold(ctx context.Context, orderID uuid.UUID) error {
	return s.reservations.CancelByOrderID(ctx, orderID)
}

func (s *service) CancelOrder(ctx context.Context, paymentID string) (*Order, error) {
	order, err := s.repo.GetByPaymentID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if !order.PaymentStatus.CanBeCancelledByCustomer() {
		return nil, ErrNotCancellable
	}

	if err := s.repo.UpdateStatus(ctx, paymentID, order.PaymentStatus, StatusCancelled); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			// A webhook moved the payment while the customer clicked
			// cancel. Too late.
			return nil, ErrNotCancellable
		}
		return nil, err
	}

	if err := s.reservations.Cancel(ctx, paymentID); err != nil &&
		!errors.Is(err, reservations.ErrNotFound) &&
		!errors.Is(err, reservations.ErrInvalidTransition) {
		return nil, fmt.Errorf("failed to release cancelled hold: %w", err)
	}

	s.log.LogPaymentTransition(ctx, paymentID, order.PaymentStatus.String(), StatusCancelled.String(), "customer_cancel")

	return s.repo.GetByPaymentID(ctx, paymentID)
}

func (s *service) PollStatus(ctx context.Context, paymentID string) (*Order, error) {
	return s.reconciler.PollStatus(ctx, paymentID)
}

func (s *service) ResendTicketEmail(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	if order.PaymentStatus != StatusFinished || !order.TicketGenerated {
		return ErrResendNotEligible
	}

	if order.LastEmailSentAt != nil {
		elapsed := s.clock.Now().Sub(*order.LastEmailSentAt)
		if elapsed < s.cfg.Email.ResendCooldown {
			return &CooldownError{Remaining: s.cfg.Email.ResendCooldown - elapsed}
		}
	}

	if err := s.emailSender.SendTicketEmail(ctx, order); err != nil {
		return fmt.Errorf("failed to queue ticket email: %w", err)
	}
	return s.repo.TouchEmailSentAt(ctx, orderID, s.clock.Now())
}

func (s *service) ReservationTime(ctx context.Context, paymentID string) (*reservations.RemainingTime, error) {
	remaining, err := s.reservations.TimeRemaining(ctx, paymentID)
	if err != nil {
		if errors.Is(err, reservations.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return remaining, nil
}
