package orders

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
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

// --- fakes ---

type memOrdersRepo struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*Order
	byPmt map[string]uuid.UUID
}

func newMemOrdersRepo() *memOrdersRepo {
	return &memOrdersRepo{byID: make(map[uuid.UUID]*Order), byPmt: make(map[string]uuid.UUID)}
}

func (m *memOrdersRepo) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.byID[o.ID] = &cp
	if o.PaymentID != nil {
		m.byPmt[*o.PaymentID] = o.ID
	}
	return nil
}

func (m *memOrdersRepo) GetByID(_ context.Context, id uuid.UUID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrdersRepo) GetByPaymentID(_ context.Context, paymentID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byPmt[paymentID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *memOrdersRepo) AttachPayment(_ context.Context, orderID uuid.UUID, paymentID, payAddress string, payAmount float64, payCurrency string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[orderID]
	if !ok || o.PaymentID != nil {
		return gorm.ErrRecordNotFound
	}
	o.PaymentID = &paymentID
	o.PayAddress = payAddress
	o.PayAmount = payAmount
	o.PayCurrency = payCurrency
	m.byPmt[paymentID] = orderID
	return nil
}

func (m *memOrdersRepo) UpdateStatus(_ context.Context, paymentID string, from, to PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byPmt[paymentID]
	if !ok {
		return ErrStatusConflict
	}
	o := m.byID[id]
	if o.PaymentStatus != from {
		return ErrStatusConflict
	}
	o.PaymentStatus = to
	return nil
}

func (m *memOrdersRepo) ForceStatus(_ context.Context, paymentID string, to PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byPmt[paymentID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.byID[id].PaymentStatus = to
	return nil
}

func (m *memOrdersRepo) ClaimTicketGeneration(_ context.Context, orderID uuid.UUID, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.byID[orderID]
	if o.TicketGenerated {
		return false, nil
	}
	o.TicketGenerated = true
	o.TicketCode = code
	return true, nil
}

func (m *memOrdersRepo) MarkTicketEmailSent(_ context.Context, orderID uuid.UUID, sentAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.byID[orderID]
	if o.EmailSent {
		return false, nil
	}
	o.EmailSent = true
	o.LastEmailSentAt = &sentAt
	return true, nil
}

func (m *memOrdersRepo) MarkConfirmationEmailSent(_ context.Context, orderID uuid.UUID, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.byID[orderID]
	if o.PaymentConfirmationEmailSent {
		return false, nil
	}
	o.PaymentConfirmationEmailSent = true
	return true, nil
}

func (m *memOrdersRepo) TouchEmailSentAt(_ context.Context, orderID uuid.UUID, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[orderID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	o.LastEmailSentAt = &sentAt
	return nil
}

type stubReservations struct {
	mu             sync.Mutex
	reserveErr     error
	reserved       int
	attached       map[uuid.UUID]string
	cancelled      []string
	cancelledOrder []uuid.UUID
	cancelErr      error
	remaining      *reservations.RemainingTime
}

func newStubReservations() *stubReservations {
	return &stubReservations{attached: make(map[uuid.UUID]string)}
}

func (s *stubReservations) Reserve(_ context.Context, orderID uuid.UUID, ticketType stock.TicketType, quantity int, email string) (*reservations.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reserveErr != nil {
		return nil, s.reserveErr
	}
	s.reserved++
	return &reservations.Reservation{
		ID:         uuid.New(),
		OrderID:    orderID,
		TicketType: ticketType,
		Quantity:   quantity,
		Status:     reservations.StatusActive,
	}, nil
}

func (s *stubReservations) AttachPayment(_ context.Context, orderID uuid.UUID, paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached[orderID] = paymentID
	return nil
}

func (s *stubReservations) Confirm(context.Context, string) (bool, error) { return false, nil }

func (s *stubReservations) Cancel(_ context.Context, paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelErr != nil {
		return s.cancelErr
	}
	s.cancelled = append(s.cancelled, paymentID)
	return nil
}

func (s *stubReservations) CancelByOrderID(_ context.Context, orderID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelledOrder = append(s.cancelledOrder, orderID)
	return nil
}

func (s *stubReservations) Expire(context.Context, string) error       { return nil }
func (s *stubReservations) SweepExpired(context.Context) (int, error)  { return 0, nil }
func (s *stubReservations) TimeRemaining(context.Context, string) (*reservations.RemainingTime, error) {
	if s.remaining == nil {
		return nil, reservations.ErrNotFound
	}
	return s.remaining, nil
}

type stubGateway struct {
	mu        sync.Mutex
	createErr error
	created   []payments.CreatePaymentRequest
}

func (s *stubGateway) CreatePayment(_ context.Context, req payments.CreatePaymentRequest) (*payments.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created = append(s.created, req)
	return &payments.PaymentIntent{
		PaymentID:     json.Number("5077125051"),
		PaymentStatus: "waiting",
		PayAddress:    "0xdeadbeef",
		PayAmount:     0.0042,
		PayCurrency:   "btc",
	}, nil
}

func (s *stubGateway) GetPaymentStatus(context.Context, string) (*payments.PaymentStatusInfo, error) {
	return nil, payments.ErrPaymentNotFound
}

func (s *stubGateway) GetStatusFromRecentList(context.Context, string) (*payments.PaymentStatusInfo, error) {
	return nil, payments.ErrPaymentNotFound
}

type stubReconciler struct{}

func (stubReconciler) PollStatus(context.Context, string) (*Order, error) {
	return nil, ErrNotFound
}

type stubEmailSender struct {
	mu   sync.Mutex
	sent int
	fail bool
}

func (s *stubEmailSender) SendTicketEmail(context.Context, *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("broker down")
	}
	s.sent++
	return nil
}

// --- harness ---

func testConfig() *config.Config {
	return &config.Config{
		Gateway: config.GatewayConfig{
			PriceCurrency: "usd",
			PayCurrency:   "btc",
			CallbackURL:   "https://tickets.example.com/api/v1/payments/webhook",
		},
		Email: config.EmailConfig{ResendCooldown: time.Hour},
		Tickets: config.TicketConfig{
			Prices:              map[string]float64{"2-day": 99, "3-day": 149, "vip": 299},
			MaxQuantityPerOrder: 10,
		},
	}
}

type svcHarness struct {
	svc          Service
	repo         *memOrdersRepo
	reservations *stubReservations
	gateway      *stubGateway
	email        *stubEmailSender
	clock        *clock.Fake
}

func newSvcHarness() *svcHarness {
	h := &svcHarness{
		repo:         newMemOrdersRepo(),
		reservations: newStubReservations(),
		gateway:      &stubGateway{},
		email:        &stubEmailSender{},
		clock:        clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	}
	h.svc = NewService(h.repo, h.reservations, h.gateway, stubReconciler{}, h.email, h.clock, testConfig(), logger.New())
	return h
}

// --- tests ---

func TestCreateOrderHappyPath(t *testing.T) {
	h := newSvcHarness()

	resp, err := h.svc.CreateOrder(context.Background(), CreateOrderRequest{
		TicketType:    "2-day",
		Quantity:      2,
		CustomerName:  "Dana Smith",
		CustomerEmail: "dana@example.com",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if resp.PaymentID != "5077125051" {
		t.Errorf("paymentId = %q", resp.PaymentID)
	}
	if resp.TotalAmount != 198 {
		t.Errorf("totalAmount = %v, want 198", resp.TotalAmount)
	}
	if resp.PayAddress != "0xdeadbeef" || resp.PayCurrency != "btc" {
		t.Errorf("gateway intent fields not propagated: %+v", resp)
	}

	stored, err := h.repo.GetByPaymentID(context.Background(), resp.PaymentID)
	if err != nil {
		t.Fatalf("order not findable by payment id: %v", err)
	}
	if stored.PaymentStatus != StatusWaiting {
		t.Errorf("status = %s, want waiting", stored.PaymentStatus)
	}
	if stored.UnitPrice != 99 || stored.TotalAmount != 198 {
		t.Errorf("pricing wrong: %+v", stored)
	}

	orderID := uuid.MustParse(resp.OrderID)
	if h.reservations.attached[orderID] != resp.PaymentID {
		t.Error("payment id not attached to the reservation")
	}
	if len(h.gateway.created) != 1 {
		t.Fatalf("gateway CreatePayment calls = %d", len(h.gateway.created))
	}
	if h.gateway.created[0].PriceAmount != 198 {
		t.Errorf("intent priced at %v, want 198", h.gateway.created[0].PriceAmount)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	h := newSvcHarness()
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateOrderRequest
		want error
	}{
		{"unknown ticket type", CreateOrderRequest{TicketType: "1-day", Quantity: 1, CustomerName: "A B", CustomerEmail: "a@b.com"}, ErrInvalidTicketType},
		{"zero quantity", CreateOrderRequest{TicketType: "vip", Quantity: 0, CustomerName: "A B", CustomerEmail: "a@b.com"}, ErrInvalidQuantity},
		{"over the cap", CreateOrderRequest{TicketType: "vip", Quantity: 11, CustomerName: "A B", CustomerEmail: "a@b.com"}, ErrInvalidQuantity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.svc.CreateOrder(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}

	if h.reservations.reserved != 0 || len(h.gateway.created) != 0 {
		t.Error("invalid request still reached reservation or gateway")
	}
}

func TestCreateOrderSoldOut(t *testing.T) {
	h := newSvcHarness()
	h.reservations.reserveErr = stock.ErrInsufficientStock

	_, err := h.svc.CreateOrder(context.Background(), CreateOrderRequest{
		TicketType: "3-day", Quantity: 1, CustomerName: "A B", CustomerEmail: "a@b.com",
	})
	if !errors.Is(err, stock.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	if len(h.gateway.created) != 0 {
		t.Error("gateway called despite sold-out")
	}
}

func TestCreateOrderGatewayFailureReleasesHold(t *testing.T) {
	h := newSvcHarness()
	h.gateway.createErr = payments.ErrGatewayUnavailable

	_, err := h.svc.CreateOrder(context.Background(), CreateOrderRequest{
		TicketType: "vip", Quantity: 1, CustomerName: "A B", CustomerEmail: "a@b.com",
	})
	if !errors.Is(err, payments.ErrGatewayUnavailable) {
		t.Fatalf("err = %v, want ErrGatewayUnavailable", err)
	}
	if len(h.reservations.cancelledOrder) != 1 {
		t.Fatalf("hold not released after gateway failure (%d cancels)", len(h.reservations.cancelledOrder))
	}
}

func seedOrder(h *svcHarness, status PaymentStatus) (*Order, string) {
	paymentID := "5077125051"
	order := &Order{
		ID:            uuid.New(),
		CustomerName:  "Dana Smith",
		CustomerEmail: "dana@example.com",
		TicketType:    stock.TicketTypeVIP,
		Quantity:      1,
		UnitPrice:     299,
		TotalAmount:   299,
		Currency:      "usd",
		PaymentID:     &paymentID,
		PaymentStatus: status,
	}
	_ = h.repo.Create(context.Background(), order)
	return order, paymentID
}

func TestCancelOrderOnlyWhileWaiting(t *testing.T) {
	t.Run("waiting order cancels and releases the hold", func(t *testing.T) {
		h := newSvcHarness()
		_, paymentID := seedOrder(h, StatusWaiting)

		got, err := h.svc.CancelOrder(context.Background(), paymentID)
		if err != nil {
			t.Fatalf("CancelOrder: %v", err)
		}
		if got.PaymentStatus != StatusCancelled {
			t.Fatalf("status = %s, want cancelled", got.PaymentStatus)
		}
		if len(h.reservations.cancelled) != 1 {
			t.Error("reservation not released")
		}
	})

	for _, status := range []PaymentStatus{StatusConfirming, StatusConfirmed, StatusFinished, StatusExpired} {
		t.Run("rejects "+status.String(), func(t *testing.T) {
			h := newSvcHarness()
			_, paymentID := seedOrder(h, status)

			if _, err := h.svc.CancelOrder(context.Background(), paymentID); !errors.Is(err, ErrNotCancellable) {
				t.Fatalf("err = %v, want ErrNotCancellable", err)
			}
		})
	}

	t.Run("unknown payment id", func(t *testing.T) {
		h := newSvcHarness()
		if _, err := h.svc.CancelOrder(context.Background(), "000000"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestResendTicketEmailCooldown(t *testing.T) {
	h := newSvcHarness()
	order, _ := seedOrder(h, StatusFinished)
	ctx := context.Background()

	// Finished and fulfilled, last email sent right now.
	sentAt := h.clock.Now()
	h.repo.mu.Lock()
	stored := h.repo.byID[order.ID]
	stored.TicketGenerated = true
	stored.TicketCode = "code"
	stored.EmailSent = true
	stored.LastEmailSentAt = &sentAt
	h.repo.mu.Unlock()

	// Inside the window: rejected with the remaining wait.
	h.clock.Advance(20 * time.Minute)
	err := h.svc.ResendTicketEmail(ctx, order.ID)
	var cooldown *CooldownError
	if !errors.As(err, &cooldown) {
		t.Fatalf("err = %v, want CooldownError", err)
	}
	if cooldown.Remaining != 40*time.Minute {
		t.Errorf("remaining = %s, want 40m", cooldown.Remaining)
	}
	if h.email.sent != 0 {
		t.Error("email sent during cooldown")
	}

	// Past the window: sends and restarts the cooldown.
	h.clock.Advance(41 * time.Minute)
	if err := h.svc.ResendTicketEmail(ctx, order.ID); err != nil {
		t.Fatalf("ResendTicketEmail: %v", err)
	}
	if h.email.sent != 1 {
		t.Fatalf("emails sent = %d, want 1", h.email.sent)
	}

	refreshed, _ := h.repo.GetByID(ctx, order.ID)
	if refreshed.LastEmailSentAt == nil || !refreshed.LastEmailSentAt.Equal(h.clock.Now()) {
		t.Error("last_email_sent_at not updated to the re-send time")
	}
}

func TestResendTicketEmailOnlyForFinishedOrders(t *testing.T) {
	h := newSvcHarness()
	order, _ := seedOrder(h, StatusWaiting)

	if err := h.svc.ResendTicketEmail(context.Background(), order.ID); !errors.Is(err, ErrResendNotEligible) {
		t.Fatalf("err = %v, want ErrResendNotEligible", err)
	}
}
