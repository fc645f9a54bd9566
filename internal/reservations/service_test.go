package reservations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"summitpass/internal/shared/clock"
	"summitpass/internal/stock"
	"summitpass/pkg/logger"
)

// --- fakes ---

type memRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*Reservation
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[uuid.UUID]*Reservation)}
}

func (m *memRepo) Create(_ context.Context, r *Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	cp := *r
	m.rows[r.ID] = &cp
	return nil
}

func (m *memRepo) GetByOrderID(_ context.Context, orderID uuid.UUID) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.OrderID == orderID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memRepo) GetByPaymentID(_ context.Context, paymentID string) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.PaymentID != nil && *r.PaymentID == paymentID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memRepo) AttachPayment(_ context.Context, orderID uuid.UUID, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.OrderID == orderID && r.PaymentID == nil {
			p := paymentID
			r.PaymentID = &p
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *memRepo) TransitionFromActive(_ context.Context, id uuid.UUID, to Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.Status != StatusActive {
		return false, nil
	}
	r.Status = to
	return true, nil
}

func (m *memRepo) ListExpiredActive(_ context.Context, now time.Time) ([]Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reservation
	for _, r := range m.rows {
		if r.Status == StatusActive && r.ExpiresAt.Before(now) {
			out = append(out, *r)
		}
	}
	return out, nil
}

type memLedger struct {
	mu       sync.Mutex
	total    int
	reserved int
}

func (m *memLedger) TryReserve(_ context.Context, _ stock.TicketType, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reserved+quantity > m.total {
		return stock.ErrInsufficientStock
	}
	m.reserved += quantity
	return nil
}

func (m *memLedger) ReleaseReservation(_ context.Context, _ stock.TicketType, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserved -= quantity
	if m.reserved < 0 {
		m.reserved = 0
	}
	return nil
}

// --- harness ---

const testTTL = 20 * time.Minute

func newTestService(total int) (Service, *memRepo, *memLedger, *clock.Fake) {
	repo := newMemRepo()
	ledger := &memLedger{total: total}
	clk := clock.NewFake(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	svc := NewService(repo, ledger, clk, testTTL, logger.New())
	return svc, repo, ledger, clk
}

func reserveWithPayment(t *testing.T, svc Service, paymentID string) *Reservation {
	t.Helper()
	orderID := uuid.New()
	r, err := svc.Reserve(context.Background(), orderID, stock.TicketTypeVIP, 1, "x@y.com")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := svc.AttachPayment(context.Background(), orderID, paymentID); err != nil {
		t.Fatalf("AttachPayment: %v", err)
	}
	return r
}

// --- tests ---

func TestReserveCreatesTimeBoxedHold(t *testing.T) {
	svc, _, ledger, clk := newTestService(10)

	r, err := svc.Reserve(context.Background(), uuid.New(), stock.TicketTypeTwoDay, 3, "dana@example.com")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	if r.Status != StatusActive {
		t.Errorf("status = %s, want active", r.Status)
	}
	if !r.ExpiresAt.Equal(clk.Now().Add(testTTL)) {
		t.Errorf("expiresAt = %s, want now+%s", r.ExpiresAt, testTTL)
	}
	if ledger.reserved != 3 {
		t.Errorf("ledger reserved = %d, want 3", ledger.reserved)
	}
}

func TestReserveSoldOutLeavesLedgerUntouched(t *testing.T) {
	svc, _, ledger, _ := newTestService(2)

	if _, err := svc.Reserve(context.Background(), uuid.New(), stock.TicketTypeVIP, 3, "x@y.com"); !errors.Is(err, stock.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	if ledger.reserved != 0 {
		t.Errorf("ledger reserved = %d after failed reserve", ledger.reserved)
	}
}

func TestConfirmTransitionsExactlyOnce(t *testing.T) {
	svc, _, ledger, _ := newTestService(5)
	reserveWithPayment(t, svc, "pay-1")
	ctx := context.Background()

	first, err := svc.Confirm(ctx, "pay-1")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !first {
		t.Fatal("first confirm must report the transition")
	}

	// Replays are no-ops and never report a second transition.
	for i := 0; i < 3; i++ {
		again, err := svc.Confirm(ctx, "pay-1")
		if err != nil {
			t.Fatalf("replayed confirm: %v", err)
		}
		if again {
			t.Fatal("replayed confirm reported a transition")
		}
	}

	// Confirm keeps the units held; the sale decrement is the ledger's move.
	if ledger.reserved != 1 {
		t.Errorf("ledger reserved = %d, want 1", ledger.reserved)
	}
}

func TestCancelReleasesStockOnlyFromActive(t *testing.T) {
	svc, _, ledger, _ := newTestService(5)
	reserveWithPayment(t, svc, "pay-1")
	ctx := context.Background()

	if err := svc.Cancel(ctx, "pay-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if ledger.reserved != 0 {
		t.Errorf("ledger reserved = %d after cancel", ledger.reserved)
	}

	if err := svc.Cancel(ctx, "pay-1"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second cancel err = %v, want ErrInvalidTransition", err)
	}
	if err := svc.Cancel(ctx, "pay-unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown payment err = %v, want ErrNotFound", err)
	}
}

func TestExpireReplayIsNoOp(t *testing.T) {
	svc, _, ledger, _ := newTestService(5)
	reserveWithPayment(t, svc, "pay-1")
	ctx := context.Background()

	if err := svc.Expire(ctx, "pay-1"); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if err := svc.Expire(ctx, "pay-1"); err != nil {
		t.Fatalf("replayed expire: %v", err)
	}
	if ledger.reserved != 0 {
		t.Errorf("ledger reserved = %d, want 0 (released once)", ledger.reserved)
	}
}

func TestSweepExpiredReleasesOnlyOverdueHolds(t *testing.T) {
	svc, _, ledger, clk := newTestService(10)
	ctx := context.Background()

	reserveWithPayment(t, svc, "pay-old")
	clk.Advance(15 * time.Minute)
	reserveWithPayment(t, svc, "pay-fresh")

	// 21 minutes after the first hold, 6 after the second.
	clk.Advance(6 * time.Minute)

	swept, err := svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}
	if ledger.reserved != 1 {
		t.Errorf("ledger reserved = %d, want 1 (fresh hold intact)", ledger.reserved)
	}

	// The expired hold cannot be confirmed afterwards.
	transitioned, err := svc.Confirm(ctx, "pay-old")
	if err != nil {
		t.Fatalf("Confirm after sweep: %v", err)
	}
	if transitioned {
		t.Error("swept reservation still confirmed")
	}

	// A second sweep finds nothing.
	swept, err = svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if swept != 0 {
		t.Errorf("second sweep = %d, want 0", swept)
	}
}

func TestTimeRemainingCountsDown(t *testing.T) {
	svc, _, _, clk := newTestService(5)
	reserveWithPayment(t, svc, "pay-1")
	ctx := context.Background()

	got, err := svc.TimeRemaining(ctx, "pay-1")
	if err != nil {
		t.Fatalf("TimeRemaining: %v", err)
	}
	if !got.Valid || got.Expired {
		t.Fatalf("fresh hold reported %+v", got)
	}
	if got.TimeRemaining != int64(testTTL.Seconds()) {
		t.Errorf("remaining = %d, want %d", got.TimeRemaining, int64(testTTL.Seconds()))
	}

	clk.Advance(testTTL + time.Second)
	got, err = svc.TimeRemaining(ctx, "pay-1")
	if err != nil {
		t.Fatalf("TimeRemaining after expiry: %v", err)
	}
	if got.Valid || !got.Expired || got.TimeRemaining != 0 {
		t.Errorf("expired hold reported %+v", got)
	}
}
