package stock

import (
	"context"
	"errors"
	"sync"
	"testing"

	"summitpass/pkg/logger"
)

// memLedgerRepo mirrors the conditional-update semantics of the SQL
// repository: reserve checks the ceiling and increments in one step under
// the lock, confirm refuses to move more units than are reserved.
type memLedgerRepo struct {
	mu   sync.Mutex
	rows map[TicketType]*TicketTypeStock
}

func newMemLedgerRepo() *memLedgerRepo {
	return &memLedgerRepo{rows: make(map[TicketType]*TicketTypeStock)}
}

func (m *memLedgerRepo) GetStock(_ context.Context, t TicketType) (*TicketTypeStock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[t]
	if !ok {
		return nil, ErrUnknownTicketType
	}
	cp := *row
	return &cp, nil
}

func (m *memLedgerRepo) ListStock(_ context.Context) ([]TicketTypeStock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TicketTypeStock, 0, len(m.rows))
	for _, t := range AllTicketTypes {
		if row, ok := m.rows[t]; ok {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *memLedgerRepo) TryReserve(_ context.Context, t TicketType, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[t]
	if !ok {
		return ErrUnknownTicketType
	}
	if row.Sold+row.Reserved+quantity > row.Total {
		return ErrInsufficientStock
	}
	row.Reserved += quantity
	return nil
}

func (m *memLedgerRepo) ConfirmSale(_ context.Context, t TicketType, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[t]
	if !ok || row.Reserved < quantity {
		return ErrInconsistentLedger
	}
	row.Reserved -= quantity
	row.Sold += quantity
	return nil
}

func (m *memLedgerRepo) ReleaseReservation(_ context.Context, t TicketType, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[t]
	if !ok {
		return ErrUnknownTicketType
	}
	row.Reserved -= quantity
	if row.Reserved < 0 {
		row.Reserved = 0
	}
	return nil
}

func (m *memLedgerRepo) Seed(_ context.Context, t TicketType, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[t]; ok {
		row.Total = total
		return nil
	}
	m.rows[t] = &TicketTypeStock{TicketType: t, Total: total}
	return nil
}

func newTestService(t *testing.T, totals map[TicketType]int) (Service, *memLedgerRepo) {
	t.Helper()
	repo := newMemLedgerRepo()
	for tt, total := range totals {
		if err := repo.Seed(context.Background(), tt, total); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return NewService(repo, logger.New()), repo
}

func TestTryReserveRespectsCeiling(t *testing.T) {
	svc, repo := newTestService(t, map[TicketType]int{TicketTypeVIP: 5})
	ctx := context.Background()

	if err := svc.TryReserve(ctx, TicketTypeVIP, 3); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if err := svc.TryReserve(ctx, TicketTypeVIP, 3); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("over-ceiling reserve err = %v, want ErrInsufficientStock", err)
	}
	if err := svc.TryReserve(ctx, TicketTypeVIP, 2); err != nil {
		t.Fatalf("exact fit reserve: %v", err)
	}

	row, _ := repo.GetStock(ctx, TicketTypeVIP)
	if row.Reserved != 5 || row.Sold != 0 {
		t.Errorf("ledger = %+v, want reserved 5 sold 0", row)
	}
}

func TestTryReserveConcurrentLastUnit(t *testing.T) {
	// Scripted race: many buyers, one remaining 3-day pass. Exactly one
	// reserve may win.
	svc, repo := newTestService(t, map[TicketType]int{TicketTypeThreeDay: 1})
	ctx := context.Background()

	const buyers = 32
	var wg sync.WaitGroup
	var winsMu sync.Mutex
	wins := 0

	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.TryReserve(ctx, TicketTypeThreeDay, 1); err == nil {
				winsMu.Lock()
				wins++
				winsMu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("winners = %d, want 1", wins)
	}
	row, _ := repo.GetStock(ctx, TicketTypeThreeDay)
	if row.Reserved != 1 {
		t.Errorf("reserved = %d, want 1", row.Reserved)
	}
}

func TestConfirmSaleMovesReservedToSold(t *testing.T) {
	svc, repo := newTestService(t, map[TicketType]int{TicketTypeTwoDay: 10})
	ctx := context.Background()

	if err := svc.TryReserve(ctx, TicketTypeTwoDay, 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := svc.ConfirmSale(ctx, TicketTypeTwoDay, 2); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	row, _ := repo.GetStock(ctx, TicketTypeTwoDay)
	if row.Sold != 2 || row.Reserved != 0 {
		t.Errorf("ledger = %+v, want sold 2 reserved 0", row)
	}
	if row.Remaining() != 8 {
		t.Errorf("remaining = %d, want 8", row.Remaining())
	}
}

func TestConfirmSaleSwallowsInconsistentLedger(t *testing.T) {
	svc, repo := newTestService(t, map[TicketType]int{TicketTypeTwoDay: 10})
	ctx := context.Background()

	// Nothing reserved: the accounting defect is logged, not returned, so
	// a finished payment can never fail over it.
	if err := svc.ConfirmSale(ctx, TicketTypeTwoDay, 2); err != nil {
		t.Fatalf("ConfirmSale on empty reservation: %v", err)
	}

	row, _ := repo.GetStock(ctx, TicketTypeTwoDay)
	if row.Sold != 0 {
		t.Errorf("sold = %d, want 0 (no units moved)", row.Sold)
	}
}

func TestReleaseReservationFloorsAtZero(t *testing.T) {
	svc, repo := newTestService(t, map[TicketType]int{TicketTypeVIP: 5})
	ctx := context.Background()

	if err := svc.TryReserve(ctx, TicketTypeVIP, 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := svc.ReleaseReservation(ctx, TicketTypeVIP, 3); err != nil {
		t.Fatalf("release: %v", err)
	}

	row, _ := repo.GetStock(ctx, TicketTypeVIP)
	if row.Reserved != 0 {
		t.Errorf("reserved = %d, want 0 (floored)", row.Reserved)
	}
}

func TestServiceRejectsUnknownTicketType(t *testing.T) {
	svc, _ := newTestService(t, map[TicketType]int{})

	if err := svc.TryReserve(context.Background(), TicketType("1-day"), 1); !errors.Is(err, ErrUnknownTicketType) {
		t.Fatalf("err = %v, want ErrUnknownTicketType", err)
	}
	if err := svc.Seed(context.Background(), TicketType("weekend"), 5); !errors.Is(err, ErrUnknownTicketType) {
		t.Fatalf("seed err = %v, want ErrUnknownTicketType", err)
	}
}

func TestStockViewReportsAvailability(t *testing.T) {
	row := TicketTypeStock{TicketType: TicketTypeVIP, Total: 10, Sold: 7, Reserved: 3}
	view := row.ToView()

	if view.Available != 0 || !view.SoldOut {
		t.Errorf("view = %+v, want available 0 soldOut true", view)
	}

	row.Reserved = 1
	view = row.ToView()
	if view.Available != 2 || view.SoldOut {
		t.Errorf("view = %+v, want available 2 soldOut false", view)
	}
}
