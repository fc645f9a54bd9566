package stock

import (
	"context"
	"errors"
	"fmt"

	"summitpass/pkg/logger"
)

// Service interface defines the contract for stock ledger business logic
type Service interface {
	GetStock(ctx context.Context, ticketType TicketType) (*TicketTypeStock, error)
	ListStock(ctx context.Context) ([]StockView, error)
	TryReserve(ctx context.Context, ticketType TicketType, quantity int) error
	ConfirmSale(ctx context.Context, ticketType TicketType, quantity int) error
	ReleaseReservation(ctx context.Context, ticketType TicketType, quantity int) error
	Seed(ctx context.Context, ticketType TicketType, total int) error
}

type service struct {
	repo Repository
	log  *logger.Logger
}

// NewService creates a new stock service instance
func NewService(repo Repository, log *logger.Logger) Service {
	return &service{repo: repo, log: log}
}

func (s *service) GetStock(ctx context.Context, ticketType TicketType) (*TicketTypeStock, error) {
	if !ticketType.IsValid() {
		return nil, ErrUnknownTicketType
	}
	return s.repo.GetStock(ctx, ticketType)
}

func (s *service) ListStock(ctx context.Context) ([]StockView, error) {
	rows, err := s.repo.ListStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock: %w", err)
	}

	views := make([]StockView, 0, len(rows))
	for i := range rows {
		views = append(views, rows[i].ToView())
	}
	return views, nil
}

func (s *service) TryReserve(ctx context.Context, ticketType TicketType, quantity int) error {
	if !ticketType.IsValid() {
		return ErrUnknownTicketType
	}
	return s.repo.TryReserve(ctx, ticketType, quantity)
}

// ConfirmSale converts reserved units into sold units. An inconsistent
// ledger is logged but not propagated: the payment is already final and the
// caller must not fail the order over an accounting defect.
func (s *service) ConfirmSale(ctx context.Context, ticketType TicketType, quantity int) error {
	err := s.repo.ConfirmSale(ctx, ticketType, quantity)
	if errors.Is(err, ErrInconsistentLedger) {
		s.log.LogLedgerInconsistency(ctx, ticketType.String(), quantity)
		return nil
	}
	return err
}

func (s *service) ReleaseReservation(ctx context.Context, ticketType TicketType, quantity int) error {
	return s.repo.ReleaseReservation(ctx, ticketType, quantity)
}

func (s *service) Seed(ctx context.Context, ticketType TicketType, total int) error {
	if !ticketType.IsValid() {
		return ErrUnknownTicketType
	}
	return s.repo.Seed(ctx, ticketType, total)
}
