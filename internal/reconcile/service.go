package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"summitpass/internal/notifications"
	"summitpass/internal/orders"
	"summitpass/internal/payments"
	"summitpass/internal/reservations"
	"summitpass/internal/stock"
	"summitpass/internal/tickets"
	"summitpass/pkg/logger"
)

// ErrUnknownStatus is returned when a gateway or webhook reported a status
// outside the known vocabulary. The stored status stays untouched.
var ErrUnknownStatus = errors.New("unknown payment status")

// Source labels for transition logging.
const (
	SourceWebhook = "webhook"
	SourcePoll    = "poll"
	SourceAdmin   = "admin_resync"
)

// Deduper claims a key exactly once within a window. Used to drop webhook
// deliveries the gateway replays in quick succession.
type Deduper interface {
	ClaimOnce(ctx context.Context, key string) (bool, error)
}

type redisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper builds a Deduper over Redis SETNX with the given window.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) Deduper {
	return &redisDeduper{client: client, ttl: ttl}
}

func (d *redisDeduper) ClaimOnce(ctx context.Context, key string) (bool, error) {
	return d.client.SetNX(ctx, key, 1, d.ttl).Result()
}

// Service is the reconciliation engine. Every path that learns a payment
// status from the outside world (webhook, customer poll, admin resync)
// funnels through Apply, which owns the transition rules and the one-time
// side effects.
type Service interface {
	// HandleWebhook verifies the signature, dedups the delivery and applies
	// the reported status. Returns payments.ErrUnauthorized on a bad
	// signature; the caller must not leak which check failed.
	HandleWebhook(ctx context.Context, rawBody []byte, signature, remoteIP string) (*orders.Order, error)

	// PollStatus asks the gateway for the current status and applies it.
	// When the gateway is unreachable the stored order is returned as-is.
	PollStatus(ctx context.Context, paymentID string) (*orders.Order, error)

	// ForceResync re-polls the gateway and, when force is set, overrides a
	// stored terminal status with finished. Side effects still run at most
	// once; the override never skips the completion flags.
	ForceResync(ctx context.Context, paymentID string, force bool) (*orders.Order, error)

	// Apply runs the status transition rules for a candidate status learned
	// from the given source.
	Apply(ctx context.Context, paymentID string, candidate orders.PaymentStatus, source string) (*orders.Order, error)
}

type service struct {
	orders       orders.Repository
	reservations reservations.Service
	stock        stock.Service
	gateway      payments.Client
	verifier     *payments.WebhookVerifier
	dispatcher   notifications.Dispatcher
	tickets      *tickets.Generator
	dedup        Deduper
	log          *logger.Logger
}

func NewService(
	ordersRepo orders.Repository,
	reservationSvc reservations.Service,
	stockSvc stock.Service,
	gateway payments.Client,
	verifier *payments.WebhookVerifier,
	dispatcher notifications.Dispatcher,
	ticketGen *tickets.Generator,
	dedup Deduper,
	log *logger.Logger,
) Service {
	return &service{
		orders:       ordersRepo,
		reservations: reservationSvc,
		stock:        stockSvc,
		gateway:      gateway,
		verifier:     verifier,
		dispatcher:   dispatcher,
		tickets:      ticketGen,
		dedup:        dedup,
		log:          log,
	}
}

func (s *service) HandleWebhook(ctx context.Context, rawBody []byte, signature, remoteIP string) (*orders.Order, error) {
	if err := s.verifier.Verify(rawBody, signature); err != nil {
		s.log.LogWebhookRejected(ctx, "invalid signature", remoteIP)
		return nil, err
	}

	var payload payments.WebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		s.log.LogWebhookRejected(ctx, "malformed payload", remoteIP)
		return nil, fmt.Errorf("malformed webhook payload: %w", err)
	}

	paymentID := payload.PaymentID.String()
	candidate := orders.PaymentStatus(payload.PaymentStatus)
	if paymentID == "" || !candidate.IsValid() {
		s.log.LogWebhookRejected(ctx, "unknown payment status", remoteIP)
		return nil, ErrUnknownStatus
	}

	// Gateways replay webhooks aggressively. Collapse identical
	// (payment, status) deliveries inside the dedup window; on Redis
	// trouble fall through, Apply is idempotent anyway.
	key := fmt.Sprintf("webhook:dedup:%s:%s", paymentID, candidate)
	claimed, err := s.dedup.ClaimOnce(ctx, key)
	if err != nil {
		s.log.ErrorWithContext(ctx, "Webhook dedup check failed, continuing", err, map[string]interface{}{
			"payment_id": paymentID,
		})
	} else if !claimed {
		s.log.InfoWithContext(ctx, "Duplicate webhook dropped", map[string]interface{}{
			"payment_id": paymentID,
			"status":     candidate.String(),
		})
		return s.orders.GetByPaymentID(ctx, paymentID)
	}

	return s.Apply(ctx, paymentID, candidate, SourceWebhook)
}

func (s *service) PollStatus(ctx context.Context, paymentID string) (*orders.Order, error) {
	order, err := s.orders.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, orders.ErrNotFound
	}

	candidate, err := s.fetchGatewayStatus(ctx, paymentID)
	if err != nil {
		// Gateway down is not an error for the customer: answer from the
		// last reconciled state.
		s.log.ErrorWithContext(ctx, "Gateway status fetch failed, serving stored status", err, map[string]interface{}{
			"payment_id": paymentID,
		})
		return order, nil
	}

	return s.Apply(ctx, paymentID, candidate, SourcePoll)
}

func (s *service) ForceResync(ctx context.Context, paymentID string, force bool) (*orders.Order, error) {
	order, err := s.orders.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, orders.ErrNotFound
	}

	if force {
		if order.PaymentStatus.IsTerminal() && order.PaymentStatus != orders.StatusFinished {
			return s.forceFinish(ctx, order)
		}
		// Already finished (or still in flight): run the normal transition
		// so incomplete fulfillment gets retried.
		return s.Apply(ctx, paymentID, orders.StatusFinished, SourceAdmin)
	}

	candidate, err := s.fetchGatewayStatus(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("gateway status fetch failed: %w", err)
	}
	return s.Apply(ctx, paymentID, candidate, SourceAdmin)
}

// fetchGatewayStatus queries both gateway status endpoints and resolves
// their frequently-disagreeing answers into one.
func (s *service) fetchGatewayStatus(ctx context.Context, paymentID string) (orders.PaymentStatus, error) {
	var listStatus, individualStatus string

	if info, err := s.gateway.GetStatusFromRecentList(ctx, paymentID); err == nil {
		listStatus = info.PaymentStatus
	}
	if info, err := s.gateway.GetPaymentStatus(ctx, paymentID); err == nil {
		individualStatus = info.PaymentStatus
	}

	resolved := payments.ResolveStatus(listStatus, individualStatus)
	if resolved == "" {
		return "", payments.ErrGatewayUnavailable
	}

	candidate := orders.PaymentStatus(resolved)
	if !candidate.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, resolved)
	}
	return candidate, nil
}

func (s *service) Apply(ctx context.Context, paymentID string, candidate orders.PaymentStatus, source string) (*orders.Order, error) {
	order, err := s.orders.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, orders.ErrNotFound
	}

	stored := order.PaymentStatus

	if candidate == stored {
		// Replay of the current status. Normally nothing to do, but a
		// finished order whose fulfillment crashed mid-way (ticket or
		// email flag still false) gets another chance here.
		if stored == orders.StatusFinished && !fulfilled(order) {
			if err := s.runFinishedEffects(ctx, order); err != nil {
				return nil, err
			}
			return s.orders.GetByPaymentID(ctx, paymentID)
		}
		return order, nil
	}

	if !stored.CanTransitionTo(candidate) {
		if stored.IsTerminal() {
			s.log.LogTerminalConflict(ctx, paymentID, stored.String(), candidate.String(), source)
			return order, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, candidate)
	}

	if err := s.runTransitionEffects(ctx, order, candidate); err != nil {
		return nil, err
	}

	if err := s.orders.UpdateStatus(ctx, paymentID, stored, candidate); err != nil {
		if errors.Is(err, orders.ErrStatusConflict) {
			// A concurrent webhook or poll beat us to the write. The side
			// effects above are all flag- or transition-guarded, so losing
			// the race costs nothing; report whatever won.
			return s.orders.GetByPaymentID(ctx, paymentID)
		}
		return nil, fmt.Errorf("failed to persist status transition: %w", err)
	}

	s.log.LogPaymentTransition(ctx, paymentID, stored.String(), candidate.String(), source)
	return s.orders.GetByPaymentID(ctx, paymentID)
}

// runTransitionEffects performs the side effects a transition into the
// candidate status demands. Every effect is individually guarded, so a
// crash between effect and status write only means a replay retries it.
func (s *service) runTransitionEffects(ctx context.Context, order *orders.Order, candidate orders.PaymentStatus) error {
	switch {
	case candidate == orders.StatusFinished:
		return s.runFinishedEffects(ctx, order)

	case candidate.IsPaidProgress():
		return s.sendConfirmationOnce(ctx, order)

	case candidate == orders.StatusExpired:
		return s.releaseHold(ctx, order, s.reservations.Expire)

	case candidate == orders.StatusFailed, candidate == orders.StatusCancelled:
		return s.releaseHold(ctx, order, s.reservations.Cancel)
	}

	// waiting / confirming / sending carry no side effects.
	return nil
}

// runFinishedEffects converts the hold into a sale, issues the ticket and
// queues the ticket email. Each step claims its own one-way flag; replays
// skip whatever already happened.
func (s *service) runFinishedEffects(ctx context.Context, order *orders.Order) error {
	if order.PaymentID == nil {
		return fmt.Errorf("order %s has no payment attached", order.ID)
	}

	transitioned, err := s.reservations.Confirm(ctx, *order.PaymentID)
	if err != nil && !errors.Is(err, reservations.ErrNotFound) {
		return fmt.Errorf("failed to confirm reservation: %w", err)
	}
	if transitioned {
		if err := s.stock.ConfirmSale(ctx, order.TicketType, order.Quantity); err != nil {
			return fmt.Errorf("failed to confirm sale: %w", err)
		}
	}

	code := s.tickets.Generate(order.ID.String(), order.TicketType.String(), order.Quantity)
	claimed, err := s.orders.ClaimTicketGeneration(ctx, order.ID, code)
	if err != nil {
		return fmt.Errorf("failed to claim ticket generation: %w", err)
	}
	if claimed {
		order.TicketGenerated = true
		order.TicketCode = code
	} else if order.TicketCode == "" {
		// Another worker generated the ticket; reload so the email below
		// carries the code that actually stuck.
		fresh, err := s.orders.GetByID(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("failed to reload order after ticket claim: %w", err)
		}
		*order = *fresh
	}

	if order.EmailSent {
		return nil
	}
	if err := s.dispatcher.SendTicketEmail(ctx, order); err != nil {
		// Flag stays false; the next replay or an admin resync retries.
		s.log.ErrorWithContext(ctx, "Failed to queue ticket email", err, map[string]interface{}{
			"order_id": order.ID.String(),
		})
		return nil
	}
	if _, err := s.orders.MarkTicketEmailSent(ctx, order.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark ticket email sent: %w", err)
	}
	return nil
}

func (s *service) sendConfirmationOnce(ctx context.Context, order *orders.Order) error {
	if order.PaymentConfirmationEmailSent {
		return nil
	}
	if err := s.dispatcher.SendConfirmationEmail(ctx, order); err != nil {
		s.log.ErrorWithContext(ctx, "Failed to queue payment confirmation email", err, map[string]interface{}{
			"order_id": order.ID.String(),
		})
		return nil
	}
	if _, err := s.orders.MarkConfirmationEmailSent(ctx, order.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark confirmation email sent: %w", err)
	}
	return nil
}

// releaseHold runs the given reservation transition, tolerating the
// no-op cases a replayed or late signal produces.
func (s *service) releaseHold(ctx context.Context, order *orders.Order, transition func(context.Context, string) error) error {
	if order.PaymentID == nil {
		return nil
	}
	err := transition(ctx, *order.PaymentID)
	if err == nil || errors.Is(err, reservations.ErrNotFound) || errors.Is(err, reservations.ErrInvalidTransition) {
		return nil
	}
	return fmt.Errorf("failed to release reservation: %w", err)
}

// forceFinish is the admin escape hatch for orders stranded in a wrong
// terminal status by gateway inconsistency. It overwrites the status and
// then runs the finished effects under their usual guards.
func (s *service) forceFinish(ctx context.Context, order *orders.Order) (*orders.Order, error) {
	if order.PaymentID == nil {
		return nil, fmt.Errorf("order %s has no payment attached", order.ID)
	}
	paymentID := *order.PaymentID

	if err := s.orders.ForceStatus(ctx, paymentID, orders.StatusFinished); err != nil {
		return nil, fmt.Errorf("failed to force status: %w", err)
	}
	s.log.LogPaymentTransition(ctx, paymentID, order.PaymentStatus.String(), orders.StatusFinished.String(), SourceAdmin)

	fresh, err := s.orders.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := s.runFinishedEffects(ctx, fresh); err != nil {
		return nil, err
	}
	return s.orders.GetByPaymentID(ctx, paymentID)
}

func fulfilled(order *orders.Order) bool {
	return order.TicketGenerated && order.EmailSent
}
