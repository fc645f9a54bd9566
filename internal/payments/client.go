package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"summitpass/internal/shared/config"
	"summitpass/pkg/logger"
)

var (
	// ErrGatewayUnavailable is returned when the gateway timed out or
	// answered non-2xx. Callers fall back to the last known stored status
	// rather than failing the request.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrPaymentNotFound is returned when a status lookup found no payment
	// with the given id.
	ErrPaymentNotFound = errors.New("payment not found at gateway")
)

// Client talks to the crypto payment processor. It is constructed once and
// injected; the HTTP client carries the request-level timeout so no
// gateway call can hang a purchase indefinitely.
type Client interface {
	// CreatePayment opens a payment intent for the order.
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentIntent, error)

	// GetPaymentStatus queries the single-resource status endpoint.
	GetPaymentStatus(ctx context.Context, paymentID string) (*PaymentStatusInfo, error)

	// GetStatusFromRecentList queries the paginated recent-payments
	// endpoint and scans for the payment id. The list endpoint is observed
	// to be fresher than the single-resource endpoint for this gateway, so
	// reconciliation prefers its answer (see ResolveStatus).
	GetStatusFromRecentList(ctx context.Context, paymentID string) (*PaymentStatusInfo, error)
}

type client struct {
	baseURL     string
	apiKey      string
	callbackURL string
	httpClient  *http.Client
	log         *logger.Logger
}

// NewClient creates a new gateway client from configuration
func NewClient(cfg config.GatewayConfig, log *logger.Logger) Client {
	return &client{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		callbackURL: cfg.CallbackURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log,
	}
}

func (c *client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentIntent, error) {
	if req.IPNCallbackURL == "" {
		req.IPNCallbackURL = c.callbackURL
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payment", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build payment request: %w", err)
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: create payment returned %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var intent PaymentIntent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent: %w", err)
	}
	return &intent, nil
}

func (c *client) GetPaymentStatus(ctx context.Context, paymentID string) (*PaymentStatusInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payment/"+url.PathEscape(paymentID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrPaymentNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: payment status returned %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var info PaymentStatusInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode payment status: %w", err)
	}
	return &info, nil
}

func (c *client) GetStatusFromRecentList(ctx context.Context, paymentID string) (*PaymentStatusInfo, error) {
	query := url.Values{}
	query.Set("limit", "100")
	query.Set("page", "0")
	query.Set("sortBy", "created_at")
	query.Set("orderBy", "desc")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payment/?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build list request: %w", err)
	}
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: payment list returned %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var list paymentListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode payment list: %w", err)
	}

	for i := range list.Data {
		if list.Data[i].PaymentID.String() == paymentID {
			return &list.Data[i], nil
		}
	}
	return nil, ErrPaymentNotFound
}

// ResolveStatus picks the canonical status when the two gateway endpoints
// disagree. The list endpoint wins whenever it produced an answer; the
// single-resource endpoint is only trusted as a fallback. Empty string
// means neither source knows.
func ResolveStatus(listStatus, individualStatus string) string {
	if listStatus != "" {
		return listStatus
	}
	return individualStatus
}
