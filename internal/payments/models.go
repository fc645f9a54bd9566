package payments

import "encoding/json"

// CreatePaymentRequest is the body sent to the gateway to open a payment
// intent for an order.
type CreatePaymentRequest struct {
	PriceAmount      float64 `json:"price_amount"`
	PriceCurrency    string  `json:"price_currency"`
	PayCurrency      string  `json:"pay_currency"`
	OrderID          string  `json:"order_id"`
	OrderDescription string  `json:"order_description,omitempty"`
	IPNCallbackURL   string  `json:"ipn_callback_url,omitempty"`
}

// PaymentIntent is the gateway's answer to a create-payment call. The
// gateway reports payment ids as numbers; json.Number keeps them lossless.
type PaymentIntent struct {
	PaymentID     json.Number `json:"payment_id"`
	PaymentStatus string      `json:"payment_status"`
	PayAddress    string      `json:"pay_address"`
	PayAmount     float64     `json:"pay_amount"`
	PayCurrency   string      `json:"pay_currency"`
	PriceAmount   float64     `json:"price_amount"`
	PriceCurrency string      `json:"price_currency"`
	OrderID       string      `json:"order_id"`
	CreatedAt     string      `json:"created_at"`
}

// PaymentStatusInfo is one payment's status as reported by either status
// endpoint.
type PaymentStatusInfo struct {
	PaymentID      json.Number `json:"payment_id"`
	PaymentStatus  string      `json:"payment_status"`
	PayAddress     string      `json:"pay_address"`
	PriceAmount    float64     `json:"price_amount"`
	PriceCurrency  string      `json:"price_currency"`
	ActuallyPaid   float64     `json:"actually_paid"`
	OrderID        string      `json:"order_id"`
	OutcomeAmount  float64     `json:"outcome_amount"`
	OutcomeCurrency string     `json:"outcome_currency"`
	UpdatedAt      string      `json:"updated_at"`
}

// paymentListResponse is the envelope of the paginated recent-payments
// endpoint.
type paymentListResponse struct {
	Data []PaymentStatusInfo `json:"data"`
}

// WebhookPayload is the body of an inbound IPN callback.
type WebhookPayload struct {
	PaymentID     json.Number `json:"payment_id"`
	PaymentStatus string      `json:"payment_status"`
	OrderID       string      `json:"order_id"`
	PayAddress    string      `json:"pay_address"`
	PriceAmount   float64     `json:"price_amount"`
	PriceCurrency string      `json:"price_currency"`
	ActuallyPaid  float64     `json:"actually_paid"`
}
