package orders

// CreateOrderRequest represents the purchase request body
type CreateOrderRequest struct {
	TicketType    string `json:"ticketType" binding:"required"`
	Quantity      int    `json:"quantity" binding:"required,min=1"`
	CustomerName  string `json:"customerName" binding:"required,min=2,max=100"`
	CustomerEmail string `json:"customerEmail" binding:"required,email"`
}

// PurchaseResponse carries everything the sales page needs to show the
// payment instructions.
type PurchaseResponse struct {
	OrderID     string  `json:"orderId"`
	PaymentID   string  `json:"paymentId"`
	PayAddress  string  `json:"payAddress"`
	PayAmount   float64 `json:"payAmount"`
	PayCurrency string  `json:"payCurrency"`
	TotalAmount float64 `json:"totalAmount"`
	Currency    string  `json:"currency"`
}

// PaymentIDRequest is the shared body for the endpoints keyed by payment id.
type PaymentIDRequest struct {
	PaymentID string `json:"paymentId" binding:"required"`
}

// ResendEmailRequest represents the manual re-send request body
type ResendEmailRequest struct {
	OrderID string `json:"orderId" binding:"required,uuid"`
}
