package orders

// PaymentStatus mirrors the gateway's payment status vocabulary. It is a
// closed enumeration with an explicit transition table; reconciliation
// refuses anything outside it.
type PaymentStatus string

const (
	StatusWaiting       PaymentStatus = "waiting"
	StatusConfirming    PaymentStatus = "confirming"
	StatusConfirmed     PaymentStatus = "confirmed"
	StatusSending       PaymentStatus = "sending"
	StatusPartiallyPaid PaymentStatus = "partially_paid"
	StatusFinished      PaymentStatus = "finished"
	StatusFailed        PaymentStatus = "failed"
	StatusExpired       PaymentStatus = "expired"
	StatusCancelled     PaymentStatus = "cancelled"
)

// IsValid checks if the payment status is part of the gateway vocabulary
func (s PaymentStatus) IsValid() bool {
	switch s {
	case StatusWaiting, StatusConfirming, StatusConfirmed, StatusSending,
		StatusPartiallyPaid, StatusFinished, StatusFailed, StatusExpired,
		StatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status is final. A stored terminal status
// never regresses, regardless of late or out-of-order signals.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// IsPaidProgress reports whether the status indicates money observed on
// chain but fulfillment not yet due (triggers the one-time payment
// confirmation email).
func (s PaymentStatus) IsPaidProgress() bool {
	return s == StatusConfirmed || s == StatusPartiallyPaid
}

// CanTransitionTo reports whether moving from s to next is legal.
// Non-terminal statuses may move to any other status in the vocabulary
// (the gateway does not guarantee passing through every intermediate
// state); terminal statuses accept no successor.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if !next.IsValid() {
		return false
	}
	if s == next {
		return false
	}
	return !s.IsTerminal()
}

// CanBeCancelledByCustomer reports whether a customer-initiated cancel is
// still allowed. Once the gateway observes funds the order must run
// through reconciliation instead.
func (s PaymentStatus) CanBeCancelledByCustomer() bool {
	return s == StatusWaiting
}
