package payments

import (
	"encoding/json"
	"time"
)

type State string

const (
	StatePending   State = "pending"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
	StateRefunded  State = "refunded"
)

// Terminal reports whether no further provider transition is expected. At
// most one non-terminal payment may exist per order.
func (s State) Terminal() bool { return s != StatePending }

type Payment struct {
	ID                string `json:"id"`
	OrderID           string `json:"order_id"`
	ProviderPaymentID string `json:"provider_payment_id"`
	ProviderChargeID  string `json:"provider_charge_id,omitempty"`
	AmountCents       int64  `json:"amount_cents"`
	Currency          string `json:"currency"`
	Status            State  `json:"status"`

	PaymentMethod string `json:"payment_method,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	ClientSecret  string `json:"-"`

	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	RefundAmountCents int64  `json:"refund_amount_cents"`
	RefundReason      string `json:"refund_reason,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SucceededAt *time.Time `json:"succeeded_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
}

// PaymentEvent is the durable dedup backstop: provider_event_id is unique, so
// two concurrent deliveries of one event cannot both record it.
type PaymentEvent struct {
	ID              string          `json:"id"`
	PaymentID       string          `json:"payment_id"`
	ProviderEventID string          `json:"provider_event_id"`
	EventType       string          `json:"event_type"`
	EventData       json.RawMessage `json:"event_data,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Webhook event types form a closed set; anything else is rejected.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventPaymentCanceled  = "payment_intent.canceled"
	EventChargeRefunded   = "charge.refunded"
)
