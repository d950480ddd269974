package orders

import (
	"encoding/json"
	"time"
)

type Order struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`

	SubtotalCents int64 `json:"subtotal_cents"`
	TaxCents      int64 `json:"tax_cents"`
	ShippingCents int64 `json:"shipping_cents"`
	DiscountCents int64 `json:"discount_cents"`
	TotalCents    int64 `json:"total_cents"`

	ShippingAddress string `json:"shipping_address"`
	ShippingCity    string `json:"shipping_city,omitempty"`
	ShippingState   string `json:"shipping_state,omitempty"`
	ShippingZip     string `json:"shipping_zip,omitempty"`
	ShippingCountry string `json:"shipping_country"`
	CustomerNotes   string `json:"customer_notes,omitempty"`

	TrackingNumber string `json:"tracking_number,omitempty"`
	Carrier        string `json:"carrier,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// OrderItem snapshots the product at order-creation time; price and name are
// frozen here and never re-read from the catalog.
type OrderItem struct {
	ID              string    `json:"id"`
	OrderID         string    `json:"order_id"`
	ProductID       string    `json:"product_id"`
	ProductName     string    `json:"product_name"`
	ProductSKU      string    `json:"product_sku,omitempty"`
	Quantity        int       `json:"quantity"`
	UnitPriceCents  int64     `json:"unit_price_cents"`
	TotalPriceCents int64     `json:"total_price_cents"`
	CreatedAt       time.Time `json:"created_at"`
}

// OrderEvent is an append-only audit record of a saga step.
type OrderEvent struct {
	ID           string          `json:"id"`
	OrderID      string          `json:"order_id"`
	EventType    string          `json:"event_type"`
	EventData    json.RawMessage `json:"event_data,omitempty"`
	Success      bool            `json:"success"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Audit event types written by the coordinator and the worker.
const (
	EventOrderCreated          = "order_created"
	EventStockReserved         = "stock_reserved"
	EventStockReserveFailed    = "stock_reservation_failed"
	EventOrderConfirmed        = "order_confirmed"
	EventOrderCancelled        = "order_cancelled"
	EventOrderCancelledByUser  = "order_cancelled_by_user"
	EventConfirmationEmailSent = "confirmation_email_sent"
)
