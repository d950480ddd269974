package notify

import (
	"encoding/json"
	"time"
)

const (
	JobOrderConfirmation = "send-order-confirmation"
	JobStatusUpdate      = "send-status-update"
	JobTrackingUpdate    = "send-tracking-update"
)

const MaxAttempts = 3

// Job is the envelope carried on the notification topic. Delivery is
// at-least-once; Attempt counts redeliveries we scheduled ourselves.
type Job struct {
	ID         string          `json:"job_id"`
	Type       string          `json:"job_type"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Payload    json.RawMessage `json:"payload"`
}

type OrderConfirmationPayload struct {
	OrderID    string `json:"order_id"`
	UserID     string `json:"user_id"`
	TotalCents int64  `json:"total_cents"`
}

type StatusUpdatePayload struct {
	OrderID   string `json:"order_id"`
	NewStatus string `json:"new_status"`
}

type TrackingUpdatePayload struct {
	OrderID        string `json:"order_id"`
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`
}
