package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adisetya/go-shop-orders/internal/apperr"
	"github.com/adisetya/go-shop-orders/internal/redisx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrUnknownEventType marks event types outside the handled set. The webhook
// endpoint acks these so the provider stops redelivering them.
var ErrUnknownEventType = errors.New("unknown event type")

// DedupCache is the fast duplicate check in front of the payment_events
// table. A cache miss is never trusted on its own.
type DedupCache interface {
	Seen(ctx context.Context, providerEventID string) (bool, error)
	MarkSeen(ctx context.Context, providerEventID string) error
}

type RedisDedup struct{ Rdb *redis.Client }

func (c *RedisDedup) Seen(ctx context.Context, providerEventID string) (bool, error) {
	return redisx.Exists(ctx, c.Rdb, fmt.Sprintf(redisx.KeyWebhookProcessed, providerEventID))
}

func (c *RedisDedup) MarkSeen(ctx context.Context, providerEventID string) error {
	return c.Rdb.Set(ctx, fmt.Sprintf(redisx.KeyWebhookProcessed, providerEventID),
		time.Now().UTC().Format(time.RFC3339), redisx.TTLWebhookDedup).Err()
}

// EventStore is the durable side of webhook processing.
type EventStore interface {
	ByProviderPaymentID(ctx context.Context, providerPaymentID string) (Payment, error)
	UpdateStatus(ctx context.Context, paymentID string, st State, upd StatusUpdate) error
	RecordRefund(ctx context.Context, paymentID string, amountCents int64, reason string) error
	HasEvent(ctx context.Context, providerEventID string) (bool, error)
	InsertEvent(ctx context.Context, ev PaymentEvent) (bool, error)
}

// Guard verifies, deduplicates and applies provider webhook events.
type Guard struct {
	store  EventStore
	cache  DedupCache
	orders OrderClient
	secret string
	log    *zap.Logger
}

func NewGuard(store EventStore, cache DedupCache, orders OrderClient, secret string, log *zap.Logger) *Guard {
	return &Guard{store: store, cache: cache, orders: orders, secret: secret, log: log}
}

type Result struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Duplicate bool   `json:"duplicate"`
}

type envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type intentObject struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	PaymentMethodTypes string `json:"payment_method,omitempty"`
	ReceiptEmail       string `json:"receipt_email,omitempty"`
	LatestCharge       string `json:"latest_charge,omitempty"`
	LastPaymentError   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
}

type chargeObject struct {
	ID             string `json:"id"`
	PaymentIntent  string `json:"payment_intent"`
	AmountRefunded int64  `json:"amount_refunded"`
	RefundReason   string `json:"refund_reason,omitempty"`
}

// VerifySignature checks the HMAC-SHA256 hex digest of the raw body.
func (g *Guard) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}

// Process runs the full ingestion pipeline for one delivery. Replays of an
// already-processed event return Duplicate=true with no state change.
func (g *Guard) Process(ctx context.Context, body []byte, signature string) (Result, error) {
	if !g.VerifySignature(body, signature) {
		return Result{}, apperr.New(apperr.KindForbidden, "invalid webhook signature")
	}

	var ev envelope
	if err := json.Unmarshal(body, &ev); err != nil {
		return Result{}, apperr.Wrap(apperr.KindValidation, err, "malformed webhook payload")
	}
	if ev.ID == "" || ev.Type == "" {
		return Result{}, apperr.New(apperr.KindValidation, "webhook payload missing id or type")
	}
	res := Result{EventID: ev.ID, EventType: ev.Type}

	seen, err := g.cache.Seen(ctx, ev.ID)
	if err != nil {
		g.log.Warn("webhook dedup cache unavailable, falling back to store",
			zap.String("event_id", ev.ID), zap.Error(err))
	}
	if !seen {
		seen, err = g.store.HasEvent(ctx, ev.ID)
		if err != nil {
			return res, apperr.Wrap(apperr.KindUnavailable, err, "event dedup lookup failed")
		}
		if seen {
			// repopulate the cache so the next replay is cheap
			if err := g.cache.MarkSeen(ctx, ev.ID); err != nil {
				g.log.Warn("webhook dedup cache write failed", zap.Error(err))
			}
		}
	}
	if seen {
		res.Duplicate = true
		return res, apperr.New(apperr.KindDuplicateEvent, "event %s already processed", ev.ID)
	}

	paymentID, err := g.dispatch(ctx, ev)
	if err != nil {
		return res, err
	}

	inserted, err := g.store.InsertEvent(ctx, PaymentEvent{
		ID:              uuid.NewString(),
		PaymentID:       paymentID,
		ProviderEventID: ev.ID,
		EventType:       ev.Type,
		EventData:       ev.Data.Object,
	})
	if err != nil {
		return res, apperr.Wrap(apperr.KindUnavailable, err, "recording webhook event failed")
	}
	if err := g.cache.MarkSeen(ctx, ev.ID); err != nil {
		g.log.Warn("webhook dedup cache write failed", zap.Error(err))
	}
	if !inserted {
		// lost the race with a concurrent delivery of the same event
		res.Duplicate = true
		return res, apperr.New(apperr.KindDuplicateEvent, "event %s already processed", ev.ID)
	}
	return res, nil
}

// dispatch applies the event and returns the affected payment id.
func (g *Guard) dispatch(ctx context.Context, ev envelope) (string, error) {
	switch ev.Type {
	case EventPaymentSucceeded:
		return g.onSucceeded(ctx, ev.Data.Object)
	case EventPaymentFailed:
		return g.onFailed(ctx, ev.Data.Object)
	case EventPaymentCanceled:
		return g.onCanceled(ctx, ev.Data.Object)
	case EventChargeRefunded:
		return g.onRefunded(ctx, ev.Data.Object)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownEventType, ev.Type)
	}
}

func (g *Guard) onSucceeded(ctx context.Context, raw json.RawMessage) (string, error) {
	var obj intentObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", apperr.Wrap(apperr.KindValidation, err, "malformed payment intent object")
	}
	p, err := g.store.ByProviderPaymentID(ctx, obj.ID)
	if err != nil {
		return "", err
	}
	upd := StatusUpdate{
		PaymentMethod: obj.PaymentMethodTypes,
		ChargeID:      obj.LatestCharge,
		CustomerEmail: obj.ReceiptEmail,
	}
	if err := g.store.UpdateStatus(ctx, p.ID, StateSucceeded, upd); err != nil {
		return "", err
	}
	// the payment record is authoritative; order propagation is best effort
	if err := g.orders.UpdateStatus(ctx, p.OrderID, "paid"); err != nil {
		g.log.Error("order status propagation failed",
			zap.String("order_id", p.OrderID), zap.String("payment_id", p.ID), zap.Error(err))
	}
	if err := g.orders.UpdatePaymentStatus(ctx, p.OrderID, "paid"); err != nil {
		g.log.Error("order payment status propagation failed",
			zap.String("order_id", p.OrderID), zap.Error(err))
	}
	return p.ID, nil
}

func (g *Guard) onFailed(ctx context.Context, raw json.RawMessage) (string, error) {
	var obj intentObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", apperr.Wrap(apperr.KindValidation, err, "malformed payment intent object")
	}
	p, err := g.store.ByProviderPaymentID(ctx, obj.ID)
	if err != nil {
		return "", err
	}
	upd := StatusUpdate{
		ErrorCode:    obj.LastPaymentError.Code,
		ErrorMessage: obj.LastPaymentError.Message,
	}
	if err := g.store.UpdateStatus(ctx, p.ID, StateFailed, upd); err != nil {
		return "", err
	}
	if err := g.orders.UpdatePaymentStatus(ctx, p.OrderID, "failed"); err != nil {
		g.log.Error("order payment status propagation failed",
			zap.String("order_id", p.OrderID), zap.Error(err))
	}
	return p.ID, nil
}

func (g *Guard) onCanceled(ctx context.Context, raw json.RawMessage) (string, error) {
	var obj intentObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", apperr.Wrap(apperr.KindValidation, err, "malformed payment intent object")
	}
	p, err := g.store.ByProviderPaymentID(ctx, obj.ID)
	if err != nil {
		return "", err
	}
	upd := StatusUpdate{ErrorCode: "canceled", ErrorMessage: obj.CancellationReason}
	if err := g.store.UpdateStatus(ctx, p.ID, StateCancelled, upd); err != nil {
		return "", err
	}
	return p.ID, nil
}

func (g *Guard) onRefunded(ctx context.Context, raw json.RawMessage) (string, error) {
	var obj chargeObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", apperr.Wrap(apperr.KindValidation, err, "malformed charge object")
	}
	p, err := g.store.ByProviderPaymentID(ctx, obj.PaymentIntent)
	if err != nil {
		return "", err
	}
	if err := g.store.RecordRefund(ctx, p.ID, obj.AmountRefunded, obj.RefundReason); err != nil {
		return "", err
	}
	if err := g.orders.UpdateStatus(ctx, p.OrderID, "refunded"); err != nil {
		g.log.Error("order status propagation failed",
			zap.String("order_id", p.OrderID), zap.Error(err))
	}
	if err := g.orders.UpdatePaymentStatus(ctx, p.OrderID, "refunded"); err != nil {
		g.log.Error("order payment status propagation failed",
			zap.String("order_id", p.OrderID), zap.Error(err))
	}
	return p.ID, nil
}
