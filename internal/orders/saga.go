package orders

import (
	"context"
	"fmt"

	"github.com/adisetya/go-shop-orders/internal/apperr"
	"github.com/adisetya/go-shop-orders/internal/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	taxRatePct        = 10   // fixed 10% tax
	shippingFlatCents = 1000 // flat shipping fee
)

// ProductSnapshot is the catalog view the saga prices against. Stock here is
// only a precheck; the ledger is the authority during reservation.
type ProductSnapshot struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SKU        string `json:"sku"`
	PriceCents int64  `json:"price_cents"`
	Stock      int    `json:"stock"`
}

// Collaborators are passed in explicitly so tests can substitute them.

type CatalogClient interface {
	Products(ctx context.Context, ids []string) ([]ProductSnapshot, error)
}

type StockLedger interface {
	Reserve(ctx context.Context, productID string, qty int, orderID, idemKey string) error
	Release(ctx context.Context, productID string, qty int, orderID, idemKey string) error
}

type Notifier interface {
	Enqueue(ctx context.Context, jobType string, payload any) error
}

type Store interface {
	CreateOrderTx(ctx context.Context, o *Order, items []OrderItem) error
	Get(ctx context.Context, orderID string) (Order, error)
	Items(ctx context.Context, orderID string) ([]OrderItem, error)
	ListByUser(ctx context.Context, userID string, page, limit int) ([]Order, int, error)
	UpdateStatus(ctx context.Context, orderID string, st Status) error
	UpdatePaymentStatus(ctx context.Context, orderID string, ps PaymentStatus) error
	UpdateTracking(ctx context.Context, orderID, trackingNumber, carrier string) error
	AppendEvent(ctx context.Context, orderID, eventType string, payload any, success bool, errMsg string) error
	History(ctx context.Context, orderID string) ([]OrderEvent, error)
}

type Service struct {
	store   Store
	catalog CatalogClient
	ledger  StockLedger
	queue   Notifier
	log     *zap.Logger
}

func NewService(store Store, catalog CatalogClient, ledger StockLedger, queue Notifier, log *zap.Logger) *Service {
	return &Service{store: store, catalog: catalog, ledger: ledger, queue: queue, log: log}
}

type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type ShippingInput struct {
	Address string `json:"address"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

type CreateOrderInput struct {
	UserID   string
	Items    []ItemInput
	Shipping ShippingInput
}

// reserveStep is the typed outcome of one reservation call; the slice of
// completed steps is the compensation set.
type reserveStep struct {
	Index     int    `json:"step"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func ReserveKey(orderID, productID string) string {
	return fmt.Sprintf("order-%s-product-%s", orderID, productID)
}

func ReleaseKey(orderID, productID string) string {
	return fmt.Sprintf("release-order-%s-product-%s", orderID, productID)
}

// CreateOrder runs the order-creation saga: validate against a catalog
// snapshot, persist locally, then reserve stock item by item. Reservation
// calls are sequential so the compensation set stays well-ordered. Any
// reservation failure releases the earlier reservations (best-effort) and
// cancels the order.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (Order, error) {
	if err := validateCreate(in); err != nil {
		return Order{}, err
	}

	ids := make([]string, 0, len(in.Items))
	seen := map[string]bool{}
	for _, it := range in.Items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}

	snapshot, err := s.catalog.Products(ctx, ids)
	if err != nil {
		return Order{}, err
	}
	// one snapshot per line: missing products AND duplicate lines both fail
	// this check. Duplicate lines would share a reservation idempotency key,
	// so the second reserve would be swallowed as a replay.
	if len(snapshot) != len(in.Items) {
		return Order{}, apperr.New(apperr.KindNotFound, "some products not found")
	}
	byID := make(map[string]ProductSnapshot, len(snapshot))
	for _, p := range snapshot {
		byID[p.ID] = p
	}

	// stock precheck against the snapshot; the ledger re-checks under lock
	for _, it := range in.Items {
		p := byID[it.ProductID]
		if p.Stock < it.Quantity {
			return Order{}, apperr.New(apperr.KindConflict, "insufficient stock for %s", p.Name)
		}
	}

	var subtotal int64
	items := make([]OrderItem, 0, len(in.Items))
	for _, it := range in.Items {
		p := byID[it.ProductID]
		line := p.PriceCents * int64(it.Quantity)
		subtotal += line
		items = append(items, OrderItem{
			ID:              uuid.NewString(),
			ProductID:       p.ID,
			ProductName:     p.Name,
			ProductSKU:      p.SKU,
			Quantity:        it.Quantity,
			UnitPriceCents:  p.PriceCents,
			TotalPriceCents: line,
		})
	}
	tax := subtotal * taxRatePct / 100
	total := subtotal + tax + shippingFlatCents

	country := in.Shipping.Country
	if country == "" {
		country = "US"
	}
	o := Order{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		SubtotalCents:   subtotal,
		TaxCents:        tax,
		ShippingCents:   shippingFlatCents,
		TotalCents:      total,
		ShippingAddress: in.Shipping.Address,
		ShippingCity:    in.Shipping.City,
		ShippingState:   in.Shipping.State,
		ShippingZip:     in.Shipping.Zip,
		ShippingCountry: country,
		CustomerNotes:   in.Shipping.Notes,
	}
	for i := range items {
		items[i].OrderID = o.ID
	}

	if err := s.store.CreateOrderTx(ctx, &o, items); err != nil {
		return Order{}, err
	}
	s.log.Info("order persisted", zap.String("order_id", o.ID), zap.String("user_id", o.UserID))

	// sequential reservation; each call carries its own idempotency key so a
	// whole-call retry by the caller stays safe
	var completed []reserveStep
	for i, it := range in.Items {
		err := s.ledger.Reserve(ctx, it.ProductID, it.Quantity, o.ID, ReserveKey(o.ID, it.ProductID))
		if err != nil {
			retryable := apperr.KindOf(err) == apperr.KindUnavailable
			_ = s.store.AppendEvent(ctx, o.ID, EventStockReserveFailed, map[string]any{
				"step":       i,
				"product_id": it.ProductID,
				"quantity":   it.Quantity,
				"retryable":  retryable,
			}, false, err.Error())
			return Order{}, s.failSaga(ctx, o.ID, completed, err)
		}
		completed = append(completed, reserveStep{Index: i, ProductID: it.ProductID, Quantity: it.Quantity})
		_ = s.store.AppendEvent(ctx, o.ID, EventStockReserved, map[string]any{
			"step":       i,
			"product_id": it.ProductID,
			"quantity":   it.Quantity,
		}, true, "")
	}

	if err := s.store.UpdateStatus(ctx, o.ID, StatusConfirmed); err != nil {
		return Order{}, err
	}
	_ = s.store.AppendEvent(ctx, o.ID, EventOrderConfirmed, nil, true, "")
	o.Status = StatusConfirmed

	if err := s.queue.Enqueue(ctx, notify.JobOrderConfirmation, notify.OrderConfirmationPayload{
		OrderID:    o.ID,
		UserID:     o.UserID,
		TotalCents: o.TotalCents,
	}); err != nil {
		// fire-and-forget: the order is already confirmed
		s.log.Error("enqueue confirmation failed", zap.Error(err), zap.String("order_id", o.ID))
	}

	return o, nil
}

// failSaga is the single compensation routine: release what was reserved,
// cancel the order, surface a permanent creation error.
func (s *Service) failSaga(ctx context.Context, orderID string, completed []reserveStep, cause error) error {
	for _, st := range completed {
		if err := s.ledger.Release(ctx, st.ProductID, st.Quantity, orderID, ReleaseKey(orderID, st.ProductID)); err != nil {
			// best-effort: logged for manual reconciliation, never retried
			s.log.Error("compensation release failed",
				zap.Error(err),
				zap.String("order_id", orderID),
				zap.String("product_id", st.ProductID))
			continue
		}
		s.log.Info("released reserved stock",
			zap.String("order_id", orderID), zap.String("product_id", st.ProductID))
	}

	if err := s.store.UpdateStatus(ctx, orderID, StatusCancelled); err != nil {
		s.log.Error("cancel after failed reservation", zap.Error(err), zap.String("order_id", orderID))
	}
	_ = s.store.AppendEvent(ctx, orderID, EventOrderCancelled, map[string]any{
		"reason": "stock_reservation_failed",
	}, true, "")

	k := apperr.KindOf(cause)
	if k == apperr.KindUnknown {
		k = apperr.KindConflict
	}
	return apperr.Wrap(k, cause, "order creation failed: stock reservation failed, order cancelled")
}

func validateCreate(in CreateOrderInput) error {
	if in.UserID == "" {
		return apperr.New(apperr.KindValidation, "user id is required")
	}
	if len(in.Items) == 0 {
		return apperr.New(apperr.KindValidation, "items are required")
	}
	for _, it := range in.Items {
		if it.ProductID == "" {
			return apperr.New(apperr.KindValidation, "invalid item format")
		}
		if it.Quantity < 1 {
			return apperr.New(apperr.KindValidation, "quantity must be at least 1")
		}
	}
	if in.Shipping.Address == "" {
		return apperr.New(apperr.KindValidation, "shipping address is required")
	}
	return nil
}
