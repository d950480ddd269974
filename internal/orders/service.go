package orders

import (
	"context"

	"github.com/adisetya/go-shop-orders/internal/apperr"
	"github.com/adisetya/go-shop-orders/internal/notify"
	"go.uber.org/zap"
)

func (s *Service) Get(ctx context.Context, orderID, requesterID string, admin bool) (Order, []OrderItem, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return Order{}, nil, err
	}
	if !admin && requesterID != "" && o.UserID != requesterID {
		return Order{}, nil, apperr.New(apperr.KindForbidden, "not authorized to view this order")
	}
	items, err := s.store.Items(ctx, orderID)
	if err != nil {
		return Order{}, nil, err
	}
	return o, items, nil
}

func (s *Service) List(ctx context.Context, userID string, page, limit int) ([]Order, int, error) {
	return s.store.ListByUser(ctx, userID, page, limit)
}

func (s *Service) History(ctx context.Context, orderID string) ([]OrderEvent, error) {
	if _, err := s.store.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.History(ctx, orderID)
}

// Cancel releases the order's stock and moves it to cancelled. Only pending
// or confirmed orders can be cancelled.
func (s *Service) Cancel(ctx context.Context, orderID, requesterID string, admin bool) (Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !admin && requesterID != "" && o.UserID != requesterID {
		return Order{}, apperr.New(apperr.KindForbidden, "not authorized to cancel this order")
	}
	if o.Status != StatusPending && o.Status != StatusConfirmed {
		return Order{}, apperr.New(apperr.KindConflict, "cannot cancel order in status %s", o.Status)
	}

	items, err := s.store.Items(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	for _, it := range items {
		if err := s.ledger.Release(ctx, it.ProductID, it.Quantity, orderID, ReleaseKey(orderID, it.ProductID)); err != nil {
			// best-effort, same discipline as saga compensation
			s.log.Error("release on cancel failed",
				zap.Error(err),
				zap.String("order_id", orderID),
				zap.String("product_id", it.ProductID))
		}
	}

	if err := s.store.UpdateStatus(ctx, orderID, StatusCancelled); err != nil {
		return Order{}, err
	}
	_ = s.store.AppendEvent(ctx, orderID, EventOrderCancelledByUser, map[string]any{
		"user_id": requesterID,
	}, true, "")

	o.Status = StatusCancelled
	return o, nil
}

// SetStatus applies a validated status transition and queues a notification.
// Used by the admin endpoint and the internal service-to-service endpoint.
func (s *Service) SetStatus(ctx context.Context, orderID string, st Status) (Order, error) {
	if !ValidStatus(st) {
		return Order{}, apperr.New(apperr.KindValidation, "invalid order status: %s", st)
	}
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(o.Status, st) {
		return Order{}, apperr.New(apperr.KindConflict, "invalid status transition %s -> %s", o.Status, st)
	}
	if err := s.store.UpdateStatus(ctx, orderID, st); err != nil {
		return Order{}, err
	}

	if err := s.queue.Enqueue(ctx, notify.JobStatusUpdate, notify.StatusUpdatePayload{
		OrderID:   orderID,
		NewStatus: string(st),
	}); err != nil {
		s.log.Error("enqueue status update failed", zap.Error(err), zap.String("order_id", orderID))
	}

	o.Status = st
	return o, nil
}

func (s *Service) SetPaymentStatus(ctx context.Context, orderID string, ps PaymentStatus) error {
	if !ValidPaymentStatus(ps) {
		return apperr.New(apperr.KindValidation, "invalid payment status: %s", ps)
	}
	return s.store.UpdatePaymentStatus(ctx, orderID, ps)
}

// AddTracking stores carrier details and moves the order to shipped.
func (s *Service) AddTracking(ctx context.Context, orderID, trackingNumber, carrier string) (Order, error) {
	if trackingNumber == "" || carrier == "" {
		return Order{}, apperr.New(apperr.KindValidation, "tracking number and carrier are required")
	}
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(o.Status, StatusShipped) {
		return Order{}, apperr.New(apperr.KindConflict, "invalid status transition %s -> %s", o.Status, StatusShipped)
	}
	if err := s.store.UpdateTracking(ctx, orderID, trackingNumber, carrier); err != nil {
		return Order{}, err
	}
	if err := s.store.UpdateStatus(ctx, orderID, StatusShipped); err != nil {
		return Order{}, err
	}

	if err := s.queue.Enqueue(ctx, notify.JobTrackingUpdate, notify.TrackingUpdatePayload{
		OrderID:        orderID,
		TrackingNumber: trackingNumber,
		Carrier:        carrier,
	}); err != nil {
		s.log.Error("enqueue tracking update failed", zap.Error(err), zap.String("order_id", orderID))
	}

	o.Status = StatusShipped
	o.TrackingNumber = trackingNumber
	o.Carrier = carrier
	return o, nil
}
