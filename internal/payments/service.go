package payments

import (
	"context"
	"fmt"

	"github.com/adisetya/go-shop-orders/internal/apperr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentStore is the persistence surface the service needs.
type PaymentStore interface {
	Create(ctx context.Context, p *Payment) error
	ByOrderID(ctx context.Context, orderID string) (Payment, error)
}

type Service struct {
	store    PaymentStore
	provider Provider
	orders   OrderClient
	log      *zap.Logger
}

func NewService(store PaymentStore, provider Provider, orders OrderClient, log *zap.Logger) *Service {
	return &Service{store: store, provider: provider, orders: orders, log: log}
}

type CreateIntentInput struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"-"`
}

type IntentOutput struct {
	PaymentID    string `json:"payment_id"`
	OrderID      string `json:"order_id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
	Status       State  `json:"status"`
}

// CreateIntent creates a payment intent for an order. Calling it again while
// a pending payment exists returns that payment instead of a new intent.
func (s *Service) CreateIntent(ctx context.Context, in CreateIntentInput) (IntentOutput, error) {
	if in.OrderID == "" {
		return IntentOutput{}, apperr.New(apperr.KindValidation, "order_id is required")
	}

	ord, err := s.orders.Order(ctx, in.OrderID)
	if err != nil {
		return IntentOutput{}, err
	}
	if in.UserID != "" && ord.UserID != in.UserID {
		return IntentOutput{}, apperr.New(apperr.KindForbidden, "order belongs to another user")
	}
	switch ord.Status {
	case "cancelled", "refunded":
		return IntentOutput{}, apperr.New(apperr.KindConflict, "order %s is %s", ord.ID, ord.Status)
	}

	existing, err := s.store.ByOrderID(ctx, in.OrderID)
	switch {
	case err == nil && existing.Status == StateSucceeded:
		return IntentOutput{}, apperr.New(apperr.KindConflict, "order %s is already paid", in.OrderID)
	case err == nil && existing.Status == StatePending:
		return intentOutput(existing), nil
	case err != nil && !apperr.IsKind(err, apperr.KindNotFound):
		return IntentOutput{}, err
	}

	intent, err := s.provider.CreateIntent(ctx, IntentRequest{
		AmountCents: ord.TotalCents,
		Currency:    "USD",
		OrderID:     ord.ID,
		UserID:      ord.UserID,
		Description: fmt.Sprintf("order %s", ord.ID),
	})
	if err != nil {
		return IntentOutput{}, err
	}

	p := Payment{
		ID:                uuid.NewString(),
		OrderID:           ord.ID,
		ProviderPaymentID: intent.ID,
		AmountCents:       ord.TotalCents,
		Currency:          "USD",
		Status:            StatePending,
		ClientSecret:      intent.ClientSecret,
	}
	if err := s.store.Create(ctx, &p); err != nil {
		return IntentOutput{}, err
	}
	s.log.Info("payment intent created",
		zap.String("payment_id", p.ID),
		zap.String("order_id", ord.ID),
		zap.Int64("amount_cents", p.AmountCents))
	return intentOutput(p), nil
}

func intentOutput(p Payment) IntentOutput {
	return IntentOutput{
		PaymentID:    p.ID,
		OrderID:      p.OrderID,
		ClientSecret: p.ClientSecret,
		AmountCents:  p.AmountCents,
		Currency:     p.Currency,
		Status:       p.Status,
	}
}

func (s *Service) Status(ctx context.Context, orderID, userID, role string) (Payment, error) {
	p, err := s.store.ByOrderID(ctx, orderID)
	if err != nil {
		return Payment{}, err
	}
	if role != "admin" {
		ord, err := s.orders.Order(ctx, orderID)
		if err != nil {
			return Payment{}, err
		}
		if ord.UserID != userID {
			return Payment{}, apperr.New(apperr.KindForbidden, "order belongs to another user")
		}
	}
	return p, nil
}

type RefundInput struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason,omitempty"`
}

// Refund asks the provider to refund a succeeded payment in full. The state
// flip to refunded happens when the charge.refunded webhook lands.
func (s *Service) Refund(ctx context.Context, in RefundInput) (Refund, error) {
	if in.OrderID == "" {
		return Refund{}, apperr.New(apperr.KindValidation, "order_id is required")
	}
	p, err := s.store.ByOrderID(ctx, in.OrderID)
	if err != nil {
		return Refund{}, err
	}
	if p.Status != StateSucceeded {
		return Refund{}, apperr.New(apperr.KindConflict, "payment for order %s is %s, only succeeded payments can be refunded", in.OrderID, p.Status)
	}
	ref, err := s.provider.CreateRefund(ctx, RefundRequest{
		ProviderPaymentID: p.ProviderPaymentID,
		AmountCents:       p.AmountCents,
		Reason:            in.Reason,
	})
	if err != nil {
		return Refund{}, err
	}
	s.log.Info("refund requested",
		zap.String("payment_id", p.ID),
		zap.String("order_id", p.OrderID),
		zap.String("refund_id", ref.ID))
	return ref, nil
}
