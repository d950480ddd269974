package httpx

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adisetya/go-shop-orders/internal/apperr"
	"github.com/adisetya/go-shop-orders/internal/payments"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const webhookTestSecret = "whsec_handler"

type stubEventStore struct {
	payments  map[string]payments.Payment
	events    map[string]payments.PaymentEvent
	lookupErr error
}

func newStubEventStore(ps ...payments.Payment) *stubEventStore {
	s := &stubEventStore{payments: map[string]payments.Payment{}, events: map[string]payments.PaymentEvent{}}
	for _, p := range ps {
		s.payments[p.ProviderPaymentID] = p
	}
	return s
}

func (s *stubEventStore) ByProviderPaymentID(ctx context.Context, id string) (payments.Payment, error) {
	if s.lookupErr != nil {
		return payments.Payment{}, s.lookupErr
	}
	p, ok := s.payments[id]
	if !ok {
		return payments.Payment{}, apperr.New(apperr.KindNotFound, "payment not found for intent %s", id)
	}
	return p, nil
}

func (s *stubEventStore) UpdateStatus(ctx context.Context, paymentID string, st payments.State, upd payments.StatusUpdate) error {
	return nil
}

func (s *stubEventStore) RecordRefund(ctx context.Context, paymentID string, amountCents int64, reason string) error {
	return nil
}

func (s *stubEventStore) HasEvent(ctx context.Context, providerEventID string) (bool, error) {
	_, ok := s.events[providerEventID]
	return ok, nil
}

func (s *stubEventStore) InsertEvent(ctx context.Context, ev payments.PaymentEvent) (bool, error) {
	if _, ok := s.events[ev.ProviderEventID]; ok {
		return false, nil
	}
	s.events[ev.ProviderEventID] = ev
	return true, nil
}

type stubDedup struct{ seen map[string]bool }

func (c *stubDedup) Seen(ctx context.Context, id string) (bool, error) { return c.seen[id], nil }
func (c *stubDedup) MarkSeen(ctx context.Context, id string) error {
	c.seen[id] = true
	return nil
}

type stubOrders struct{}

func (stubOrders) Order(ctx context.Context, orderID string) (payments.OrderSummary, error) {
	return payments.OrderSummary{ID: orderID, UserID: "u1", Status: "confirmed"}, nil
}
func (stubOrders) UpdateStatus(ctx context.Context, orderID, status string) error        { return nil }
func (stubOrders) UpdatePaymentStatus(ctx context.Context, orderID, status string) error { return nil }

func webhookRouter(store *stubEventStore) *chi.Mux {
	g := payments.NewGuard(store, &stubDedup{seen: map[string]bool{}}, stubOrders{}, webhookTestSecret, zap.NewNop())
	h := &PaymentsHandler{Guard: g, Log: zap.NewNop()}
	r := chi.NewRouter()
	r.Post("/webhooks/payments", h.webhook)
	return r
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookTestSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookBody(t *testing.T, id, typ string, object map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"id":   id,
		"type": typ,
		"data": map[string]any{"object": object},
	})
	require.NoError(t, err)
	return b
}

func postWebhook(r http.Handler, body []byte, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature", sig)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestWebhookEndpointRejectsBadSignature(t *testing.T) {
	r := webhookRouter(newStubEventStore())

	body := webhookBody(t, "evt_1", payments.EventPaymentSucceeded, map[string]any{"id": "pi_1"})
	rec := postWebhook(r, body, "deadbeef")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// signed events the service can never act on must still be acked, or the
// provider redelivers them forever
func TestWebhookEndpointAcksPermanentFailures(t *testing.T) {
	cases := map[string][]byte{
		"unknown intent": webhookBody(t, "evt_1", payments.EventPaymentSucceeded, map[string]any{"id": "pi_ghost"}),
		"unknown type":   webhookBody(t, "evt_2", "customer.created", map[string]any{"id": "cus_1"}),
		"missing type":   []byte(`{"id":"evt_3"}`),
	}
	for name, body := range cases {
		r := webhookRouter(newStubEventStore())
		rec := postWebhook(r, body, signBody(body))
		require.Equal(t, http.StatusOK, rec.Code, name)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), name)
		assert.Equal(t, true, resp["ignored"], name)
		assert.NotEmpty(t, resp["error"], name)
	}
}

func TestWebhookEndpointAcksDuplicates(t *testing.T) {
	store := newStubEventStore(payments.Payment{
		ID: "pay1", OrderID: "o1", ProviderPaymentID: "pi_1", Status: payments.StatePending,
	})
	r := webhookRouter(store)

	body := webhookBody(t, "evt_1", payments.EventPaymentSucceeded, map[string]any{"id": "pi_1"})
	rec := postWebhook(r, body, signBody(body))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postWebhook(r, body, signBody(body))
	assert.Equal(t, http.StatusOK, rec.Code)

	var res payments.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Duplicate)
}

func TestWebhookEndpointAsksForRedeliveryOnOutage(t *testing.T) {
	store := newStubEventStore()
	store.lookupErr = apperr.New(apperr.KindUnavailable, "payments db down")
	r := webhookRouter(store)

	body := webhookBody(t, "evt_1", payments.EventPaymentSucceeded, map[string]any{"id": "pi_1"})
	rec := postWebhook(r, body, signBody(body))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
