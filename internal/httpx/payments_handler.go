package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/adisetya/go-shop-orders/internal/apperr"
	"github.com/adisetya/go-shop-orders/internal/payments"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type PaymentsHandler struct {
	Service *payments.Service
	Guard   *payments.Guard
	Log     *zap.Logger
}

func (h *PaymentsHandler) Register(r *chi.Mux) {
	r.Route("/payments", func(r chi.Router) {
		r.Use(Identity)
		r.Post("/intent", h.createIntent)
		r.Get("/orders/{orderID}", h.status)

		r.Group(func(r chi.Router) {
			r.Use(RequireRole("admin"))
			r.Post("/refund", h.refund)
		})
	})

	// the provider signs the raw body; no identity middleware here
	r.Post("/webhooks/payments", h.webhook)
}

func (h *PaymentsHandler) createIntent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string `json:"order_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	out, err := h.Service.CreateIntent(r.Context(), payments.CreateIntentInput{
		OrderID: req.OrderID,
		UserID:  UserID(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *PaymentsHandler) status(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.Status(r.Context(), chi.URLParam(r, "orderID"), UserID(r), UserRole(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PaymentsHandler) refund(w http.ResponseWriter, r *http.Request) {
	var req payments.RefundInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ref, err := h.Service.Refund(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

// webhook acks permanent failures with 2xx so the provider stops retrying,
// and answers 5xx only for transient ones where a redelivery can succeed.
func (h *PaymentsHandler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	res, err := h.Guard.Process(r.Context(), body, r.Header.Get("X-Webhook-Signature"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case apperr.IsKind(err, apperr.KindDuplicateEvent):
		writeJSON(w, http.StatusOK, res)
	case apperr.IsKind(err, apperr.KindForbidden):
		// signature failures are the one case the provider must not swallow
		writeError(w, err)
	case errors.Is(err, payments.ErrUnknownEventType),
		apperr.IsKind(err, apperr.KindNotFound),
		apperr.IsKind(err, apperr.KindValidation):
		// permanent: redelivering the same payload can never succeed
		h.Log.Warn("webhook event ignored",
			zap.String("event_id", res.EventID),
			zap.String("event_type", res.EventType),
			zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]any{
			"received": true,
			"ignored":  true,
			"error":    err.Error(),
		})
	default:
		h.Log.Warn("webhook processing failed",
			zap.String("event_id", res.EventID),
			zap.String("event_type", res.EventType),
			zap.Error(err))
		writeError(w, err)
	}
}
