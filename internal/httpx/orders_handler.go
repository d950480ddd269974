package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/adisetya/go-shop-orders/internal/orders"
	"github.com/adisetya/go-shop-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

type OrdersHandler struct {
	Service *orders.Service
	Redis   *redis.Client
}

type createOrderReq struct {
	Items    []orders.ItemInput   `json:"items"`
	Shipping orders.ShippingInput `json:"shipping"`
}

type orderResp struct {
	orders.Order
	Items []orders.OrderItem `json:"items,omitempty"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Route("/orders", func(r chi.Router) {
		r.Use(Identity)
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Get("/{id}", h.getOrder)
		r.Get("/{id}/status", h.getOrderStatus)
		r.Get("/{id}/history", h.getHistory)
		r.Post("/{id}/cancel", h.cancelOrder)

		r.Group(func(r chi.Router) {
			r.Use(RequireRole("admin", "seller"))
			r.Patch("/{id}/status", h.setStatus)
			r.Patch("/{id}/tracking", h.addTracking)
		})
	})

	// service-to-service endpoints, no identity headers
	r.Route("/internal/orders", func(r chi.Router) {
		r.Get("/{id}", h.internalGet)
		r.Patch("/{id}/status", h.internalSetStatus)
		r.Patch("/{id}/payment-status", h.internalSetPaymentStatus)
	})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Service.CreateOrder(ctx, orders.CreateOrderInput{
		UserID:   UserID(r),
		Items:    req.Items,
		Shipping: req.Shipping,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	os, total, err := h.Service.List(r.Context(), UserID(r), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orders": os,
		"total":  total,
	})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, items, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"), UserID(r), IsAdmin(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResp{Order: o, Items: items})
}

// cachedStatusEntry is what cacheStatus stores. The owner travels with the
// status so a cache hit can be authorized without touching the store.
type cachedStatusEntry struct {
	Status string `json:"status"`
	UserID string `json:"user_id"`
}

// statusFromCache returns the cached status when the raw entry parses and the
// caller is the order's owner or an admin. Any other entry misses.
func statusFromCache(raw []byte, userID string, admin bool) (string, bool) {
	var e cachedStatusEntry
	if err := json.Unmarshal(raw, &e); err != nil || e.Status == "" {
		return "", false
	}
	if !admin && e.UserID != userID {
		return "", false
	}
	return e.Status, true
}

// getOrderStatus serves the hot path from redis and falls back to the store.
func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if s, err := h.Redis.Get(r.Context(), key).Result(); err == nil && s != "" {
		if status, ok := statusFromCache([]byte(s), UserID(r), IsAdmin(r)); ok {
			writeJSON(w, http.StatusOK, map[string]string{"status": status})
			return
		}
	}

	o, _, err := h.Service.Get(r.Context(), orderID, UserID(r), IsAdmin(r))
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, map[string]string{"status": string(o.Status)})
}

func (h *OrdersHandler) getHistory(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if _, _, err := h.Service.Get(r.Context(), orderID, UserID(r), IsAdmin(r)); err != nil {
		writeError(w, err)
		return
	}
	evs, err := h.Service.History(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Service.Cancel(ctx, chi.URLParam(r, "id"), UserID(r), IsAdmin(r))
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) setStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	o, err := h.Service.SetStatus(r.Context(), chi.URLParam(r, "id"), orders.Status(req.Status))
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) addTracking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackingNumber string `json:"tracking_number"`
		Carrier        string `json:"carrier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	o, err := h.Service.AddTracking(r.Context(), chi.URLParam(r, "id"), req.TrackingNumber, req.Carrier)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) internalGet(w http.ResponseWriter, r *http.Request) {
	o, _, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"), "", true)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) internalSetStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	o, err := h.Service.SetStatus(r.Context(), chi.URLParam(r, "id"), orders.Status(req.Status))
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) internalSetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentStatus string `json:"payment_status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if err := h.Service.SetPaymentStatus(r.Context(), chi.URLParam(r, "id"), orders.PaymentStatus(req.PaymentStatus)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"payment_status": req.PaymentStatus})
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o orders.Order) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	b, _ := json.Marshal(cachedStatusEntry{Status: string(o.Status), UserID: o.UserID})
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}
