package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/adisetya/go-shop-orders/internal/apperr"
	"github.com/adisetya/go-shop-orders/internal/inventory"
	"github.com/go-chi/chi/v5"
)

type InventoryHandler struct {
	Service *inventory.Service
}

type stockMutationReq struct {
	Quantity       int    `json:"quantity"`
	OrderID        string `json:"order_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *InventoryHandler) Register(r *chi.Mux) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/bulk", h.bulkProducts)
		r.Get("/{id}", h.getProduct)
		r.Post("/{id}/reserve", h.reserve)
		r.Post("/{id}/release", h.release)
	})
}

func (h *InventoryHandler) bulkProducts(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ids query parameter is required"})
		return
	}
	ids := strings.Split(raw, ",")

	ps, err := h.Service.Products(r.Context(), ids)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": ps})
}

func (h *InventoryHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.Product(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *InventoryHandler) reserve(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.Service.Reserve)
}

func (h *InventoryHandler) release(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.Service.Release)
}

type mutateFn func(ctx context.Context, productID string, qty int, orderID, idemKey string) (inventory.MutationResponse, error)

func (h *InventoryHandler) mutate(w http.ResponseWriter, r *http.Request, fn mutateFn) {
	var req stockMutationReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	resp, err := fn(r.Context(), chi.URLParam(r, "id"), req.Quantity, req.OrderID, req.IdempotencyKey)
	if err != nil && !apperr.IsKind(err, apperr.KindConflict) {
		writeError(w, err)
		return
	}
	if !resp.Success {
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
