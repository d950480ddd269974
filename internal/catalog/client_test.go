package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adisetya/go-shop-orders/internal/apperr"
	"github.com/adisetya/go-shop-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClient(baseURL string) *Client {
	c := New(baseURL, zap.NewNop())
	c.delay = func(int) time.Duration { return 0 }
	return c
}

func TestProductsBulk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/bulk", r.URL.Path)
		assert.Equal(t, "p1,p2", r.URL.Query().Get("ids"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"products": []orders.ProductSnapshot{
				{ID: "p1", Name: "Widget", SKU: "WID-1", PriceCents: 1000, Stock: 10},
				{ID: "p2", Name: "Gadget", SKU: "GAD-1", PriceCents: 500, Stock: 5},
			},
		})
	}))
	defer srv.Close()

	ps, err := testClient(srv.URL).Products(context.Background(), []string{"p1", "p2"})
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, int64(1000), ps[0].PriceCents)
}

func TestProductsRetriesOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"products": []orders.ProductSnapshot{{ID: "p1", Name: "Widget", PriceCents: 1000, Stock: 10}},
		})
	}))
	defer srv.Close()

	ps, err := testClient(srv.URL).Products(context.Background(), []string{"p1"})
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestProductsGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Products(context.Background(), []string{"p1"})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUnavailable))
	assert.Equal(t, int32(4), calls.Load()) // initial call plus three retries
}

func TestReserveSendsIdempotencyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/p1/reserve", r.URL.Path)
		var req mutationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 2, req.Quantity)
		assert.Equal(t, "o1", req.OrderID)
		assert.Equal(t, "order-o1-product-p1", req.IdempotencyKey)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "remaining_stock": 8})
	}))
	defer srv.Close()

	err := testClient(srv.URL).Reserve(context.Background(), "p1", 2, "o1", "order-o1-product-p1")
	require.NoError(t, err)
}

func TestReserveMapsStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   apperr.Kind
		msg    string
	}{
		{"conflict", http.StatusConflict, `{"error":"insufficient stock for product p1"}`, apperr.KindConflict, "insufficient stock for product p1"},
		{"not found", http.StatusNotFound, `{}`, apperr.KindNotFound, "product not found"},
		{"server error", http.StatusInternalServerError, ``, apperr.KindUnavailable, ""},
		{"bad request", http.StatusBadRequest, `{"error":"missing required fields"}`, apperr.KindValidation, "missing required fields"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			err := testClient(srv.URL).Reserve(context.Background(), "p1", 2, "o1", "k1")
			require.Error(t, err)
			assert.True(t, apperr.IsKind(err, tc.kind))
			if tc.msg != "" {
				assert.Contains(t, err.Error(), tc.msg)
			}
		})
	}
}

func TestReleaseHitsReleasePath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/p1/release", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	err := testClient(srv.URL).Release(context.Background(), "p1", 2, "o1", "release-order-o1-product-p1")
	require.NoError(t, err)
}

func TestMutateTransportErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	err := testClient(srv.URL).Reserve(context.Background(), "p1", 2, "o1", "k1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUnavailable))
}
