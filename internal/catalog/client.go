// Package catalog is the HTTP client for the inventory service: bulk product
// snapshots for the saga, and the reserve/release stock mutations.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adisetya/go-shop-orders/internal/apperr"
	"github.com/adisetya/go-shop-orders/internal/orders"
	"go.uber.org/zap"
)

type Client struct {
	base    string
	http    *http.Client
	retries int
	delay   func(attempt int) time.Duration
	log     *zap.Logger
}

func New(baseURL string, log *zap.Logger) *Client {
	return &Client{
		base:    strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
		retries: 3,
		delay:   func(attempt int) time.Duration { return (1 << attempt) * time.Second },
		log:     log,
	}
}

// Products fetches a bulk snapshot. Reads have no side effects, so transport
// errors and 5xx responses are retried with backoff. Missing ids are simply
// omitted from the response.
func (c *Client) Products(ctx context.Context, ids []string) ([]orders.ProductSnapshot, error) {
	u := fmt.Sprintf("%s/products/bulk?ids=%s", c.base, url.QueryEscape(strings.Join(ids, ",")))

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.delay(attempt)):
			case <-ctx.Done():
				return nil, apperr.Wrap(apperr.KindUnavailable, ctx.Err(), "product service unavailable")
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("product service returned %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, apperr.New(apperr.KindUnavailable, "product service returned %d", resp.StatusCode)
		}

		var out struct {
			Products []orders.ProductSnapshot `json:"products"`
		}
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		return out.Products, nil
	}
	return nil, apperr.Wrap(apperr.KindUnavailable, lastErr, "product service unavailable")
}

type mutationRequest struct {
	Quantity       int    `json:"quantity"`
	OrderID        string `json:"order_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Reserve decrements stock for one product. Not retried here: the idempotency
// key makes a caller-level retry of the whole call safe, but this layer
// treats any failure as final and lets the saga compensate.
func (c *Client) Reserve(ctx context.Context, productID string, qty int, orderID, idemKey string) error {
	return c.mutate(ctx, productID, "reserve", qty, orderID, idemKey)
}

func (c *Client) Release(ctx context.Context, productID string, qty int, orderID, idemKey string) error {
	return c.mutate(ctx, productID, "release", qty, orderID, idemKey)
}

func (c *Client) mutate(ctx context.Context, productID, op string, qty int, orderID, idemKey string) error {
	body, _ := json.Marshal(mutationRequest{Quantity: qty, OrderID: orderID, IdempotencyKey: idemKey})
	u := fmt.Sprintf("%s/products/%s/%s", c.base, url.PathEscape(productID), op)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, err, "product service unavailable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusConflict:
		return apperr.New(apperr.KindConflict, "%s", errorBody(resp, "insufficient stock"))
	case resp.StatusCode == http.StatusNotFound:
		return apperr.New(apperr.KindNotFound, "%s", errorBody(resp, "product not found"))
	case resp.StatusCode >= 500:
		return apperr.New(apperr.KindUnavailable, "product service returned %d", resp.StatusCode)
	default:
		return apperr.New(apperr.KindValidation, "%s", errorBody(resp, fmt.Sprintf("stock %s rejected", op)))
	}
}

func errorBody(resp *http.Response, fallback string) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
		return fallback
	}
	return e.Error
}
