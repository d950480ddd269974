package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/adisetya/go-shop-orders/internal/apperr"
)

// OrderSummary is the slice of an order the payment service needs.
type OrderSummary struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Status     string `json:"status"`
	TotalCents int64  `json:"total_cents"`
}

// OrderClient talks to the orders service's internal endpoints.
type OrderClient interface {
	Order(ctx context.Context, orderID string) (OrderSummary, error)
	UpdateStatus(ctx context.Context, orderID, status string) error
	UpdatePaymentStatus(ctx context.Context, orderID, paymentStatus string) error
}

type HTTPOrderClient struct {
	base string
	http *http.Client
}

func NewHTTPOrderClient(base string) *HTTPOrderClient {
	return &HTTPOrderClient{base: base, http: &http.Client{Timeout: 5 * time.Second}}
}

func (c *HTTPOrderClient) Order(ctx context.Context, orderID string) (OrderSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/internal/orders/%s", c.base, orderID), nil)
	if err != nil {
		return OrderSummary{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return OrderSummary{}, apperr.Wrap(apperr.KindUnavailable, err, "orders service unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var out OrderSummary
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return OrderSummary{}, err
		}
		return out, nil
	case resp.StatusCode == http.StatusNotFound:
		return OrderSummary{}, apperr.New(apperr.KindNotFound, "order not found: %s", orderID)
	case resp.StatusCode >= 500:
		return OrderSummary{}, apperr.New(apperr.KindUnavailable, "orders service error: status %d", resp.StatusCode)
	default:
		return OrderSummary{}, apperr.New(apperr.KindValidation, "orders service rejected request: status %d", resp.StatusCode)
	}
}

func (c *HTTPOrderClient) UpdateStatus(ctx context.Context, orderID, status string) error {
	return c.patch(ctx, fmt.Sprintf("/internal/orders/%s/status", orderID),
		map[string]string{"status": status})
}

func (c *HTTPOrderClient) UpdatePaymentStatus(ctx context.Context, orderID, paymentStatus string) error {
	return c.patch(ctx, fmt.Sprintf("/internal/orders/%s/payment-status", orderID),
		map[string]string{"payment_status": paymentStatus})
}

func (c *HTTPOrderClient) patch(ctx context.Context, path string, body any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.base+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, err, "orders service unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return apperr.New(apperr.KindNotFound, "order not found")
	case resp.StatusCode >= 500:
		return apperr.New(apperr.KindUnavailable, "orders service error: status %d", resp.StatusCode)
	default:
		return apperr.New(apperr.KindValidation, "orders service rejected update: status %d", resp.StatusCode)
	}
}

var _ OrderClient = (*HTTPOrderClient)(nil)
