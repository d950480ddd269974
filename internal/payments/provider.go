package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adisetya/go-shop-orders/internal/apperr"
	"go.uber.org/zap"
)

// IntentRequest is what we ask the payment provider to collect.
type IntentRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	Description string `json:"description,omitempty"`
}

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

type RefundRequest struct {
	ProviderPaymentID string `json:"payment_intent_id"`
	AmountCents       int64  `json:"amount_cents"`
	Reason            string `json:"reason,omitempty"`
}

type Refund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Provider abstracts the external payment processor.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	CreateRefund(ctx context.Context, req RefundRequest) (Refund, error)
}

type HTTPProvider struct {
	base   string
	apiKey string
	http   *http.Client
	log    *zap.Logger
}

func NewHTTPProvider(base, apiKey string, log *zap.Logger) *HTTPProvider {
	return &HTTPProvider{
		base:   base,
		apiKey: apiKey,
		http:   &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

func (p *HTTPProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	var out Intent
	if err := p.post(ctx, "/v1/payment_intents", req, &out); err != nil {
		return Intent{}, err
	}
	return out, nil
}

func (p *HTTPProvider) CreateRefund(ctx context.Context, req RefundRequest) (Refund, error) {
	var out Refund
	if err := p.post(ctx, "/v1/refunds", req, &out); err != nil {
		return Refund{}, err
	}
	return out, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, err, "payment provider unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return json.NewDecoder(resp.Body).Decode(out)
	case resp.StatusCode >= 500:
		return apperr.New(apperr.KindUnavailable, "payment provider error: status %d", resp.StatusCode)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperr.New(apperr.KindValidation, "payment provider rejected request: %s", string(msg))
	}
}

var _ Provider = (*HTTPProvider)(nil)

// LocalProvider issues fake intents for local runs without a provider
// account.
type LocalProvider struct{ seq int }

func (f *LocalProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	f.seq++
	id := fmt.Sprintf("pi_local_%d", f.seq)
	return Intent{ID: id, ClientSecret: id + "_secret", Status: "requires_payment_method"}, nil
}

func (f *LocalProvider) CreateRefund(ctx context.Context, req RefundRequest) (Refund, error) {
	f.seq++
	return Refund{ID: fmt.Sprintf("re_local_%d", f.seq), Status: "succeeded"}, nil
}
