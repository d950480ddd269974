package payments

import (
	"context"
	"errors"

	"github.com/adisetya/go-shop-orders/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const paymentColumns = `id, order_id, provider_payment_id, COALESCE(provider_charge_id,''),
	amount_cents, currency, status,
	COALESCE(payment_method,''), COALESCE(customer_email,''), COALESCE(client_secret,''),
	COALESCE(error_code,''), COALESCE(error_message,''),
	refund_amount_cents, COALESCE(refund_reason,''),
	created_at, updated_at, succeeded_at, failed_at, refunded_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.OrderID, &p.ProviderPaymentID, &p.ProviderChargeID,
		&p.AmountCents, &p.Currency, &p.Status,
		&p.PaymentMethod, &p.CustomerEmail, &p.ClientSecret,
		&p.ErrorCode, &p.ErrorMessage,
		&p.RefundAmountCents, &p.RefundReason,
		&p.CreatedAt, &p.UpdatedAt, &p.SucceededAt, &p.FailedAt, &p.RefundedAt,
	)
	return p, err
}

func (r *Repo) Create(ctx context.Context, p *Payment) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO payments(id, order_id, provider_payment_id, amount_cents, currency, status, client_secret)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.OrderID, p.ProviderPaymentID, p.AmountCents, p.Currency, p.Status, p.ClientSecret,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.New(apperr.KindConflict, "active payment already exists for order %s", p.OrderID)
	}
	return err
}

func (r *Repo) ByOrderID(ctx context.Context, orderID string) (Payment, error) {
	p, err := scanPayment(r.DB.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id=$1 ORDER BY created_at DESC LIMIT 1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, apperr.New(apperr.KindNotFound, "payment not found for order %s", orderID)
	}
	return p, err
}

func (r *Repo) ByProviderPaymentID(ctx context.Context, providerPaymentID string) (Payment, error) {
	p, err := scanPayment(r.DB.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE provider_payment_id=$1`, providerPaymentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, apperr.New(apperr.KindNotFound, "payment not found for intent %s", providerPaymentID)
	}
	return p, err
}

// StatusUpdate carries the optional columns a webhook handler sets alongside
// the state.
type StatusUpdate struct {
	PaymentMethod string
	ChargeID      string
	CustomerEmail string
	ErrorCode     string
	ErrorMessage  string
}

func (r *Repo) UpdateStatus(ctx context.Context, paymentID string, st State, upd StatusUpdate) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE payments SET status=$2,
			payment_method = COALESCE(NULLIF($3,''), payment_method),
			provider_charge_id = COALESCE(NULLIF($4,''), provider_charge_id),
			customer_email = COALESCE(NULLIF($5,''), customer_email),
			error_code = NULLIF($6,''),
			error_message = NULLIF($7,''),
			succeeded_at = CASE WHEN $2='succeeded' THEN now() ELSE succeeded_at END,
			failed_at = CASE WHEN $2='failed' THEN now() ELSE failed_at END,
			updated_at = now()
		WHERE id=$1`,
		paymentID, st, upd.PaymentMethod, upd.ChargeID, upd.CustomerEmail, upd.ErrorCode, upd.ErrorMessage,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "payment not found: %s", paymentID)
	}
	return nil
}

func (r *Repo) RecordRefund(ctx context.Context, paymentID string, amountCents int64, reason string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE payments SET status='refunded', refund_amount_cents=$2,
			refund_reason=NULLIF($3,''), refunded_at=now(), updated_at=now()
		WHERE id=$1`,
		paymentID, amountCents, reason,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "payment not found: %s", paymentID)
	}
	return nil
}

func (r *Repo) HasEvent(ctx context.Context, providerEventID string) (bool, error) {
	var n int
	err := r.DB.QueryRow(ctx,
		`SELECT COUNT(*) FROM payment_events WHERE provider_event_id=$1`, providerEventID).Scan(&n)
	return n > 0, err
}

// InsertEvent records a processed event. Returns false when another delivery
// already recorded it; the unique constraint is the authority.
func (r *Repo) InsertEvent(ctx context.Context, ev PaymentEvent) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO payment_events(id, payment_id, provider_event_id, event_type, event_data)
		VALUES ($1, NULLIF($2,''), $3, $4, $5)
		ON CONFLICT (provider_event_id) DO NOTHING`,
		ev.ID, ev.PaymentID, ev.ProviderEventID, ev.EventType, ev.EventData,
	)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}
