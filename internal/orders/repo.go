package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adisetya/go-shop-orders/internal/apperr"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, user_id, status, payment_status,
	subtotal_cents, tax_cents, shipping_cents, discount_cents, total_cents,
	shipping_address, shipping_city, shipping_state, shipping_zip, shipping_country, customer_notes,
	tracking_number, carrier,
	created_at, updated_at, confirmed_at, paid_at, shipped_at, delivered_at, cancelled_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.Status, &o.PaymentStatus,
		&o.SubtotalCents, &o.TaxCents, &o.ShippingCents, &o.DiscountCents, &o.TotalCents,
		&o.ShippingAddress, &o.ShippingCity, &o.ShippingState, &o.ShippingZip, &o.ShippingCountry, &o.CustomerNotes,
		&o.TrackingNumber, &o.Carrier,
		&o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt, &o.PaidAt, &o.ShippedAt, &o.DeliveredAt, &o.CancelledAt,
	)
	return o, err
}

// CreateOrderTx persists the order, its items and the order_created event in
// one transaction: the order is never visible without its items.
func (r *Repo) CreateOrderTx(ctx context.Context, o *Order, items []OrderItem) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, status, payment_status,
			subtotal_cents, tax_cents, shipping_cents, discount_cents, total_cents,
			shipping_address, shipping_city, shipping_state, shipping_zip, shipping_country, customer_notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		o.ID, o.UserID, o.Status, o.PaymentStatus,
		o.SubtotalCents, o.TaxCents, o.ShippingCents, o.DiscountCents, o.TotalCents,
		o.ShippingAddress, o.ShippingCity, o.ShippingState, o.ShippingZip, o.ShippingCountry, o.CustomerNotes,
	)
	if err != nil {
		return err
	}

	for _, it := range items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, product_name, product_sku,
				quantity, unit_price_cents, total_price_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			it.ID, o.ID, it.ProductID, it.ProductName, it.ProductSKU,
			it.Quantity, it.UnitPriceCents, it.TotalPriceCents,
		)
		if err != nil {
			return err
		}
	}

	payload, _ := json.Marshal(map[string]any{"items": items})
	_, err = tx.Exec(ctx, `
		INSERT INTO order_events(id, order_id, event_type, event_data, success)
		VALUES ($1,$2,$3,$4,true)`,
		uuid.NewString(), o.ID, EventOrderCreated, payload,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repo) Get(ctx context.Context, orderID string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.New(apperr.KindNotFound, "order not found: %s", orderID)
	}
	return o, err
}

func (r *Repo) Items(ctx context.Context, orderID string) ([]OrderItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, product_name, product_sku,
			quantity, unit_price_cents, total_price_cents, created_at
		FROM order_items WHERE order_id=$1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.ProductSKU,
			&it.Quantity, &it.UnitPriceCents, &it.TotalPriceCents, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repo) ListByUser(ctx context.Context, userID string, page, limit int) ([]Order, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+`
		FROM orders WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE user_id=$1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func phaseColumn(st Status) string {
	switch st {
	case StatusConfirmed:
		return "confirmed_at"
	case StatusPaid:
		return "paid_at"
	case StatusShipped:
		return "shipped_at"
	case StatusDelivered:
		return "delivered_at"
	case StatusCancelled:
		return "cancelled_at"
	}
	return ""
}

func (r *Repo) UpdateStatus(ctx context.Context, orderID string, st Status) error {
	q := `UPDATE orders SET status=$1, updated_at=now()`
	if col := phaseColumn(st); col != "" {
		q += fmt.Sprintf(", %s=now()", col)
	}
	q += ` WHERE id=$2`

	ct, err := r.DB.Exec(ctx, q, st, orderID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "order not found: %s", orderID)
	}
	return nil
}

func (r *Repo) UpdatePaymentStatus(ctx context.Context, orderID string, ps PaymentStatus) error {
	ct, err := r.DB.Exec(ctx,
		`UPDATE orders SET payment_status=$1, updated_at=now() WHERE id=$2`, ps, orderID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "order not found: %s", orderID)
	}
	return nil
}

func (r *Repo) UpdateTracking(ctx context.Context, orderID, trackingNumber, carrier string) error {
	ct, err := r.DB.Exec(ctx,
		`UPDATE orders SET tracking_number=$1, carrier=$2, updated_at=now() WHERE id=$3`,
		trackingNumber, carrier, orderID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "order not found: %s", orderID)
	}
	return nil
}

// AppendEvent writes one audit record; events are never updated or deleted.
func (r *Repo) AppendEvent(ctx context.Context, orderID, eventType string, payload any, success bool, errMsg string) error {
	var data []byte
	if payload != nil {
		data, _ = json.Marshal(payload)
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO order_events(id, order_id, event_type, event_data, success, error_message)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''))`,
		uuid.NewString(), orderID, eventType, data, success, errMsg)
	return err
}

func (r *Repo) History(ctx context.Context, orderID string) ([]OrderEvent, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, event_type, event_data, success, COALESCE(error_message,''), created_at
		FROM order_events WHERE order_id=$1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderEvent
	for rows.Next() {
		var ev OrderEvent
		if err := rows.Scan(&ev.ID, &ev.OrderID, &ev.EventType, &ev.EventData, &ev.Success, &ev.ErrorMessage, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
