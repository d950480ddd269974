package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/adisetya/go-shop-orders/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGStore struct{ DB *pgxpool.Pool }

func (s *PGStore) Reserve(ctx context.Context, productID string, qty int, orderID string) (int, error) {
	return s.applyChange(ctx, productID, -qty, ChangeSale, orderID)
}

func (s *PGStore) Release(ctx context.Context, productID string, qty int, orderID string) (int, error) {
	return s.applyChange(ctx, productID, qty, ChangeReturn, orderID)
}

// applyChange locks the product row (FOR UPDATE), moves stock and appends the
// audit entry in the same transaction.
func (s *PGStore) applyChange(ctx context.Context, productID string, delta int, changeType, orderID string) (int, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var before int
	err = tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&before)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.New(apperr.KindNotFound, "product not found: %s", productID)
	}
	if err != nil {
		return 0, err
	}

	after := before + delta
	if after < 0 {
		return 0, apperr.New(apperr.KindConflict, "insufficient stock for product %s", productID)
	}

	if _, err := tx.Exec(ctx, `UPDATE products SET stock=$2, updated_at=now() WHERE id=$1`, productID, after); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO inventory_logs(product_id, change_type, quantity_change, quantity_before, quantity_after, reference_order_id)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''))`,
		productID, changeType, delta, before, after, orderID,
	); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return after, nil
}

const productColumns = `id, sku, name, price_cents, stock, created_at, updated_at`

func (s *PGStore) Product(ctx context.Context, id string) (Product, error) {
	var p Product
	err := s.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.PriceCents, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, apperr.New(apperr.KindNotFound, "product not found: %s", id)
	}
	return p, err
}

func (s *PGStore) Products(ctx context.Context, ids []string) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	params := ""
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			params += ","
		}
		params += fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}

	rows, err := s.DB.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id IN (`+params+`) ORDER BY sku`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.PriceCents, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
