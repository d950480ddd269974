// Package inventory owns product stock and its append-only audit trail.
// Mutations are serialized per product; stock never goes negative.
package inventory

import (
	"context"
	"time"
)

type Product struct {
	ID         string    `json:"id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	Stock      int       `json:"stock"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

const (
	ChangeSale   = "sale"
	ChangeReturn = "return"
)

// AuditEntry is one append-only inventory_logs row.
type AuditEntry struct {
	ID               int64     `json:"id"`
	ProductID        string    `json:"product_id"`
	ChangeType       string    `json:"change_type"`
	QuantityChange   int       `json:"quantity_change"`
	QuantityBefore   int       `json:"quantity_before"`
	QuantityAfter    int       `json:"quantity_after"`
	ReferenceOrderID string    `json:"reference_order_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Store mutates stock under a per-product lock: the read-modify-write is one
// atomic unit, so concurrent reservations cannot oversell.
type Store interface {
	// Reserve decrements stock and appends a sale audit entry. Returns the
	// remaining stock. Fails without mutation when stock would go negative.
	Reserve(ctx context.Context, productID string, qty int, orderID string) (int, error)
	// Release increments stock and appends a return audit entry.
	Release(ctx context.Context, productID string, qty int, orderID string) (int, error)

	Product(ctx context.Context, id string) (Product, error)
	// Products returns snapshots for the requested ids; missing ids are omitted.
	Products(ctx context.Context, ids []string) ([]Product, error)
}
