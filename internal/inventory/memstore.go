package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/adisetya/go-shop-orders/internal/apperr"
)

// MemStore is an in-memory Store used in tests and local development. One
// mutex stands in for the database's row locks; coarser, but it preserves the
// same serialization property for reserve/release.
type MemStore struct {
	mu       sync.Mutex
	products map[string]*Product
	audit    []AuditEntry
	nextID   int64
}

func NewMemStore(products ...Product) *MemStore {
	m := &MemStore{products: make(map[string]*Product, len(products))}
	for _, p := range products {
		cp := p
		m.products[p.ID] = &cp
	}
	return m
}

func (m *MemStore) Reserve(ctx context.Context, productID string, qty int, orderID string) (int, error) {
	return m.applyChange(productID, -qty, ChangeSale, orderID)
}

func (m *MemStore) Release(ctx context.Context, productID string, qty int, orderID string) (int, error) {
	return m.applyChange(productID, qty, ChangeReturn, orderID)
}

func (m *MemStore) applyChange(productID string, delta int, changeType, orderID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok {
		return 0, apperr.New(apperr.KindNotFound, "product not found: %s", productID)
	}
	after := p.Stock + delta
	if after < 0 {
		return 0, apperr.New(apperr.KindConflict, "insufficient stock for product %s", productID)
	}

	m.nextID++
	m.audit = append(m.audit, AuditEntry{
		ID:               m.nextID,
		ProductID:        productID,
		ChangeType:       changeType,
		QuantityChange:   delta,
		QuantityBefore:   p.Stock,
		QuantityAfter:    after,
		ReferenceOrderID: orderID,
		CreatedAt:        time.Now().UTC(),
	})
	p.Stock = after
	p.UpdatedAt = time.Now().UTC()
	return after, nil
}

func (m *MemStore) Product(ctx context.Context, id string) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return Product{}, apperr.New(apperr.KindNotFound, "product not found: %s", id)
	}
	return *p, nil
}

func (m *MemStore) Products(ctx context.Context, ids []string) ([]Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

// Audit returns a copy of the audit trail.
func (m *MemStore) Audit() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AuditEntry, len(m.audit))
	copy(out, m.audit)
	return out
}
