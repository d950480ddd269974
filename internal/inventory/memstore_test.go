package inventory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/adisetya/go-shop-orders/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentReservesNeverOversell(t *testing.T) {
	const stock = 20
	const callers = 50

	store := NewMemStore(Product{ID: "p1", SKU: "WID-1", Name: "Widget", Stock: stock})

	var wg sync.WaitGroup
	var mu sync.Mutex
	var conflicts int

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Reserve(context.Background(), "p1", 1, fmt.Sprintf("o%d", i))
			if err != nil {
				mu.Lock()
				conflicts++
				mu.Unlock()
				assert.True(t, apperr.IsKind(err, apperr.KindConflict))
			}
		}(i)
	}
	wg.Wait()

	p, err := store.Product(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
	assert.Equal(t, callers-stock, conflicts)
	assert.Len(t, store.Audit(), stock)
}

func TestAuditTrailChainsBeforeAfter(t *testing.T) {
	store := NewMemStore(Product{ID: "p1", Stock: 10})

	_, err := store.Reserve(context.Background(), "p1", 3, "o1")
	require.NoError(t, err)
	_, err = store.Reserve(context.Background(), "p1", 2, "o2")
	require.NoError(t, err)
	_, err = store.Release(context.Background(), "p1", 3, "o1")
	require.NoError(t, err)

	audit := store.Audit()
	require.Len(t, audit, 3)
	for i := 1; i < len(audit); i++ {
		assert.Equal(t, audit[i-1].QuantityAfter, audit[i].QuantityBefore)
	}
	last := audit[len(audit)-1]
	assert.Equal(t, ChangeReturn, last.ChangeType)
	assert.Equal(t, 8, last.QuantityAfter)
}

func TestFailedReserveLeavesNoAudit(t *testing.T) {
	store := NewMemStore(Product{ID: "p1", Stock: 1})

	_, err := store.Reserve(context.Background(), "p1", 5, "o1")
	require.Error(t, err)
	assert.Empty(t, store.Audit())

	p, _ := store.Product(context.Background(), "p1")
	assert.Equal(t, 1, p.Stock)
}
