package orders

import (
	"context"
	"testing"

	"github.com/adisetya/go-shop-orders/internal/apperr"
	"github.com/adisetya/go-shop-orders/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func twoProducts() map[string]ProductSnapshot {
	return map[string]ProductSnapshot{
		"p1": {ID: "p1", Name: "Widget", SKU: "WID-1", PriceCents: 1000, Stock: 10},
		"p2": {ID: "p2", Name: "Gadget", SKU: "GAD-1", PriceCents: 500, Stock: 5},
	}
}

func validInput() CreateOrderInput {
	return CreateOrderInput{
		UserID: "u1",
		Items: []ItemInput{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
		Shipping: ShippingInput{Address: "1 Main St", City: "Springfield"},
	}
}

func TestCreateOrderHappyPath(t *testing.T) {
	store := newFakeStore()
	ledger := &fakeLedger{}
	queue := &fakeQueue{}
	svc := NewService(store, &fakeCatalog{products: twoProducts()}, ledger, queue, zap.NewNop())

	o, err := svc.CreateOrder(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Equal(t, int64(2500), o.SubtotalCents)
	assert.Equal(t, int64(250), o.TaxCents)
	assert.Equal(t, int64(1000), o.ShippingCents)
	assert.Equal(t, int64(3750), o.TotalCents)
	assert.Equal(t, o.SubtotalCents+o.TaxCents+o.ShippingCents-o.DiscountCents, o.TotalCents)

	items, _ := store.Items(context.Background(), o.ID)
	require.Len(t, items, 2)
	assert.Equal(t, "Widget", items[0].ProductName)
	assert.Equal(t, int64(2000), items[0].TotalPriceCents)

	assert.Equal(t, []string{
		EventOrderCreated,
		EventStockReserved,
		EventStockReserved,
		EventOrderConfirmed,
	}, store.eventTypes(o.ID))

	require.Len(t, ledger.calls, 2)
	assert.Equal(t, "reserve", ledger.calls[0].Op)
	assert.Equal(t, ReserveKey(o.ID, "p1"), ledger.calls[0].IdemKey)

	assert.Equal(t, []string{notify.JobOrderConfirmation}, queue.jobs)
}

func TestCreateOrderCompensatesOnReserveFailure(t *testing.T) {
	store := newFakeStore()
	ledger := &fakeLedger{failWith: map[string]error{
		"p2": apperr.New(apperr.KindConflict, "insufficient stock for product p2"),
	}}
	queue := &fakeQueue{}
	svc := NewService(store, &fakeCatalog{products: twoProducts()}, ledger, queue, zap.NewNop())

	_, err := svc.CreateOrder(context.Background(), validInput())
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	// the order was persisted, then cancelled
	var orderID string
	for id := range store.orders {
		orderID = id
	}
	o, err := store.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, o.Status)

	// p1 reserved, p2 failed, p1 released in compensation
	require.Len(t, ledger.calls, 3)
	assert.Equal(t, ledgerCall{Op: "reserve", ProductID: "p1", Qty: 2, OrderID: orderID, IdemKey: ReserveKey(orderID, "p1")}, ledger.calls[0])
	assert.Equal(t, "reserve", ledger.calls[1].Op)
	assert.Equal(t, "p2", ledger.calls[1].ProductID)
	assert.Equal(t, ledgerCall{Op: "release", ProductID: "p1", Qty: 2, OrderID: orderID, IdemKey: ReleaseKey(orderID, "p1")}, ledger.calls[2])

	assert.Equal(t, []string{
		EventOrderCreated,
		EventStockReserved,
		EventStockReserveFailed,
		EventOrderCancelled,
	}, store.eventTypes(orderID))

	assert.Empty(t, queue.jobs)
}

func TestCreateOrderStockPrecheckFailsFast(t *testing.T) {
	store := newFakeStore()
	ledger := &fakeLedger{}
	products := twoProducts()
	p := products["p2"]
	p.Stock = 0
	products["p2"] = p

	svc := NewService(store, &fakeCatalog{products: products}, ledger, &fakeQueue{}, zap.NewNop())

	_, err := svc.CreateOrder(context.Background(), validInput())
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	// nothing persisted, nothing reserved
	assert.Empty(t, store.orders)
	assert.Empty(t, ledger.calls)
}

func TestCreateOrderRejectsDuplicateProductLines(t *testing.T) {
	store := newFakeStore()
	ledger := &fakeLedger{}
	svc := NewService(store, &fakeCatalog{products: twoProducts()}, ledger, &fakeQueue{}, zap.NewNop())

	in := CreateOrderInput{
		UserID: "u1",
		Items: []ItemInput{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p1", Quantity: 3},
		},
		Shipping: ShippingInput{Address: "1 Main St"},
	}
	_, err := svc.CreateOrder(context.Background(), in)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	// both lines would share one reservation idempotency key, so the second
	// reserve would replay instead of decrementing; nothing may proceed
	assert.Empty(t, store.orders)
	assert.Empty(t, ledger.calls)
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeCatalog{products: map[string]ProductSnapshot{}}, &fakeLedger{}, &fakeQueue{}, zap.NewNop())

	_, err := svc.CreateOrder(context.Background(), validInput())
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestCreateOrderValidation(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeCatalog{products: twoProducts()}, &fakeLedger{}, &fakeQueue{}, zap.NewNop())

	cases := []struct {
		name string
		mut  func(*CreateOrderInput)
	}{
		{"missing user", func(in *CreateOrderInput) { in.UserID = "" }},
		{"no items", func(in *CreateOrderInput) { in.Items = nil }},
		{"zero quantity", func(in *CreateOrderInput) { in.Items[0].Quantity = 0 }},
		{"missing product id", func(in *CreateOrderInput) { in.Items[0].ProductID = "" }},
		{"missing address", func(in *CreateOrderInput) { in.Shipping.Address = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mut(&in)
			_, err := svc.CreateOrder(context.Background(), in)
			require.Error(t, err)
			assert.True(t, apperr.IsKind(err, apperr.KindValidation))
		})
	}
}

func TestCancelReleasesStock(t *testing.T) {
	store := newFakeStore()
	ledger := &fakeLedger{}
	svc := NewService(store, &fakeCatalog{products: twoProducts()}, ledger, &fakeQueue{}, zap.NewNop())

	o, err := svc.CreateOrder(context.Background(), validInput())
	require.NoError(t, err)
	ledger.calls = nil

	got, err := svc.Cancel(context.Background(), o.ID, "u1", false)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	require.Len(t, ledger.calls, 2)
	for _, c := range ledger.calls {
		assert.Equal(t, "release", c.Op)
		assert.Equal(t, ReleaseKey(o.ID, c.ProductID), c.IdemKey)
	}
}

func TestCancelForbiddenForOtherUser(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeCatalog{products: twoProducts()}, &fakeLedger{}, &fakeQueue{}, zap.NewNop())

	o, err := svc.CreateOrder(context.Background(), validInput())
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), o.ID, "someone-else", false)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestCancelRejectedAfterShipping(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeCatalog{products: twoProducts()}, &fakeLedger{}, &fakeQueue{}, zap.NewNop())

	o, err := svc.CreateOrder(context.Background(), validInput())
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(context.Background(), o.ID, StatusShipped))

	_, err = svc.Cancel(context.Background(), o.ID, "u1", false)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}
