package orders

import (
	"context"
	"sync"

	"github.com/adisetya/go-shop-orders/internal/apperr"
)

type fakeStore struct {
	mu     sync.Mutex
	orders map[string]Order
	items  map[string][]OrderItem
	events []OrderEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: map[string]Order{}, items: map[string][]OrderItem{}}
}

func (s *fakeStore) CreateOrderTx(ctx context.Context, o *Order, items []OrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = *o
	s.items[o.ID] = items
	s.events = append(s.events, OrderEvent{OrderID: o.ID, EventType: EventOrderCreated, Success: true})
	return nil
}

func (s *fakeStore) Get(ctx context.Context, orderID string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return Order{}, apperr.New(apperr.KindNotFound, "order not found: %s", orderID)
	}
	return o, nil
}

func (s *fakeStore) Items(ctx context.Context, orderID string) ([]OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[orderID], nil
}

func (s *fakeStore) ListByUser(ctx context.Context, userID string, page, limit int) ([]Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, len(out), nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, orderID string, st Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "order not found: %s", orderID)
	}
	o.Status = st
	s.orders[orderID] = o
	return nil
}

func (s *fakeStore) UpdatePaymentStatus(ctx context.Context, orderID string, ps PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "order not found: %s", orderID)
	}
	o.PaymentStatus = ps
	s.orders[orderID] = o
	return nil
}

func (s *fakeStore) UpdateTracking(ctx context.Context, orderID, trackingNumber, carrier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "order not found: %s", orderID)
	}
	o.TrackingNumber = trackingNumber
	o.Carrier = carrier
	s.orders[orderID] = o
	return nil
}

func (s *fakeStore) AppendEvent(ctx context.Context, orderID, eventType string, payload any, success bool, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, OrderEvent{OrderID: orderID, EventType: eventType, Success: success, ErrorMessage: errMsg})
	return nil
}

func (s *fakeStore) History(ctx context.Context, orderID string) ([]OrderEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OrderEvent
	for _, ev := range s.events {
		if ev.OrderID == orderID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *fakeStore) eventTypes(orderID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.events {
		if ev.OrderID == orderID {
			out = append(out, ev.EventType)
		}
	}
	return out
}

type fakeCatalog struct {
	products map[string]ProductSnapshot
	err      error
}

func (c *fakeCatalog) Products(ctx context.Context, ids []string) ([]ProductSnapshot, error) {
	if c.err != nil {
		return nil, c.err
	}
	var out []ProductSnapshot
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type ledgerCall struct {
	Op        string
	ProductID string
	Qty       int
	OrderID   string
	IdemKey   string
}

type fakeLedger struct {
	mu       sync.Mutex
	calls    []ledgerCall
	failWith map[string]error // productID -> reserve error
}

func (l *fakeLedger) Reserve(ctx context.Context, productID string, qty int, orderID, idemKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, ledgerCall{Op: "reserve", ProductID: productID, Qty: qty, OrderID: orderID, IdemKey: idemKey})
	if err, ok := l.failWith[productID]; ok {
		return err
	}
	return nil
}

func (l *fakeLedger) Release(ctx context.Context, productID string, qty int, orderID, idemKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, ledgerCall{Op: "release", ProductID: productID, Qty: qty, OrderID: orderID, IdemKey: idemKey})
	return nil
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []string
}

func (q *fakeQueue) Enqueue(ctx context.Context, jobType string, payload any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, jobType)
	return nil
}
