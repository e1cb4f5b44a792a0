package expiration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/matheusmosca/order-lifecycle/pkg/database"
	"github.com/matheusmosca/order-lifecycle/pkg/events"
	"github.com/matheusmosca/order-lifecycle/services/coupons"
	"github.com/matheusmosca/order-lifecycle/services/inventory"
	"github.com/matheusmosca/order-lifecycle/services/orders"
)

var errCommitFailed = errors.New("commit failed: connection reset")

// memStore é um banco em memória: escritas de uma transação só aparecem no Commit
type memStore struct {
	mu           sync.Mutex
	orders       map[int64]orders.Order
	products     map[int64]inventory.Product
	measurements map[int64]inventory.ProductMeasurement
	coupons      map[int64]coupons.Coupon
	movements    []inventory.Restock

	failCommitFor map[int64]bool
	// onLock roda antes de o pedido ser lido dentro da transação
	onLock func(orderID int64)
}

func newMemStore() *memStore {
	return &memStore{
		orders:        map[int64]orders.Order{},
		products:      map[int64]inventory.Product{},
		measurements:  map[int64]inventory.ProductMeasurement{},
		coupons:       map[int64]coupons.Coupon{},
		failCommitFor: map[int64]bool{},
	}
}

type memTx struct {
	store   *memStore
	orderID int64
	ops     []func()
	closed  bool
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.closed {
		return errors.New("tx closed")
	}
	t.closed = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.failCommitFor[t.orderID] {
		return errCommitFailed
	}
	for _, op := range t.ops {
		op()
	}
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.closed = true
	return nil
}

func asMemTx(tx database.Tx) *memTx {
	return tx.(*memTx)
}

func (s *memStore) BeginTx(ctx context.Context) (database.Tx, error) {
	return &memTx{store: s}, nil
}

func (s *memStore) GetOrder(ctx context.Context, orderID int64) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	return copyOrder(order), nil
}

func (s *memStore) GetOrderForUpdate(ctx context.Context, tx database.Tx, orderID int64) (*orders.Order, error) {
	if s.onLock != nil {
		s.onLock(orderID)
	}
	asMemTx(tx).orderID = orderID
	return s.GetOrder(ctx, orderID)
}

func (s *memStore) ListExpirable(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.orders))
	for id := range s.orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []orders.Order
	for _, id := range ids {
		order := s.orders[id]
		if id <= afterID || !order.IsExpirable(cutoff) {
			continue
		}
		order.Items = nil
		out = append(out, order)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) SaveStatus(ctx context.Context, tx database.Tx, order *orders.Order) error {
	saved := *copyOrder(*order)
	t := asMemTx(tx)
	t.ops = append(t.ops, func() {
		current := s.orders[saved.ID]
		saved.Items = current.Items
		s.orders[saved.ID] = saved
	})
	return nil
}

func (s *memStore) MarkExpirationNotified(ctx context.Context, orderID int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok || order.ExpiredAt == nil || order.ExpirationNotifiedAt != nil {
		return false, nil
	}
	order.ExpirationNotifiedAt = &at
	s.orders[orderID] = order
	return true, nil
}

func (s *memStore) Increase(ctx context.Context, tx database.Tx, restock inventory.Restock) error {
	if err := restock.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := asMemTx(tx)

	if restock.MeasurementID != nil {
		id := *restock.MeasurementID
		if _, ok := s.measurements[id]; !ok {
			return fmt.Errorf("measurement %d: %w", id, inventory.ErrMeasurementNotFound)
		}
		t.ops = append(t.ops, func() {
			m := s.measurements[id]
			m.StockQuantity += restock.Quantity
			s.measurements[id] = m
			s.syncProduct(m.ProductID)
			s.movements = append(s.movements, restock)
		})
		return nil
	}

	if _, ok := s.products[restock.ProductID]; !ok {
		return fmt.Errorf("product %d: %w", restock.ProductID, inventory.ErrProductNotFound)
	}
	t.ops = append(t.ops, func() {
		p := s.products[restock.ProductID]
		p.StockQuantity += restock.Quantity
		s.products[restock.ProductID] = p
		s.movements = append(s.movements, restock)
	})
	return nil
}

func (s *memStore) syncProduct(productID int64) {
	total := 0
	for _, m := range s.measurements {
		if m.ProductID == productID {
			total += m.StockQuantity
		}
	}
	p := s.products[productID]
	p.StockQuantity = total
	s.products[productID] = p
}

func (s *memStore) GetProduct(ctx context.Context, productID int64) (*inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, inventory.ErrProductNotFound
	}
	return &p, nil
}

func (s *memStore) GetMeasurement(ctx context.Context, measurementID int64) (*inventory.ProductMeasurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.measurements[measurementID]
	if !ok {
		return nil, inventory.ErrMeasurementNotFound
	}
	return &m, nil
}

func (s *memStore) ReleaseUsage(ctx context.Context, tx database.Tx, couponID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.coupons[couponID]; !ok {
		return fmt.Errorf("coupon %d: %w", couponID, coupons.ErrCouponNotFound)
	}
	t := asMemTx(tx)
	t.ops = append(t.ops, func() {
		c := s.coupons[couponID]
		c.UsedCount = coupons.ReleasedCount(c.UsedCount)
		s.coupons[couponID] = c
	})
	return nil
}

func (s *memStore) GetCoupon(ctx context.Context, couponID int64) (*coupons.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[couponID]
	if !ok {
		return nil, coupons.ErrCouponNotFound
	}
	return &c, nil
}

// accessors usados pelos asserts

func (s *memStore) order(id int64) orders.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *copyOrder(s.orders[id])
}

func (s *memStore) productStock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].StockQuantity
}

func (s *memStore) measurementStock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.measurements[id].StockQuantity
}

func (s *memStore) couponUsed(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coupons[id].UsedCount
}

func copyOrder(o orders.Order) *orders.Order {
	c := o
	c.Items = append([]orders.OrderItem(nil), o.Items...)
	return &c
}

// recordingPublisher guarda os eventos e, opcionalmente, falha ou inspeciona o estado
type recordingPublisher struct {
	mu        sync.Mutex
	published []events.Event
	err       error
	onPublish func(evt events.Event)
}

func (p *recordingPublisher) Publish(ctx context.Context, evt events.Event) error {
	if p.onPublish != nil {
		p.onPublish(evt)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, evt)
	return nil
}

func (p *recordingPublisher) sent() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.published...)
}
