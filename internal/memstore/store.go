// Package memstore keeps products and orders in process memory for tests and
// STORE_DRIVER=memory. One transaction holds the write gate at a time; it
// works on a private copy of the state that replaces the shared state on
// commit.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ariefcatur/go-inventory-orders/internal/orders"
)

var errTxDone = errors.New("memstore: transaction already finished")

type Store struct {
	gate  chan struct{}
	mu    sync.RWMutex
	state *state
}

type state struct {
	products      map[int64]orders.Product
	orders        map[int64]orders.Order
	items         map[orders.ItemKey]orders.OrderItem
	nextProductID int64
	nextOrderID   int64
}

func New() *Store {
	return &Store{
		gate: make(chan struct{}, 1),
		state: &state{
			products: map[int64]orders.Product{},
			orders:   map[int64]orders.Order{},
			items:    map[orders.ItemKey]orders.OrderItem{},
		},
	}
}

// Seed inserts products with their given ids, replacing existing ones.
func (s *Store) Seed(products ...orders.Product) {
	s.gate <- struct{}{}
	defer func() { <-s.gate }()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		s.state.products[p.ID] = p
		if p.ID > s.state.nextProductID {
			s.state.nextProductID = p.ID
		}
	}
}

func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release() { <-s.gate }

func (s *Store) Begin(ctx context.Context) (orders.Tx, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	snap := s.state.clone()
	s.mu.RUnlock()
	return &tx{store: s, st: snap}, nil
}

func (s *Store) GetOrder(ctx context.Context, id int64) (orders.Order, error) {
	if err := ctx.Err(); err != nil {
		return orders.Order{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.state.orders[id]
	if !ok {
		return orders.Order{}, &orders.OrderNotFoundError{ID: id}
	}
	o.Items = s.state.itemsOf(id)
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]orders.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]orders.Order, 0, len(s.state.orders))
	for id, o := range s.state.orders {
		o.Items = s.state.itemsOf(id)
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]orders.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]orders.Product, 0, len(s.state.products))
	for _, p := range s.state.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (orders.Product, error) {
	if err := ctx.Err(); err != nil {
		return orders.Product{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.products[id]
	if !ok {
		return orders.Product{}, &orders.ProductNotFoundError{IDs: []int64{id}}
	}
	return p, nil
}

func (s *Store) CreateProduct(ctx context.Context, in orders.ProductInput) (orders.Product, error) {
	if err := s.acquire(ctx); err != nil {
		return orders.Product{}, err
	}
	defer s.release()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.nextProductID++
	p := productFrom(s.state.nextProductID, in)
	s.state.products[p.ID] = p
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id int64, in orders.ProductInput) (orders.Product, error) {
	if err := s.acquire(ctx); err != nil {
		return orders.Product{}, err
	}
	defer s.release()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.products[id]; !ok {
		return orders.Product{}, &orders.ProductNotFoundError{IDs: []int64{id}}
	}
	p := productFrom(id, in)
	s.state.products[id] = p
	return p, nil
}

func productFrom(id int64, in orders.ProductInput) orders.Product {
	return orders.Product{
		ID:            id,
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		Price:         in.Price.Round(2),
		StockQuantity: in.StockQuantity,
	}
}

type tx struct {
	store *Store
	st    *state
	done  bool
}

func (t *tx) check(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	return ctx.Err()
}

func (t *tx) LockOrder(ctx context.Context, id int64) (orders.Order, error) {
	if err := t.check(ctx); err != nil {
		return orders.Order{}, err
	}
	o, ok := t.st.orders[id]
	if !ok {
		return orders.Order{}, &orders.OrderNotFoundError{ID: id}
	}
	o.Items = t.st.itemsOf(id)
	return o, nil
}

func (t *tx) LockProducts(ctx context.Context, ids []int64) (map[int64]orders.Product, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	out := make(map[int64]orders.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.st.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *tx) AdjustStock(ctx context.Context, productID int64, delta int) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	p, ok := t.st.products[productID]
	if !ok {
		return &orders.ProductNotFoundError{IDs: []int64{productID}}
	}
	if p.StockQuantity+delta < 0 {
		return fmt.Errorf("adjust stock of product %d by %d: %w", productID, delta, orders.ErrConcurrencyConflict)
	}
	p.StockQuantity += delta
	t.st.products[productID] = p
	return nil
}

func (t *tx) UpsertOrder(ctx context.Context, o *orders.Order) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	row := *o
	row.Items = nil
	if row.ID == 0 {
		t.st.nextOrderID++
		row.ID = t.st.nextOrderID
		o.ID = row.ID
	} else {
		existing, ok := t.st.orders[row.ID]
		if !ok {
			return &orders.OrderNotFoundError{ID: row.ID}
		}
		row.OrderDate = existing.OrderDate
		o.OrderDate = existing.OrderDate
	}
	t.st.orders[row.ID] = row
	return nil
}

func (t *tx) ReplaceOrderItems(ctx context.Context, orderID int64, items []orders.OrderItem) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	for k := range t.st.items {
		if k.OrderID == orderID {
			delete(t.st.items, k)
		}
	}
	for _, it := range items {
		it.OrderID = orderID
		it.Product = nil
		k := it.Key()
		if _, dup := t.st.items[k]; dup {
			return fmt.Errorf("order %d already has a line for product %d", orderID, it.ProductID)
		}
		t.st.items[k] = it
	}
	return nil
}

func (t *tx) DeleteOrder(ctx context.Context, id int64) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if _, ok := t.st.orders[id]; !ok {
		return &orders.OrderNotFoundError{ID: id}
	}
	for k := range t.st.items {
		if k.OrderID == id {
			delete(t.st.items, k)
		}
	}
	delete(t.st.orders, id)
	return nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	if err := ctx.Err(); err != nil {
		t.finish()
		return err
	}
	t.store.mu.Lock()
	t.store.state = t.st
	t.store.mu.Unlock()
	t.finish()
	return nil
}

func (t *tx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *tx) finish() {
	t.done = true
	t.st = nil
	t.store.release()
}

func (st *state) clone() *state {
	c := &state{
		products:      make(map[int64]orders.Product, len(st.products)),
		orders:        make(map[int64]orders.Order, len(st.orders)),
		items:         make(map[orders.ItemKey]orders.OrderItem, len(st.items)),
		nextProductID: st.nextProductID,
		nextOrderID:   st.nextOrderID,
	}
	for k, v := range st.products {
		c.products[k] = v
	}
	for k, v := range st.orders {
		c.orders[k] = v
	}
	for k, v := range st.items {
		c.items[k] = v
	}
	return c
}

// itemsOf returns the order's lines with products resolved, by product id.
func (st *state) itemsOf(orderID int64) []orders.OrderItem {
	var out []orders.OrderItem
	for k, it := range st.items {
		if k.OrderID != orderID {
			continue
		}
		if p, ok := st.products[k.ProductID]; ok {
			it.Product = &p
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
