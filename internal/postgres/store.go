package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ariefcatur/go-inventory-orders/internal/orders"
)

const (
	qSelectOrder      = `SELECT id, customer_name, customer_email, shipping_address, order_date, status FROM orders WHERE id = $1`
	qSelectOrders     = `SELECT id, customer_name, customer_email, shipping_address, order_date, status FROM orders ORDER BY id`
	qSelectOrderItems = `SELECT oi.order_id, oi.product_id, oi.quantity, oi.unit_price, p.name, p.description, p.price, p.stock_quantity FROM order_items oi JOIN products p ON p.id = oi.product_id WHERE oi.order_id = $1 ORDER BY oi.product_id`
	qSelectAllItems   = `SELECT oi.order_id, oi.product_id, oi.quantity, oi.unit_price, p.name, p.description, p.price, p.stock_quantity FROM order_items oi JOIN products p ON p.id = oi.product_id ORDER BY oi.order_id, oi.product_id`
	qLockProduct      = `SELECT id, name, description, price, stock_quantity FROM products WHERE id = $1 FOR UPDATE`
	qAdjustStock      = `UPDATE products SET stock_quantity = stock_quantity + $2, updated_at = now() WHERE id = $1 AND stock_quantity + $2 >= 0`
	qInsertOrder      = `INSERT INTO orders (customer_name, customer_email, shipping_address, order_date, status) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	qUpdateOrder      = `UPDATE orders SET customer_name = $2, customer_email = $3, shipping_address = $4, status = $5, updated_at = now() WHERE id = $1 RETURNING order_date`
	qDeleteOrderItems = `DELETE FROM order_items WHERE order_id = $1`
	qInsertOrderItem  = `INSERT INTO order_items (order_id, product_id, quantity, unit_price) VALUES ($1, $2, $3, $4)`
	qDeleteOrder      = `DELETE FROM orders WHERE id = $1`
	qSelectProducts   = `SELECT id, name, description, price, stock_quantity FROM products ORDER BY id`
	qSelectProduct    = `SELECT id, name, description, price, stock_quantity FROM products WHERE id = $1`
	qInsertProduct    = `INSERT INTO products (name, description, price, stock_quantity) VALUES ($1, $2, $3, $4) RETURNING id, name, description, price, stock_quantity`
	qUpdateProduct    = `UPDATE products SET name = $2, description = $3, price = $4, stock_quantity = $5, updated_at = now() WHERE id = $1 RETURNING id, name, description, price, stock_quantity`
)

var (
	_ orders.Store   = (*Store)(nil)
	_ orders.Catalog = (*Store)(nil)
	_ orders.Tx      = (*Tx)(nil)
)

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is the part of *pgxpool.Pool the store uses.
type DB interface {
	queryer
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store implements orders.Store and orders.Catalog on Postgres. Mutations
// run at READ COMMITTED with row locks taken by LockOrder and LockProducts.
type Store struct {
	DB DB
}

func NewStore(db DB) *Store { return &Store{DB: db} }

func (s *Store) Begin(ctx context.Context) (orders.Tx, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, translate("begin", err)
	}
	return &Tx{tx: tx}, nil
}

func (s *Store) GetOrder(ctx context.Context, id int64) (orders.Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, qSelectOrder, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, &orders.OrderNotFoundError{ID: id}
	}
	if err != nil {
		return orders.Order{}, translate("get order", err)
	}
	o.Items, err = loadItems(ctx, s.DB, id)
	if err != nil {
		return orders.Order{}, err
	}
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]orders.Order, error) {
	rows, err := s.DB.Query(ctx, qSelectOrders)
	if err != nil {
		return nil, translate("list orders", err)
	}
	defer rows.Close()

	var out []orders.Order
	index := map[int64]int{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, translate("list orders", err)
		}
		index[o.ID] = len(out)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("list orders", err)
	}

	itemRows, err := s.DB.Query(ctx, qSelectAllItems)
	if err != nil {
		return nil, translate("list order items", err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		it, err := scanItem(itemRows)
		if err != nil {
			return nil, translate("list order items", err)
		}
		if i, ok := index[it.OrderID]; ok {
			out[i].Items = append(out[i].Items, it)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, translate("list order items", err)
	}
	return out, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]orders.Product, error) {
	rows, err := s.DB.Query(ctx, qSelectProducts)
	if err != nil {
		return nil, translate("list products", err)
	}
	defer rows.Close()

	var out []orders.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, translate("list products", err)
		}
		out = append(out, p)
	}
	return out, translate("list products", rows.Err())
}

func (s *Store) GetProduct(ctx context.Context, id int64) (orders.Product, error) {
	p, err := scanProduct(s.DB.QueryRow(ctx, qSelectProduct, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, &orders.ProductNotFoundError{IDs: []int64{id}}
	}
	if err != nil {
		return orders.Product{}, translate("get product", err)
	}
	return p, nil
}

func (s *Store) CreateProduct(ctx context.Context, in orders.ProductInput) (orders.Product, error) {
	p, err := scanProduct(s.DB.QueryRow(ctx, qInsertProduct,
		strings.TrimSpace(in.Name), in.Description, in.Price.Round(2), in.StockQuantity))
	if err != nil {
		return orders.Product{}, translate("create product", err)
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id int64, in orders.ProductInput) (orders.Product, error) {
	p, err := scanProduct(s.DB.QueryRow(ctx, qUpdateProduct,
		id, strings.TrimSpace(in.Name), in.Description, in.Price.Round(2), in.StockQuantity))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, &orders.ProductNotFoundError{IDs: []int64{id}}
	}
	if err != nil {
		return orders.Product{}, translate("update product", err)
	}
	return p, nil
}

// Tx is one order unit of work.
type Tx struct {
	tx pgx.Tx
}

func (t *Tx) LockOrder(ctx context.Context, id int64) (orders.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, qSelectOrder+" FOR UPDATE", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, &orders.OrderNotFoundError{ID: id}
	}
	if err != nil {
		return orders.Order{}, translate("lock order", err)
	}
	o.Items, err = loadItems(ctx, t.tx, id)
	if err != nil {
		return orders.Order{}, err
	}
	return o, nil
}

// LockProducts locks one row at a time in the order given; callers pass
// ascending ids so concurrent transactions queue instead of deadlocking.
func (t *Tx) LockProducts(ctx context.Context, ids []int64) (map[int64]orders.Product, error) {
	out := make(map[int64]orders.Product, len(ids))
	for _, id := range ids {
		p, err := scanProduct(t.tx.QueryRow(ctx, qLockProduct, id))
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, translate(fmt.Sprintf("lock product %d", id), err)
		}
		out[id] = p
	}
	return out, nil
}

func (t *Tx) AdjustStock(ctx context.Context, productID int64, delta int) error {
	ct, err := t.tx.Exec(ctx, qAdjustStock, productID, delta)
	if err != nil {
		return translate(fmt.Sprintf("adjust stock of product %d", productID), err)
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("adjust stock of product %d by %d: %w", productID, delta, orders.ErrConcurrencyConflict)
	}
	return nil
}

func (t *Tx) UpsertOrder(ctx context.Context, o *orders.Order) error {
	if o.ID == 0 {
		err := t.tx.QueryRow(ctx, qInsertOrder,
			o.CustomerName, o.CustomerEmail, o.ShippingAddress, o.OrderDate, string(o.Status),
		).Scan(&o.ID)
		return translate("insert order", err)
	}
	err := t.tx.QueryRow(ctx, qUpdateOrder,
		o.ID, o.CustomerName, o.CustomerEmail, o.ShippingAddress, string(o.Status),
	).Scan(&o.OrderDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return &orders.OrderNotFoundError{ID: o.ID}
	}
	return translate("update order", err)
}

func (t *Tx) ReplaceOrderItems(ctx context.Context, orderID int64, items []orders.OrderItem) error {
	if _, err := t.tx.Exec(ctx, qDeleteOrderItems, orderID); err != nil {
		return translate("delete order items", err)
	}
	for _, it := range items {
		if _, err := t.tx.Exec(ctx, qInsertOrderItem, orderID, it.ProductID, it.Quantity, it.UnitPrice); err != nil {
			return translate(fmt.Sprintf("insert item for product %d", it.ProductID), err)
		}
	}
	return nil
}

func (t *Tx) DeleteOrder(ctx context.Context, id int64) error {
	ct, err := t.tx.Exec(ctx, qDeleteOrder, id)
	if err != nil {
		return translate("delete order", err)
	}
	if ct.RowsAffected() == 0 {
		return &orders.OrderNotFoundError{ID: id}
	}
	return nil
}

func (t *Tx) Commit(ctx context.Context) error {
	return translate("commit", t.tx.Commit(ctx))
}

func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (orders.Order, error) {
	var o orders.Order
	var status string
	if err := row.Scan(&o.ID, &o.CustomerName, &o.CustomerEmail, &o.ShippingAddress, &o.OrderDate, &status); err != nil {
		return orders.Order{}, err
	}
	o.Status = orders.Status(status)
	o.OrderDate = o.OrderDate.UTC()
	return o, nil
}

func scanProduct(row scanner) (orders.Product, error) {
	var p orders.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.StockQuantity)
	return p, err
}

func scanItem(row scanner) (orders.OrderItem, error) {
	var it orders.OrderItem
	p := &orders.Product{}
	if err := row.Scan(&it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice,
		&p.Name, &p.Description, &p.Price, &p.StockQuantity); err != nil {
		return orders.OrderItem{}, err
	}
	p.ID = it.ProductID
	it.Product = p
	return it, nil
}

func loadItems(ctx context.Context, q queryer, orderID int64) ([]orders.OrderItem, error) {
	rows, err := q.Query(ctx, qSelectOrderItems, orderID)
	if err != nil {
		return nil, translate("load order items", err)
	}
	defer rows.Close()

	var items []orders.OrderItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, translate("load order items", err)
		}
		items = append(items, it)
	}
	return items, translate("load order items", rows.Err())
}
