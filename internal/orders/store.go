package orders

import "context"

// Store is the order side of the relational store. Mutations go through a
// Tx so stock adjustments and item replacement commit or roll back together.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	// GetOrder returns the committed order with items and resolved products,
	// or an *OrderNotFoundError.
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context) ([]Order, error)
}

// Tx is one unit of work. Rows read through LockOrder and LockProducts stay
// locked until Commit or Rollback. Rollback after Commit is a no-op.
type Tx interface {
	// LockOrder reads the order and its items for update.
	LockOrder(ctx context.Context, id int64) (Order, error)
	// LockProducts reads the given products for update, in the order given.
	// Unknown ids are absent from the result rather than an error.
	LockProducts(ctx context.Context, ids []int64) (map[int64]Product, error)
	// AdjustStock adds delta to the product's stock. It must refuse to take
	// stock below zero and report that as ErrConcurrencyConflict.
	AdjustStock(ctx context.Context, productID int64, delta int) error
	// UpsertOrder inserts the order when o.ID is zero, assigning the id,
	// and updates the mutable fields otherwise. OrderDate is never updated.
	UpsertOrder(ctx context.Context, o *Order) error
	ReplaceOrderItems(ctx context.Context, orderID int64, items []OrderItem) error
	DeleteOrder(ctx context.Context, id int64) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Catalog is the uncoordinated product edit path. Writes here do not go
// through the reconciler.
type Catalog interface {
	ListProducts(ctx context.Context) ([]Product, error)
	// GetProduct returns a *ProductNotFoundError for unknown ids.
	GetProduct(ctx context.Context, id int64) (Product, error)
	CreateProduct(ctx context.Context, in ProductInput) (Product, error)
	UpdateProduct(ctx context.Context, id int64, in ProductInput) (Product, error)
}
