package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-inventory-orders/internal/orders"
)

func seeded() *Store {
	s := New()
	s.Seed(orders.Product{ID: 1, Name: "A", Price: decimal.NewFromInt(2), StockQuantity: 3})
	return s
}

func TestRollbackDiscardsChanges(t *testing.T) {
	ctx := context.Background()
	s := seeded()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.AdjustStock(ctx, 1, -2); err != nil {
		t.Fatal(err)
	}
	o := &orders.Order{CustomerName: "x", Status: orders.StatusPending}
	if err := tx.UpsertOrder(ctx, o); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatal(err)
	}

	p, _ := s.GetProduct(ctx, 1)
	if p.StockQuantity != 3 {
		t.Errorf("stock = %d, want 3", p.StockQuantity)
	}
	if _, err := s.GetOrder(ctx, o.ID); !errors.Is(err, orders.ErrOrderNotFound) {
		t.Errorf("err = %v", err)
	}
	if err := tx.Commit(ctx); err == nil {
		t.Error("commit after rollback succeeded")
	}
}

func TestCommitPublishesChanges(t *testing.T) {
	ctx := context.Background()
	s := seeded()

	tx, _ := s.Begin(ctx)
	o := &orders.Order{CustomerName: "x", Status: orders.StatusPending, OrderDate: time.Unix(0, 0)}
	if err := tx.UpsertOrder(ctx, o); err != nil {
		t.Fatal(err)
	}
	items := []orders.OrderItem{{ProductID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(2)}}
	if err := tx.ReplaceOrderItems(ctx, o.ID, items); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Errorf("rollback after commit = %v, want nil", err)
	}

	got, err := s.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Items) != 1 || got.Items[0].Product == nil || got.Items[0].Product.Name != "A" {
		t.Errorf("items = %+v", got.Items)
	}
}

func TestAdjustStockRefusesNegative(t *testing.T) {
	ctx := context.Background()
	s := seeded()
	tx, _ := s.Begin(ctx)
	defer tx.Rollback(ctx)

	if err := tx.AdjustStock(ctx, 1, -4); !errors.Is(err, orders.ErrConcurrencyConflict) {
		t.Errorf("err = %v, want conflict", err)
	}
	if err := tx.AdjustStock(ctx, 9, 1); !errors.Is(err, orders.ErrProductNotFound) {
		t.Errorf("err = %v, want product not found", err)
	}
}

func TestBeginWaitsForWriter(t *testing.T) {
	s := seeded()
	tx, _ := s.Begin(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Begin(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}

	_ = tx.Rollback(context.Background())
	tx2, err := s.Begin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	_ = tx2.Rollback(context.Background())
}

func TestUpsertKeepsOrderDate(t *testing.T) {
	ctx := context.Background()
	s := seeded()
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tx, _ := s.Begin(ctx)
	o := &orders.Order{CustomerName: "x", OrderDate: created}
	_ = tx.UpsertOrder(ctx, o)
	_ = tx.Commit(ctx)

	tx, _ = s.Begin(ctx)
	upd := &orders.Order{ID: o.ID, CustomerName: "y", OrderDate: time.Now()}
	if err := tx.UpsertOrder(ctx, upd); err != nil {
		t.Fatal(err)
	}
	_ = tx.Commit(ctx)

	got, _ := s.GetOrder(ctx, o.ID)
	if got.CustomerName != "y" || !got.OrderDate.Equal(created) {
		t.Errorf("got %+v", got)
	}
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	s := seeded()

	p, err := s.CreateProduct(ctx, orders.ProductInput{Name: " B ", Price: decimal.RequireFromString("1.5"), StockQuantity: 2})
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != 2 || p.Name != "B" {
		t.Errorf("created %+v", p)
	}
	if _, err := s.UpdateProduct(ctx, 77, orders.ProductInput{Name: "x"}); !errors.Is(err, orders.ErrProductNotFound) {
		t.Errorf("err = %v", err)
	}
	list, _ := s.ListProducts(ctx)
	if len(list) != 2 || list[0].ID != 1 {
		t.Errorf("list = %+v", list)
	}
}
