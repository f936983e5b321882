package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/ariefcatur/go-inventory-orders/internal/orders"
)

var (
	orderCols   = []string{"id", "customer_name", "customer_email", "shipping_address", "order_date", "status"}
	productCols = []string{"id", "name", "description", "price", "stock_quantity"}
	itemCols    = []string{"order_id", "product_id", "quantity", "unit_price", "name", "description", "price", "stock_quantity"}
)

func newMock(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mock.Close)
	return NewStore(mock), mock
}

// money matches a decimal argument by value, whatever its exponent.
type money string

func (m money) Match(v any) bool {
	d, ok := v.(decimal.Decimal)
	return ok && d.Equal(decimal.RequireFromString(string(m)))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(t *testing.T, s *Store) *orders.Service {
	return orders.NewService(s, zaptest.NewLogger(t))
}

var customer = orders.Customer{Name: "Ana", Email: "ana@example.com", ShippingAddress: "Rua 1"}

func TestCreateOrderTransaction(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(qLockProduct).WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(productCols).AddRow(int64(1), "Keyboard", "", dec("49.90"), 5))
	mock.ExpectExec(qAdjustStock).WithArgs(int64(1), -2).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(qInsertOrder).
		WithArgs("Ana", "ana@example.com", "Rua 1", pgxmock.AnyArg(), "Pending").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(10)))
	mock.ExpectExec(qDeleteOrderItems).WithArgs(int64(10)).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(qInsertOrderItem).
		WithArgs(int64(10), int64(1), 2, money("49.90")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	o, err := newService(t, s).Create(context.Background(), orders.CreateInput{
		Customer: customer,
		Items:    []orders.ItemInput{{ProductID: 1, Quantity: 2}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if o.ID != 10 || !o.Total().Equal(dec("99.80")) {
		t.Errorf("order = %+v total %s", o, o.Total())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateOrderInsufficientStockRollsBack(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(qLockProduct).WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(productCols).AddRow(int64(1), "Keyboard", "", dec("49.90"), 1))
	mock.ExpectQuery(qLockProduct).WithArgs(int64(2)).WillReturnRows(pgxmock.NewRows(productCols))
	mock.ExpectRollback()

	_, err := newService(t, s).Create(context.Background(), orders.CreateInput{
		Customer: customer,
		Items:    []orders.ItemInput{{ProductID: 2, Quantity: 1}, {ProductID: 1, Quantity: 3}},
	})
	if !errors.Is(err, orders.ErrInsufficientStock) || !errors.Is(err, orders.ErrProductNotFound) {
		t.Fatalf("err = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGuardedUpdateReportsConflict(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(qLockProduct).WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(productCols).AddRow(int64(1), "Keyboard", "", dec("49.90"), 5))
	mock.ExpectExec(qAdjustStock).WithArgs(int64(1), -1).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	_, err := newService(t, s).Create(context.Background(), orders.CreateInput{
		Customer: customer,
		Items:    []orders.ItemInput{{ProductID: 1, Quantity: 1}},
	})
	if !errors.Is(err, orders.ErrConcurrencyConflict) {
		t.Fatalf("err = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDeadlockIsConflict(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(qAdjustStock).WithArgs(int64(3), 4).
		WillReturnError(&pgconn.PgError{Code: "40P01", Message: "deadlock detected"})
	mock.ExpectRollback()

	ctx := context.Background()
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	err = tx.AdjustStock(ctx, 3, 4)
	if !errors.Is(err, orders.ErrConcurrencyConflict) {
		t.Errorf("err = %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDeleteOrderCreditsStock(t *testing.T) {
	s, mock := newMock(t)
	date := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(qSelectOrder+" FOR UPDATE").WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(orderCols).AddRow(int64(7), "Ana", "ana@example.com", "Rua 1", date, "Shipped"))
	mock.ExpectQuery(qSelectOrderItems).WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(itemCols).
			AddRow(int64(7), int64(1), 2, dec("40.00"), "Keyboard", "", dec("49.90"), 3).
			AddRow(int64(7), int64(4), 1, dec("5.00"), "Pad", "", dec("5.00"), 0))
	mock.ExpectExec(qAdjustStock).WithArgs(int64(1), 2).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(qAdjustStock).WithArgs(int64(4), 1).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(qDeleteOrderItems).WithArgs(int64(7)).WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(qDeleteOrder).WithArgs(int64(7)).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	if err := newService(t, s).Delete(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDeleteMissingOrder(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(qSelectOrder + " FOR UPDATE").WithArgs(int64(7)).WillReturnRows(pgxmock.NewRows(orderCols))
	mock.ExpectRollback()

	err := newService(t, s).Delete(context.Background(), 7)
	if !errors.Is(err, orders.ErrOrderNotFound) {
		t.Fatalf("err = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateOrderKeepsDate(t *testing.T) {
	s, mock := newMock(t)
	date := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(qSelectOrder+" FOR UPDATE").WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(orderCols).AddRow(int64(7), "Ana", "ana@example.com", "Rua 1", date, "Pending"))
	mock.ExpectQuery(qSelectOrderItems).WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(itemCols).AddRow(int64(7), int64(1), 2, dec("40.00"), "Keyboard", "", dec("49.90"), 3))
	mock.ExpectQuery(qLockProduct).WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(productCols).AddRow(int64(1), "Keyboard", "", dec("49.90"), 3))
	mock.ExpectExec(qAdjustStock).WithArgs(int64(1), -1).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(qUpdateOrder).WithArgs(int64(7), "Ana", "ana@example.com", "Rua 1", "Delivered").
		WillReturnRows(pgxmock.NewRows([]string{"order_date"}).AddRow(date))
	mock.ExpectExec(qDeleteOrderItems).WithArgs(int64(7)).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(qInsertOrderItem).WithArgs(int64(7), int64(1), 3, money("40.00")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	o, err := newService(t, s).Update(context.Background(), orders.UpdateInput{
		OrderID:  7,
		Customer: customer,
		Status:   "delivered",
		Items:    []orders.ItemInput{{ProductID: 1, Quantity: 3}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !o.OrderDate.Equal(date) || o.Status != orders.StatusDelivered {
		t.Errorf("order = %+v", o)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetOrderWithItems(t *testing.T) {
	s, mock := newMock(t)
	date := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(qSelectOrder).WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(orderCols).AddRow(int64(7), "Ana", "ana@example.com", "Rua 1", date, "Pending"))
	mock.ExpectQuery(qSelectOrderItems).WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(itemCols).AddRow(int64(7), int64(1), 2, dec("40.00"), "Keyboard", "", dec("49.90"), 3))

	o, err := s.GetOrder(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(o.Items) != 1 || o.Items[0].Product.Name != "Keyboard" || !o.Items[0].UnitPrice.Equal(decimal.RequireFromString("40")) {
		t.Errorf("order = %+v", o)
	}

	mock.ExpectQuery(qSelectOrder).WithArgs(int64(8)).WillReturnRows(pgxmock.NewRows(orderCols))
	if _, err := s.GetOrder(context.Background(), 8); !errors.Is(err, orders.ErrOrderNotFound) {
		t.Errorf("err = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListOrdersAttachesItems(t *testing.T) {
	s, mock := newMock(t)
	date := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(qSelectOrders).WillReturnRows(pgxmock.NewRows(orderCols).
		AddRow(int64(1), "A", "a@x", "s", date, "Pending").
		AddRow(int64(2), "B", "b@x", "s", date, "Shipped"))
	mock.ExpectQuery(qSelectAllItems).WillReturnRows(pgxmock.NewRows(itemCols).
		AddRow(int64(1), int64(5), 1, dec("1.00"), "P5", "", dec("1.00"), 9).
		AddRow(int64(2), int64(5), 2, dec("1.00"), "P5", "", dec("1.00"), 9).
		AddRow(int64(2), int64(6), 1, dec("3.00"), "P6", "", dec("3.00"), 9))

	list, err := s.ListOrders(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || len(list[0].Items) != 1 || len(list[1].Items) != 2 {
		t.Errorf("list = %+v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCatalog(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery(qInsertProduct).WithArgs("Pad", "", money("5.00"), 10).
		WillReturnRows(pgxmock.NewRows(productCols).AddRow(int64(3), "Pad", "", dec("5.00"), 10))
	p, err := s.CreateProduct(ctx, orders.ProductInput{Name: " Pad ", Price: decimal.RequireFromString("5"), StockQuantity: 10})
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != 3 {
		t.Errorf("product = %+v", p)
	}

	mock.ExpectQuery(qUpdateProduct).WithArgs(int64(99), "X", "", money("0"), 0).
		WillReturnRows(pgxmock.NewRows(productCols))
	if _, err := s.UpdateProduct(ctx, 99, orders.ProductInput{Name: "X"}); !errors.Is(err, orders.ErrProductNotFound) {
		t.Errorf("err = %v", err)
	}

	mock.ExpectQuery(qSelectProduct).WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows(productCols).AddRow(int64(3), "Pad", "", dec("5.00"), 10))
	if p, err := s.GetProduct(ctx, 3); err != nil || p.StockQuantity != 10 {
		t.Errorf("GetProduct = %+v, %v", p, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMigrate(t *testing.T) {
	_, mock := newMock(t)
	mock.ExpectExec(schema).WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))
	if err := Migrate(context.Background(), mock); err != nil {
		t.Fatal(err)
	}

	mock.ExpectExec(schema).WillReturnError(errors.New("permission denied"))
	if err := Migrate(context.Background(), mock); err == nil {
		t.Error("schema failure not reported")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestTranslate(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03", "23514"} {
		if err := translate("op", &pgconn.PgError{Code: code}); !errors.Is(err, orders.ErrConcurrencyConflict) {
			t.Errorf("%s: %v", code, err)
		}
	}
	if err := translate("op", &pgconn.PgError{Code: "23505"}); errors.Is(err, orders.ErrConcurrencyConflict) {
		t.Error("unique violation reported as conflict")
	}
	if translate("op", nil) != nil {
		t.Error("nil error translated")
	}
}
