package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Notifier receives committed order changes. It is called after commit and
// never participates in the transaction.
type Notifier interface {
	OrderChanged(ctx context.Context, c Change)
}

// Observer records coordinator outcomes, e.g. as prometheus metrics.
type Observer interface {
	ObserveOperation(op, outcome string, elapsed time.Duration)
	ObserveStockAdjustment(productID int64, delta int)
}

type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

type Change struct {
	Kind  ChangeKind
	Order Order
	Delta Delta
	At    time.Time
}

// Service is the order transaction coordinator. Each Create, Update and
// Delete runs as one unit of work: read, reconcile, check feasibility against
// locked stock, apply, commit. Any failure rolls the whole unit back.
type Service struct {
	store    Store
	notifier Notifier
	observer Observer
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithObserver(o Observer) Option { return func(s *Service) { s.observer = o } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(store Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:  store,
		logger: logger,
		tracer: otel.Tracer("github.com/ariefcatur/go-inventory-orders/internal/orders"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create places a new order. Unit prices are snapshotted from the live
// product price inside the transaction.
func (s *Service) Create(ctx context.Context, in CreateInput) (Order, error) {
	customer, problems := normalizeCustomer(in.Customer)
	status := StatusPending
	if strings.TrimSpace(in.Status) != "" {
		st, err := ParseStatus(in.Status)
		if err != nil {
			problems = append(problems, err.(*ValidationError).Problems...)
		}
		status = st
	}
	if len(in.Items) == 0 {
		problems = append(problems, "at least one item is required")
	}
	after, itemProblems := quantitiesOf(in.Items)
	problems = append(problems, itemProblems...)
	if len(problems) > 0 {
		return Order{}, &ValidationError{Problems: problems}
	}

	var out Order
	delta := Diff(nil, after)
	err := s.run(ctx, OpCreate, 0, func(ctx context.Context, uow *unitOfWork) error {
		products, err := uow.tx.LockProducts(ctx, delta.ProductIDs())
		if err != nil {
			return err
		}
		if err := CheckFeasibility(delta, stockOf(products)); err != nil {
			return err
		}
		uow.advance(PhaseValidated)

		if err := s.apply(ctx, uow.tx, delta, products); err != nil {
			return err
		}
		order := Order{
			CustomerName:    customer.Name,
			CustomerEmail:   customer.Email,
			ShippingAddress: customer.ShippingAddress,
			OrderDate:       s.now().UTC(),
			Status:          status,
		}
		if err := uow.tx.UpsertOrder(ctx, &order); err != nil {
			return err
		}
		uow.orderID = order.ID

		items := make([]OrderItem, 0, len(in.Items))
		for _, it := range in.Items {
			p := products[it.ProductID]
			items = append(items, OrderItem{
				OrderID:   order.ID,
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: p.Price,
				Product:   &p,
			})
		}
		sortItems(items)
		if err := uow.tx.ReplaceOrderItems(ctx, order.ID, items); err != nil {
			return err
		}
		order.Items = items
		uow.advance(PhaseApplied)
		out = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.notify(ctx, Change{Kind: ChangeCreated, Order: out, Delta: delta})
	return out, nil
}

// Update replaces the customer fields, status and the full item set of an
// order. Stock moves by the difference between the old and new item sets,
// so lines reduced in the same request free stock for other lines.
func (s *Service) Update(ctx context.Context, in UpdateInput) (Order, error) {
	customer, problems := normalizeCustomer(in.Customer)
	var status Status
	if strings.TrimSpace(in.Status) != "" {
		st, err := ParseStatus(in.Status)
		if err != nil {
			problems = append(problems, err.(*ValidationError).Problems...)
		}
		status = st
	}
	after, itemProblems := quantitiesOf(in.Items)
	problems = append(problems, itemProblems...)
	if len(problems) > 0 {
		return Order{}, &ValidationError{Problems: problems}
	}

	var out Order
	var delta Delta
	err := s.run(ctx, OpUpdate, in.OrderID, func(ctx context.Context, uow *unitOfWork) error {
		current, err := uow.tx.LockOrder(ctx, in.OrderID)
		if err != nil {
			return err
		}
		delta = Diff(current.Quantities(), after)
		products, err := uow.tx.LockProducts(ctx, delta.ProductIDs())
		if err != nil {
			return err
		}
		if err := CheckFeasibility(delta, stockOf(products)); err != nil {
			return err
		}
		uow.advance(PhaseValidated)

		if err := s.apply(ctx, uow.tx, delta, products); err != nil {
			return err
		}

		previous := make(map[int64]OrderItem, len(current.Items))
		for _, it := range current.Items {
			previous[it.ProductID] = it
		}
		current.CustomerName = customer.Name
		current.CustomerEmail = customer.Email
		current.ShippingAddress = customer.ShippingAddress
		if status != "" {
			current.Status = status
		}
		if err := uow.tx.UpsertOrder(ctx, &current); err != nil {
			return err
		}

		items := make([]OrderItem, 0, len(in.Items))
		for _, it := range in.Items {
			p := products[it.ProductID]
			price := p.Price
			if it.UnitPrice != nil {
				price = *it.UnitPrice
			} else if prev, ok := previous[it.ProductID]; ok {
				price = prev.UnitPrice
			}
			items = append(items, OrderItem{
				OrderID:   current.ID,
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: price,
				Product:   &p,
			})
		}
		sortItems(items)
		if err := uow.tx.ReplaceOrderItems(ctx, current.ID, items); err != nil {
			return err
		}
		current.Items = items
		uow.advance(PhaseApplied)
		out = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.notify(ctx, Change{Kind: ChangeUpdated, Order: out, Delta: delta})
	return out, nil
}

// Delete credits every line back to stock and removes the order.
func (s *Service) Delete(ctx context.Context, orderID int64) error {
	var deleted Order
	var delta Delta
	err := s.run(ctx, OpDelete, orderID, func(ctx context.Context, uow *unitOfWork) error {
		current, err := uow.tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		delta = Diff(current.Quantities(), nil)
		uow.advance(PhaseValidated)

		for _, id := range delta.ProductIDs() {
			if err := s.adjust(ctx, uow.tx, id, -delta[id]); err != nil {
				return err
			}
		}
		if err := uow.tx.ReplaceOrderItems(ctx, orderID, nil); err != nil {
			return err
		}
		if err := uow.tx.DeleteOrder(ctx, orderID); err != nil {
			return err
		}
		uow.advance(PhaseApplied)
		deleted = current
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(ctx, Change{Kind: ChangeDeleted, Order: deleted, Delta: delta})
	return nil
}

func (s *Service) Get(ctx context.Context, orderID int64) (Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.store.ListOrders(ctx)
}

// run executes fn inside one transaction. The transaction is rolled back
// unless fn succeeds and the commit goes through.
func (s *Service) run(ctx context.Context, op string, orderID int64, fn func(ctx context.Context, uow *unitOfWork) error) (err error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "orders."+op)
	defer span.End()

	uow := &unitOfWork{op: op, orderID: orderID, phase: PhaseStarted}
	defer func() { s.finish(ctx, span, uow, start, err) }()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s order: begin: %w", op, err)
	}
	uow.tx = tx
	defer func() {
		if uow.phase == PhaseCommitted {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			s.logger.Error("rollback failed", zap.String("op", op), zap.Int64("order_id", uow.orderID), zap.Error(rbErr))
		}
	}()

	if err = fn(ctx, uow); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s order: commit: %w", op, err)
	}
	uow.advance(PhaseCommitted)
	return nil
}

func (s *Service) finish(ctx context.Context, span trace.Span, uow *unitOfWork, start time.Time, err error) {
	reached := uow.phase
	if err != nil {
		uow.phase = PhaseAborted
	}
	outcome := outcomeOf(err)
	elapsed := s.now().Sub(start)
	if s.observer != nil {
		s.observer.ObserveOperation(uow.op, outcome, elapsed)
	}
	span.SetAttributes(
		attribute.String("order.op", uow.op),
		attribute.Int64("order.id", uow.orderID),
		attribute.String("order.outcome", outcome),
		attribute.String("order.phase", uow.phase.String()),
	)

	fields := []zap.Field{
		zap.String("op", uow.op),
		zap.Int64("order_id", uow.orderID),
		zap.String("phase", uow.phase.String()),
		zap.Duration("elapsed", elapsed),
	}
	if err != nil {
		fields = append(fields, zap.String("reached", reached.String()))
	}
	switch outcome {
	case "committed":
		s.logger.Info("order operation committed", fields...)
	case "error":
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("order operation aborted", append(fields, zap.Error(err))...)
	default:
		s.logger.Warn("order operation aborted", append(fields, zap.String("reason", outcome), zap.Error(err))...)
	}
}

// apply adjusts stock for every non-zero entry of delta, in ascending
// product order.
func (s *Service) apply(ctx context.Context, tx Tx, delta Delta, products map[int64]Product) error {
	for _, id := range delta.ProductIDs() {
		d := delta[id]
		if d == 0 {
			continue
		}
		if err := s.adjust(ctx, tx, id, -d); err != nil {
			return err
		}
		if p, ok := products[id]; ok {
			p.StockQuantity -= d
			products[id] = p
		}
	}
	return nil
}

func (s *Service) adjust(ctx context.Context, tx Tx, productID int64, stockChange int) error {
	if stockChange == 0 {
		return nil
	}
	if err := tx.AdjustStock(ctx, productID, stockChange); err != nil {
		return err
	}
	if s.observer != nil {
		s.observer.ObserveStockAdjustment(productID, stockChange)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, c Change) {
	if s.notifier == nil {
		return
	}
	c.At = s.now().UTC()
	s.notifier.OrderChanged(context.WithoutCancel(ctx), c)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}

func normalizeCustomer(c Customer) (Customer, []string) {
	out := Customer{
		Name:            strings.TrimSpace(c.Name),
		Email:           strings.TrimSpace(c.Email),
		ShippingAddress: strings.TrimSpace(c.ShippingAddress),
	}
	var problems []string
	if out.Name == "" {
		problems = append(problems, "customer_name is required")
	}
	if out.Email == "" {
		problems = append(problems, "customer_email is required")
	}
	if out.ShippingAddress == "" {
		problems = append(problems, "shipping_address is required")
	}
	return out, problems
}

func quantitiesOf(items []ItemInput) (Quantities, []string) {
	q := make(Quantities, len(items))
	var problems []string
	for i, it := range items {
		if it.ProductID <= 0 {
			problems = append(problems, fmt.Sprintf("items[%d]: product_id must be positive", i))
			continue
		}
		if it.Quantity < 1 {
			problems = append(problems, fmt.Sprintf("items[%d]: quantity must be at least 1", i))
		}
		if it.UnitPrice != nil {
			if it.UnitPrice.IsNegative() {
				problems = append(problems, fmt.Sprintf("items[%d]: unit_price must not be negative", i))
			}
			if !it.UnitPrice.Equal(it.UnitPrice.Round(2)) {
				problems = append(problems, fmt.Sprintf("items[%d]: unit_price must have at most two decimal places", i))
			}
		}
		if _, dup := q[it.ProductID]; dup {
			problems = append(problems, fmt.Sprintf("items[%d]: product %d appears more than once", i, it.ProductID))
			continue
		}
		q[it.ProductID] = it.Quantity
	}
	return q, problems
}

func stockOf(products map[int64]Product) Stock {
	st := make(Stock, len(products))
	for id, p := range products {
		st[id] = p.StockQuantity
	}
	return st
}
