package orders

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
}

type Order struct {
	ID              int64       `json:"id"`
	CustomerName    string      `json:"customer_name"`
	CustomerEmail   string      `json:"customer_email"`
	ShippingAddress string      `json:"shipping_address"`
	OrderDate       time.Time   `json:"order_date"`
	Status          Status      `json:"status"`
	Items           []OrderItem `json:"items"`
}

// Total is the sum of quantity x unit price over all lines, rounded to cents.
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total.Round(2)
}

// Quantities returns the order's line items as a product -> quantity map.
func (o Order) Quantities() Quantities {
	q := make(Quantities, len(o.Items))
	for _, it := range o.Items {
		q[it.ProductID] += it.Quantity
	}
	return q
}

// ItemKey identifies an order line. An order holds at most one line per product.
type ItemKey struct {
	OrderID   int64
	ProductID int64
}

type OrderItem struct {
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Product   *Product        `json:"product,omitempty"`
}

func (it OrderItem) Key() ItemKey { return ItemKey{OrderID: it.OrderID, ProductID: it.ProductID} }

// Customer carries the mutable customer fields of an order.
type Customer struct {
	Name            string `json:"customer_name"`
	Email           string `json:"customer_email"`
	ShippingAddress string `json:"shipping_address"`
}

// ItemInput is a caller-submitted line. UnitPrice is ignored on create; on
// update a nil price keeps the existing line's snapshot.
type ItemInput struct {
	ProductID int64            `json:"product_id"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type CreateInput struct {
	Customer Customer
	Status   string // optional, defaults to Pending
	Items    []ItemInput
}

type UpdateInput struct {
	OrderID  int64
	Customer Customer
	Status   string
	Items    []ItemInput
}

// ProductInput is used by the catalog edit path.
type ProductInput struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
}

func (in ProductInput) Validate() error {
	var problems []string
	if strings.TrimSpace(in.Name) == "" {
		problems = append(problems, "name is required")
	}
	if in.Price.IsNegative() {
		problems = append(problems, "price must not be negative")
	}
	if !in.Price.Equal(in.Price.Round(2)) {
		problems = append(problems, "price must have at most two decimal places")
	}
	if in.StockQuantity < 0 {
		problems = append(problems, "stock_quantity must not be negative")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func sortItems(items []OrderItem) {
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
}
