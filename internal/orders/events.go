package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated = "OrderCreated"
	EventOrderUpdated = "OrderUpdated"
	EventOrderDeleted = "OrderDeleted"
	EventStockLow     = "StockLow"
)

// EventTypeFor maps a committed change to its envelope event type.
func EventTypeFor(k ChangeKind) string {
	switch k {
	case ChangeCreated:
		return EventOrderCreated
	case ChangeUpdated:
		return EventOrderUpdated
	case ChangeDeleted:
		return EventOrderDeleted
	}
	return ""
}

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type ItemLine struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// StockDelta is the stock consumed (positive) or returned (negative) for one
// product by a committed change.
type StockDelta struct {
	ProductID int64 `json:"product_id"`
	Delta     int   `json:"delta"`
}

type OrderChangedPayload struct {
	OrderID int64        `json:"order_id"`
	Status  Status       `json:"status"`
	Items   []ItemLine   `json:"items"`
	Delta   []StockDelta `json:"delta"`
	Total   string       `json:"total"`
}

type StockLowPayload struct {
	ProductID     int64  `json:"product_id"`
	Name          string `json:"name"`
	StockQuantity int    `json:"stock_quantity"`
	Threshold     int    `json:"threshold"`
}

// NewOrderChangedPayload flattens a change. Delta entries follow ascending
// product id and keep zero entries.
func NewOrderChangedPayload(c Change) OrderChangedPayload {
	p := OrderChangedPayload{
		OrderID: c.Order.ID,
		Status:  c.Order.Status,
		Items:   make([]ItemLine, 0, len(c.Order.Items)),
		Delta:   make([]StockDelta, 0, len(c.Delta)),
		Total:   c.Order.Total().StringFixed(2),
	}
	for _, it := range c.Order.Items {
		p.Items = append(p.Items, ItemLine{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice.StringFixed(2)})
	}
	for _, id := range c.Delta.ProductIDs() {
		p.Delta = append(p.Delta, StockDelta{ProductID: id, Delta: c.Delta[id]})
	}
	return p
}
