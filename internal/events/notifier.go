// Package events turns committed order changes into kafka envelopes and
// drops the cache entries the change made stale.
package events

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-inventory-orders/internal/kafka"
	"github.com/ariefcatur/go-inventory-orders/internal/orders"
	"github.com/ariefcatur/go-inventory-orders/internal/redisx"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafkago.Header)
}

type Notifier struct {
	pub      Publisher
	cache    redisx.Cache
	producer string
	logger   *zap.Logger
	newID    func() string
}

// NewNotifier builds a Notifier. pub and cache may be nil, which disables
// that half.
func NewNotifier(pub Publisher, cache redisx.Cache, producer string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{pub: pub, cache: cache, producer: producer, logger: logger, newID: uuid.NewString}
}

var _ orders.Notifier = (*Notifier)(nil)

func (n *Notifier) OrderChanged(ctx context.Context, c orders.Change) {
	n.invalidate(ctx, c)
	if n.pub == nil {
		return
	}

	eventType := orders.EventTypeFor(c.Kind)
	env := orders.Envelope{
		EventID:       n.newID(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    c.At,
		Producer:      n.producer,
		CorrelationID: strconv.FormatInt(c.Order.ID, 10),
		Payload:       kafkax.MustMarshal(orders.NewOrderChangedPayload(c)),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}

	n.pub.Publish(ctx, orders.PartitionKey(c.Order.ID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	n.logger.Debug("order change published",
		zap.String("event_id", env.EventID),
		zap.String("event_type", eventType),
		zap.Int64("order_id", c.Order.ID))
}

func (n *Notifier) invalidate(ctx context.Context, c orders.Change) {
	if n.cache == nil {
		return
	}
	keys := []string{redisx.OrderKey(c.Order.ID)}
	for _, id := range c.Delta.ProductIDs() {
		if c.Delta[id] != 0 {
			keys = append(keys, redisx.ProductKey(id))
		}
	}
	if err := n.cache.Del(ctx, keys...); err != nil {
		n.logger.Warn("cache invalidation failed", zap.Int64("order_id", c.Order.ID), zap.Error(err))
	}
}
