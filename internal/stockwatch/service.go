// Package stockwatch consumes order.changed, refreshes cached product stock
// and raises StockLow when a product falls to or below the threshold.
package stockwatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-inventory-orders/internal/events"
	kafkax "github.com/ariefcatur/go-inventory-orders/internal/kafka"
	"github.com/ariefcatur/go-inventory-orders/internal/orders"
	"github.com/ariefcatur/go-inventory-orders/internal/redisx"
)

const dedupService = "stockwatch"

type Service struct {
	Catalog     orders.Catalog
	Cache       redisx.Cache
	Producer    events.Publisher // publishes to stock.low
	Threshold   int
	ServiceName string
	Logger      *zap.Logger
	Now         func() time.Time
}

// HandleOrderChanged is installed as the consumer handler.
func (s *Service) HandleOrderChanged(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.Decode[orders.Envelope](m.Value)
	if err != nil {
		// a poison message would block the partition forever
		s.logger().Warn("skipping undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	switch env.EventType {
	case orders.EventOrderCreated, orders.EventOrderUpdated, orders.EventOrderDeleted:
	default:
		return nil
	}

	dkey := redisx.DedupKey(dedupService, env.EventID)
	first, err := s.Cache.SetNX(ctx, dkey, []byte("1"), redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !first {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.OrderChangedPayload](env.Payload)
	if err != nil {
		s.logger().Warn("skipping bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	for _, d := range p.Delta {
		if d.Delta == 0 {
			continue
		}
		if err := s.check(ctx, d.ProductID, env.TraceID); err != nil {
			// let the message be redelivered
			_ = s.Cache.Del(context.WithoutCancel(ctx), dkey)
			return err
		}
	}
	return nil
}

func (s *Service) check(ctx context.Context, productID int64, traceID string) error {
	product, err := s.Catalog.GetProduct(ctx, productID)
	if errors.Is(err, orders.ErrProductNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read product %d: %w", productID, err)
	}

	if err := s.Cache.Set(ctx, redisx.ProductKey(productID), kafkax.MustMarshal(product), redisx.TTLProductCache); err != nil {
		s.logger().Warn("product cache refresh failed", zap.Int64("product_id", productID), zap.Error(err))
	}

	if product.StockQuantity > s.Threshold {
		return nil
	}
	s.logger().Info("stock low",
		zap.Int64("product_id", productID),
		zap.Int("stock_quantity", product.StockQuantity),
		zap.Int("threshold", s.Threshold))
	return s.publishLow(ctx, product, traceID)
}

func (s *Service) publishLow(ctx context.Context, p orders.Product, trace string) error {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventStockLow,
		EventVersion:  1,
		OccurredAt:    s.now().UTC(),
		Producer:      s.ServiceName,
		TraceID:       trace,
		CorrelationID: strconv.FormatInt(p.ID, 10),
		Payload: kafkax.MustMarshal(orders.StockLowPayload{
			ProductID:     p.ID,
			Name:          p.Name,
			StockQuantity: p.StockQuantity,
			Threshold:     s.Threshold,
		}),
	}
	s.Producer.Publish(ctx, []byte(strconv.FormatInt(p.ID, 10)), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventStockLow)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	return nil
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
