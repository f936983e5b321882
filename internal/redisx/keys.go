package redisx

import (
	"fmt"
	"time"
)

const (
	// order:{order_id} -> order JSON
	KeyOrder = "order:%d"

	// product:{product_id} -> product JSON
	KeyProduct = "product:%d"

	// idem:order:create:{idempotency_key} -> order_id, or "pending" while in flight
	KeyIdemOrderCreate = "idem:order:create:%s"

	// dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency  = 24 * time.Hour
	TTLProductCache = 5 * time.Minute
	TTLDedup        = 48 * time.Hour
)

func OrderKey(id int64) string { return fmt.Sprintf(KeyOrder, id) }

func ProductKey(id int64) string { return fmt.Sprintf(KeyProduct, id) }

func IdemOrderCreateKey(k string) string { return fmt.Sprintf(KeyIdemOrderCreate, k) }

func DedupKey(service, id string) string { return fmt.Sprintf(KeyDedup, service, id) }
