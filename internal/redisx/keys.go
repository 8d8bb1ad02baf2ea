package redisx

import "time"

const (
	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Cache order status: order_status:{tenant_id}:{order_id} -> {"status":"...","currentStep":"..."}
	KeyOrderStatus = "order_status:%s:%s"
)

var (
	TTLDedup       = 48 * time.Hour
	TTLStatusCache = 5 * time.Minute
)
