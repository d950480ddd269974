package redisx

import "time"

const (
	// Idempotency record for a reserve/release call: idem:stock:{key} -> cached response JSON
	KeyStockIdem = "idem:stock:%s"

	// Product detail cache: products:detail:{product_id} -> product JSON
	KeyProductDetail = "products:detail:%s"

	// Webhook dedup cache: webhook:processed:{provider_event_id}
	KeyWebhookProcessed = "webhook:processed:%s"

	// Order status cache: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Notification job retention lists (capped)
	KeyNotifyCompleted = "notify:completed"
	KeyNotifyFailed    = "notify:failed"
)

var (
	TTLIdempotency   = 24 * time.Hour
	TTLProductCache  = 5 * time.Minute
	TTLWebhookDedup  = 24 * time.Hour
	TTLStatusCache   = 5 * time.Minute
	TTLNotifyDone    = 24 * time.Hour
	TTLNotifyFailed  = 7 * 24 * time.Hour
	NotifyListMaxLen = int64(1000)
)
