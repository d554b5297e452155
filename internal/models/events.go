package models

import "time"

// Analytics event names
const (
	EventCartItemAdded     = "CART_ITEM_ADDED"
	EventCartItemUpdated   = "CART_ITEM_UPDATED"
	EventCartItemRemoved   = "CART_ITEM_REMOVED"
	EventCartItemReAdded   = "CART_ITEM_READDED"
	EventCartCleared       = "CART_CLEARED"
	EventDiscountApplied   = "DISCOUNT_APPLIED"
	EventDiscountRemoved   = "DISCOUNT_REMOVED"
	EventCartMerged        = "CART_MERGED"
	EventEstimateUpdated   = "ESTIMATE_UPDATED"
	EventCartHeartbeat     = "CART_HEARTBEAT"
	EventCheckoutIntent    = "CHECKOUT_INTENT"
	EventCheckoutDrift     = "CHECKOUT_DRIFT"
	EventCheckoutBlocked   = "CHECKOUT_BLOCKED"
	EventCheckoutCompleted = "CHECKOUT_COMPLETED"
)

// AnalyticsEvent is a single buffered telemetry event.
type AnalyticsEvent struct {
	Name      string            `json:"name"`
	Payload   map[string]string `json:"payload,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// AnalyticsBatch is the unit the buffer flushes: one batched record per
// flush, delivered at-least-once (the sink dedupes on BatchID).
type AnalyticsBatch struct {
	BatchID   string           `json:"batch_id"`
	UserID    string           `json:"user_id"`
	ClientID  string           `json:"client_id"`
	Events    []AnalyticsEvent `json:"events"`
	Count     int              `json:"count"`
	FlushedAt time.Time        `json:"flushed_at"`
}

// SyncPushRequest is the payload sent to the sync endpoint. The payload is
// built at send time so a debounced push always reflects the latest local
// state.
type SyncPushRequest struct {
	UserID      string         `json:"user_id"`
	ClientID    string         `json:"client_id"`
	Items       []LineItem     `json:"items"`
	RemovedKeys []string       `json:"removed_keys"`
	Discounts   []DiscountCode `json:"discounts"`
	Currency    string         `json:"currency"`
	BaseVersion int64          `json:"base_version"`
}

// EstimateRequest is the payload for the shipping/tax estimate call.
type EstimateRequest struct {
	Subtotal       int64    `json:"subtotal"`
	DiscountAmount int64    `json:"discount_amount"`
	Currency       string   `json:"currency"`
	TotalWeightG   int      `json:"total_weight_g"`
	TaxCodes       []string `json:"tax_codes"`
}
