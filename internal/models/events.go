package models

import "time"

// Event types
const (
	EventTypeStockReconciled = "STOCK_RECONCILED"
	EventTypeOrderReconciled = "ORDER_RECONCILED"
	EventTypeCatalogChanged  = "CATALOG_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// StockReconciledEvent published after a stock webhook is committed
type StockReconciledEvent struct {
	BaseEvent
	WebhookEventID int64            `json:"webhook_event_id"`
	Status         string           `json:"status"`
	Levels         []StockLevelData `json:"levels"`
	SalesDeltas    []SalesDeltaData `json:"sales_deltas,omitempty"`
}

// OrderReconciledEvent published after an order webhook is committed
type OrderReconciledEvent struct {
	BaseEvent
	WebhookEventID int64            `json:"webhook_event_id"`
	OrderID        int64            `json:"order_id"`
	StatusID       *int64           `json:"status_id"`
	IsNegative     bool             `json:"is_negative"`
	ItemsRecorded  int              `json:"items_recorded"`
	SalesDeltas    []SalesDeltaData `json:"sales_deltas,omitempty"`
}

// CatalogChangedEvent published when variants or catalog entries are added
type CatalogChangedEvent struct {
	BaseEvent
	ProductID int64  `json:"product_id"`
	VariantID *int64 `json:"variant_id,omitempty"`
	Reason    string `json:"reason"`
}

// StockLevelData represents a stock snapshot in events
type StockLevelData struct {
	VariantID int64 `json:"variant_id"`
	InStock   int64 `json:"in_stock"`
	InReserve int64 `json:"in_reserve"`
}

// SalesDeltaData represents an applied ledger adjustment in events
type SalesDeltaData struct {
	VariantID int64  `json:"variant_id"`
	Period    string `json:"period"`
	Delta     int64  `json:"delta"`
	Quantity  int64  `json:"quantity"`
}
