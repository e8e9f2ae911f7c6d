package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

// Product represents a product family in the catalog
type Product struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	Slug string `db:"slug" json:"slug"`
}

// Color is scoped to a single product
type Color struct {
	ID        int64  `db:"id" json:"id"`
	ProductID int64  `db:"product_id" json:"product_id"`
	Name      string `db:"name" json:"name"`
}

// Size is a global size label
type Size struct {
	ID    int64  `db:"id" json:"id"`
	Label string `db:"label" json:"label"`
}

// Period is a (year, month label) bucket for sales facts
type Period struct {
	ID    int64  `db:"id" json:"id"`
	Year  int    `db:"year" json:"year"`
	Month *int   `db:"month" json:"month"`
	Label string `db:"label" json:"label"`
}

// Variant is a concrete product x color x size combination
type Variant struct {
	ID        int64   `db:"id" json:"id"`
	ProductID int64   `db:"product_id" json:"product_id"`
	ColorID   int64   `db:"color_id" json:"color_id"`
	SizeID    int64   `db:"size_id" json:"size_id"`
	SKU       *string `db:"sku" json:"sku"`
	OfferID   *int64  `db:"offer_id" json:"offer_id"`
}

// VariantDetail is a variant joined with its color and size labels
type VariantDetail struct {
	ID        int64   `db:"id" json:"id"`
	ProductID int64   `db:"product_id" json:"-"`
	ColorName string  `db:"color_name" json:"color"`
	SizeLabel string  `db:"size_label" json:"size"`
	SKU       *string `db:"sku" json:"sku"`
	OfferID   *int64  `db:"offer_id" json:"offer_id"`
}

// SalesKey identifies one aggregate row of the sales ledger
type SalesKey struct {
	ProductID int64
	ColorID   int64
	SizeID    int64
	PeriodID  int64
}

// SalesFact is the aggregated quantity for a sales key
type SalesFact struct {
	ProductID int64 `db:"product_id" json:"product_id"`
	ColorID   int64 `db:"color_id" json:"color_id"`
	SizeID    int64 `db:"size_id" json:"size_id"`
	PeriodID  int64 `db:"period_id" json:"period_id"`
	Quantity  int64 `db:"quantity" json:"quantity"`
}

// SalesRow is a sales fact joined with its labels, used for reporting
type SalesRow struct {
	ProductID   int64  `db:"product_id"`
	Year        int    `db:"year"`
	MonthLabel  string `db:"month_label"`
	MonthNumber *int   `db:"month_number"`
	ColorName   string `db:"color_name"`
	SizeLabel   string `db:"size_label"`
	Quantity    int64  `db:"quantity"`
}

// InventoryLevel is the latest stock snapshot of a variant
type InventoryLevel struct {
	VariantID int64     `db:"variant_id" json:"variant_id"`
	InStock   int64     `db:"in_stock" json:"in_stock"`
	InReserve int64     `db:"in_reserve" json:"in_reserve"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// InventoryDetail is an inventory level joined with its color and size labels
type InventoryDetail struct {
	ProductID int64     `db:"product_id"`
	ColorName string    `db:"color_name"`
	SizeLabel string    `db:"size_label"`
	InStock   int64     `db:"in_stock"`
	InReserve int64     `db:"in_reserve"`
	UpdatedAt time.Time `db:"updated_at"`
}

// InventoryHistory is an append-only stock snapshot
type InventoryHistory struct {
	ID         int64     `db:"id" json:"id"`
	VariantID  int64     `db:"variant_id" json:"variant_id"`
	InStock    int64     `db:"in_stock" json:"in_stock"`
	InReserve  int64     `db:"in_reserve" json:"in_reserve"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
}

// WebhookEvent is a persisted inbound webhook
type WebhookEvent struct {
	ID          int64          `db:"id" json:"id"`
	EventType   string         `db:"event_type" json:"event_type"`
	Payload     types.JSONText `db:"payload" json:"payload"`
	Status      string         `db:"status" json:"status"`
	ReceivedAt  time.Time      `db:"received_at" json:"received_at"`
	ProcessedAt *time.Time     `db:"processed_at" json:"processed_at,omitempty"`
	Error       *string        `db:"error" json:"error,omitempty"`
}

// Webhook statuses
const (
	WebhookStatusReceived              = "received"
	WebhookStatusPending               = "pending"
	WebhookStatusProcessed             = "processed"
	WebhookStatusProcessedWithWarnings = "processed_with_warnings"
	WebhookStatusFailed                = "failed"
)

// Order holds the latest known status snapshot of an upstream order
type Order struct {
	ID                  int64          `db:"id" json:"id"`
	SourceUUID          *string        `db:"source_uuid" json:"source_uuid"`
	GlobalSourceUUID    *string        `db:"global_source_uuid" json:"global_source_uuid"`
	LastStatusID        *int64         `db:"last_status_id" json:"last_status_id"`
	LastStatusGroupID   *int64         `db:"last_status_group_id" json:"last_status_group_id"`
	LastStatusChangedAt *string        `db:"last_status_changed_at" json:"last_status_changed_at"`
	LastPayload         types.JSONText `db:"last_payload" json:"last_payload"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
}

// OrderEvent is one received order webhook
type OrderEvent struct {
	ID            int64          `db:"id" json:"id"`
	OrderID       int64          `db:"order_id" json:"order_id"`
	StatusID      *int64         `db:"status_id" json:"status_id"`
	StatusGroupID *int64         `db:"status_group_id" json:"status_group_id"`
	StatusLabel   *string        `db:"status_label" json:"status_label"`
	EventType     string         `db:"event_type" json:"event_type"`
	OccurredAt    string         `db:"occurred_at" json:"occurred_at"`
	Payload       types.JSONText `db:"payload" json:"payload"`
	IsNegative    bool           `db:"is_negative" json:"is_negative"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// OrderEventItem is one line item of an order event
type OrderEventItem struct {
	ID        int64               `db:"id" json:"id"`
	EventID   int64               `db:"event_id" json:"event_id"`
	VariantID *int64              `db:"variant_id" json:"variant_id"`
	SKU       *string             `db:"sku" json:"sku"`
	Quantity  int64               `db:"quantity" json:"quantity"`
	Price     decimal.NullDecimal `db:"price" json:"price"`
	Payload   types.JSONText      `db:"payload" json:"payload"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
