package service

import (
	"context"
	"time"

	"sales-reconciler/internal/keycrm"
	"sales-reconciler/internal/models"
)

// EventPublisher publishes reconciliation events. Implemented by broker.EventPublisher.
type EventPublisher interface {
	PublishStockReconciled(ctx context.Context, event *models.StockReconciledEvent) error
	PublishOrderReconciled(ctx context.Context, event *models.OrderReconciledEvent) error
	PublishCatalogChanged(ctx context.Context, event *models.CatalogChangedEvent) error
}

// InventoryCache mirrors inventory levels outside the database
type InventoryCache interface {
	SetInventoryLevel(ctx context.Context, variantID, inStock, inReserve int64) error
}

// DeliveryGuard caches digests of committed deliveries. It is a hint in front
// of processed_events, never the source of truth.
type DeliveryGuard interface {
	SeenDelivery(ctx context.Context, digest string) (bool, error)
	RememberDelivery(ctx context.Context, digest string, ttl time.Duration) error
}

// OrderFetcher loads full order details from the upstream platform
type OrderFetcher interface {
	FetchOrder(ctx context.Context, orderID int64) (*keycrm.OrderDetails, error)
}
