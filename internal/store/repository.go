package store

import (
	"context"
	"time"

	"sales-reconciler/internal/models"
)

// Repository is the persistence surface used by the reconciliation services.
// *Store implements it both on the pool and inside a transaction.
type Repository interface {
	CatalogRepository
	VariantRepository
	InventoryRepository
	SalesRepository
	WebhookRepository
	OrderRepository

	WithTx(ctx context.Context, fn func(Repository) error) error
}

type CatalogRepository interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	FindProductByName(ctx context.Context, name string) (*models.Product, error)
	FindProductBySlug(ctx context.Context, slug string) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	InsertProduct(ctx context.Context, name, slug string) (*models.Product, error)
	FindColor(ctx context.Context, productID int64, name string) (*models.Color, error)
	ListColorsByName(ctx context.Context, name string) ([]models.Color, error)
	EnsureColor(ctx context.Context, productID int64, name string) (*models.Color, error)
	FindSizeByLabel(ctx context.Context, label string) (*models.Size, error)
	EnsureSize(ctx context.Context, label string) (*models.Size, error)
	UpsertPeriod(ctx context.Context, year int, month *int, label string) (*models.Period, error)
}

type VariantRepository interface {
	GetVariantByID(ctx context.Context, id int64) (*models.Variant, error)
	FindVariantByOfferID(ctx context.Context, offerID int64) (*models.Variant, error)
	FindVariantBySKU(ctx context.Context, sku string) (*models.Variant, error)
	FindOrCreateVariant(ctx context.Context, productID, colorID, sizeID int64, sku *string, offerID *int64) (*models.Variant, bool, error)
	BackfillVariantIdentifiers(ctx context.Context, variantID int64, sku *string, offerID *int64) error
	ListVariantDetails(ctx context.Context, productID int64) ([]models.VariantDetail, error)
}

type InventoryRepository interface {
	FindInventoryLevel(ctx context.Context, variantID int64) (*models.InventoryLevel, error)
	ListInventoryLevels(ctx context.Context) ([]models.InventoryLevel, error)
	UpsertInventoryLevel(ctx context.Context, level *models.InventoryLevel) (bool, error)
	InsertInventoryHistory(ctx context.Context, entry *models.InventoryHistory) error
	ListInventoryDetails(ctx context.Context, productID int64) ([]models.InventoryDetail, error)
}

type SalesRepository interface {
	AddSalesQuantity(ctx context.Context, key models.SalesKey, quantity int64) (int64, error)
	FindSalesQuantity(ctx context.Context, key models.SalesKey) (int64, bool, error)
	SubtractSalesQuantity(ctx context.Context, key models.SalesKey, quantity int64) (int64, error)
	ListSalesRows(ctx context.Context, productID int64) ([]models.SalesRow, error)
}

type WebhookRepository interface {
	InsertWebhookEvent(ctx context.Context, event *models.WebhookEvent) error
	UpdateWebhookStatus(ctx context.Context, id int64, status string, processedAt *time.Time, errMsg *string) error
	GetWebhookEvent(ctx context.Context, id int64) (*models.WebhookEvent, error)
	ListWebhookEventsByStatus(ctx context.Context, status string, afterID int64, limit int) ([]models.WebhookEvent, error)
}

type OrderRepository interface {
	UpsertOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	InsertOrderEvent(ctx context.Context, event *models.OrderEvent) error
	InsertOrderEventItem(ctx context.Context, item *models.OrderEventItem) error
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	ClaimEvent(ctx context.Context, eventID, eventType string) (bool, error)
}

var _ Repository = (*Store)(nil)
