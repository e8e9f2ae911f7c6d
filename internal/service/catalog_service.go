package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/store"
	"sales-reconciler/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrColorNotFound   = errors.New("color not found for product")
	ErrSizeNotFound    = errors.New("size not found")
	ErrInvalidRequest  = errors.New("invalid request")
)

const maxSlugLength = 120

var slugSeparators = regexp.MustCompile(`[^a-z0-9\x{0400}-\x{04FF}]+`)

// Slugify lowercases the name, strips combining marks and collapses
// everything except latin letters, digits and Cyrillic into single dashes.
func Slugify(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, strings.ToLower(name))
	if err != nil {
		folded = strings.ToLower(name)
	}

	slug := strings.Trim(slugSeparators.ReplaceAllString(folded, "-"), "-")
	if r := []rune(slug); len(r) > maxSlugLength {
		slug = string(r[:maxSlugLength])
	}
	if slug == "" {
		return "item"
	}
	return slug
}

// CatalogService maintains products, colors, sizes, periods and variants
type CatalogService struct {
	repo      store.Repository
	publisher EventPublisher
	logger    *zap.Logger
}

// NewCatalogService creates a catalog service. publisher may be nil.
func NewCatalogService(repo store.Repository, publisher EventPublisher) *CatalogService {
	return &CatalogService{
		repo:      repo,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// EnsureProduct returns the product with this name, creating it with a unique
// slug. Colliding slugs get a -2, -3, ... suffix.
func (s *CatalogService) EnsureProduct(ctx context.Context, repo store.CatalogRepository, name string) (*models.Product, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, fmt.Errorf("%w: product name is required", ErrInvalidRequest)
	}

	existing, err := repo.FindProductByName(ctx, name)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	base := Slugify(name)
	slug := base
	for counter := 2; ; counter++ {
		other, err := repo.FindProductBySlug(ctx, slug)
		if err != nil {
			return nil, false, err
		}
		if other == nil {
			product, err := repo.InsertProduct(ctx, name, slug)
			if err != nil {
				return nil, false, err
			}
			return product, true, nil
		}
		if other.Name == name {
			return other, false, nil
		}
		slug = fmt.Sprintf("%s-%d", base, counter)
	}
}

// EnsurePeriod finds or creates the period for a year and month label
func (s *CatalogService) EnsurePeriod(ctx context.Context, year int, label string) (*models.Period, error) {
	label = NormalizeMonthLabel(label)
	if label == "" {
		return nil, fmt.Errorf("%w: month label is required", ErrInvalidRequest)
	}
	return s.repo.UpsertPeriod(ctx, year, MonthNumber(label), label)
}

// CatalogRequest lists the catalog entries to make sure exist
type CatalogRequest struct {
	Product string   `json:"product"`
	Colors  []string `json:"colors"`
	Sizes   []string `json:"sizes"`
}

// CatalogResult is the outcome of EnsureCatalog
type CatalogResult struct {
	Product models.Product `json:"product"`
	Created bool           `json:"created"`
	Colors  []models.Color `json:"colors"`
	Sizes   []models.Size  `json:"sizes"`
}

// EnsureCatalog creates a product with its colors and sizes in one transaction
func (s *CatalogService) EnsureCatalog(ctx context.Context, req CatalogRequest) (*CatalogResult, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.EnsureCatalog")
	defer span.End()

	result := &CatalogResult{}
	err := s.repo.WithTx(ctx, func(tx store.Repository) error {
		product, created, err := s.EnsureProduct(ctx, tx, req.Product)
		if err != nil {
			return err
		}
		result.Product = *product
		result.Created = created
		result.Colors = result.Colors[:0]
		result.Sizes = result.Sizes[:0]

		for _, name := range req.Colors {
			if name = strings.TrimSpace(name); name == "" {
				continue
			}
			color, err := tx.EnsureColor(ctx, product.ID, name)
			if err != nil {
				return err
			}
			result.Colors = append(result.Colors, *color)
		}
		for _, label := range req.Sizes {
			if label = strings.TrimSpace(label); label == "" {
				continue
			}
			size, err := tx.EnsureSize(ctx, label)
			if err != nil {
				return err
			}
			result.Sizes = append(result.Sizes, *size)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Catalog ensured",
		zap.Int64("product_id", result.Product.ID),
		zap.Bool("created", result.Created),
		zap.Int("colors", len(result.Colors)),
		zap.Int("sizes", len(result.Sizes)))
	s.publishChanged(ctx, result.Product.ID, nil, "catalog_ensured")
	return result, nil
}

// UpsertVariantRequest binds identifiers to a product x color x size
type UpsertVariantRequest struct {
	ProductID int64   `json:"productId"`
	ColorName string  `json:"colorName"`
	SizeLabel string  `json:"sizeLabel"`
	SKU       *string `json:"sku"`
	OfferID   *int64  `json:"offerId"`
}

// UpsertVariant finds or creates a variant for existing catalog entries.
// Identifiers already set on the variant are kept.
func (s *CatalogService) UpsertVariant(ctx context.Context, req UpsertVariantRequest) (*models.Variant, bool, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpsertVariant")
	defer span.End()

	colorName := strings.TrimSpace(req.ColorName)
	sizeLabel := strings.TrimSpace(req.SizeLabel)
	if req.ProductID <= 0 || colorName == "" || sizeLabel == "" {
		return nil, false, fmt.Errorf("%w: valid productId, colorName, sizeLabel are required", ErrInvalidRequest)
	}

	product, err := s.repo.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return nil, false, err
	}
	if product == nil {
		return nil, false, ErrProductNotFound
	}
	color, err := s.repo.FindColor(ctx, product.ID, colorName)
	if err != nil {
		return nil, false, err
	}
	if color == nil {
		return nil, false, ErrColorNotFound
	}
	size, err := s.repo.FindSizeByLabel(ctx, sizeLabel)
	if err != nil {
		return nil, false, err
	}
	if size == nil {
		return nil, false, ErrSizeNotFound
	}

	var sku *string
	if req.SKU != nil {
		sku = nonEmpty(*req.SKU)
	}
	variant, created, err := s.repo.FindOrCreateVariant(ctx, product.ID, color.ID, size.ID, sku, req.OfferID)
	if err != nil {
		return nil, false, err
	}

	s.logger.Info("Variant upserted",
		zap.Int64("variant_id", variant.ID),
		zap.Int64("product_id", product.ID),
		zap.Bool("created", created))
	s.publishChanged(ctx, product.ID, &variant.ID, "variant_upserted")
	return variant, created, nil
}

func (s *CatalogService) publishChanged(ctx context.Context, productID int64, variantID *int64, reason string) {
	if s.publisher == nil {
		return
	}
	event := &models.CatalogChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeCatalogChanged,
			Timestamp: time.Now().UTC(),
		},
		ProductID: productID,
		VariantID: variantID,
		Reason:    reason,
	}
	if err := s.publisher.PublishCatalogChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish CatalogChanged event", zap.Int64("product_id", productID), zap.Error(err))
	}
}
