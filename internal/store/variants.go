package store

import (
	"context"
	"fmt"

	"sales-reconciler/internal/models"
)

const variantColumns = "id, product_id, color_id, size_id, sku, offer_id"

// GetVariantByID retrieves a variant by ID, nil when absent
func (s *Store) GetVariantByID(ctx context.Context, id int64) (*models.Variant, error) {
	var v models.Variant
	found, err := s.findOne(ctx, &v,
		"SELECT "+variantColumns+" FROM product_variants WHERE id = $1", id)
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}

// FindVariantByOfferID retrieves a variant by its upstream offer id
func (s *Store) FindVariantByOfferID(ctx context.Context, offerID int64) (*models.Variant, error) {
	var v models.Variant
	found, err := s.findOne(ctx, &v,
		"SELECT "+variantColumns+" FROM product_variants WHERE offer_id = $1 ORDER BY id LIMIT 1", offerID)
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}

// FindVariantBySKU retrieves a variant by exact SKU
func (s *Store) FindVariantBySKU(ctx context.Context, sku string) (*models.Variant, error) {
	var v models.Variant
	found, err := s.findOne(ctx, &v,
		"SELECT "+variantColumns+" FROM product_variants WHERE sku = $1 ORDER BY id LIMIT 1", sku)
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}

// FindOrCreateVariant atomically returns the variant for (product, color, size),
// creating it when absent. Existing identifiers are kept; missing ones are
// filled from sku and offerID. The bool reports whether the row was created.
func (s *Store) FindOrCreateVariant(ctx context.Context, productID, colorID, sizeID int64, sku *string, offerID *int64) (*models.Variant, bool, error) {
	var row struct {
		models.Variant
		Created bool `db:"created"`
	}
	err := s.get(ctx, &row, `
		INSERT INTO product_variants (product_id, color_id, size_id, sku, offer_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id, color_id, size_id) DO UPDATE SET
			sku = COALESCE(product_variants.sku, EXCLUDED.sku),
			offer_id = COALESCE(product_variants.offer_id, EXCLUDED.offer_id)
		RETURNING `+variantColumns+`, (xmax = 0) AS created`,
		productID, colorID, sizeID, sku, offerID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert variant: %w", err)
	}
	v := row.Variant
	return &v, row.Created, nil
}

// BackfillVariantIdentifiers sets sku and offer_id only where they are still empty
func (s *Store) BackfillVariantIdentifiers(ctx context.Context, variantID int64, sku *string, offerID *int64) error {
	if sku == nil && offerID == nil {
		return nil
	}
	err := s.exec(ctx, `
		UPDATE product_variants
		SET sku = COALESCE(sku, $1), offer_id = COALESCE(offer_id, $2)
		WHERE id = $3`, sku, offerID, variantID)
	if err != nil {
		return fmt.Errorf("failed to backfill variant identifiers: %w", err)
	}
	return nil
}

// ListVariantDetails retrieves the variants of a product with their labels
func (s *Store) ListVariantDetails(ctx context.Context, productID int64) ([]models.VariantDetail, error) {
	var variants []models.VariantDetail
	err := s.selectAll(ctx, &variants, `
		SELECT pv.id, pv.product_id, c.name AS color_name, s.label AS size_label, pv.sku, pv.offer_id
		FROM product_variants pv
		JOIN colors c ON c.id = pv.color_id
		JOIN sizes s ON s.id = pv.size_id
		WHERE pv.product_id = $1
		ORDER BY c.name, s.label`, productID)
	return variants, err
}
