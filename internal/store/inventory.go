package store

import (
	"context"
	"fmt"

	"sales-reconciler/internal/models"
)

// FindInventoryLevel retrieves the current stock snapshot of a variant, nil when none
func (s *Store) FindInventoryLevel(ctx context.Context, variantID int64) (*models.InventoryLevel, error) {
	var level models.InventoryLevel
	found, err := s.findOne(ctx, &level,
		"SELECT variant_id, in_stock, in_reserve, updated_at FROM inventory_levels WHERE variant_id = $1", variantID)
	if err != nil || !found {
		return nil, err
	}
	return &level, nil
}

// ListInventoryLevels retrieves every stock snapshot
func (s *Store) ListInventoryLevels(ctx context.Context) ([]models.InventoryLevel, error) {
	var levels []models.InventoryLevel
	err := s.selectAll(ctx, &levels,
		"SELECT variant_id, in_stock, in_reserve, updated_at FROM inventory_levels ORDER BY variant_id")
	return levels, err
}

// UpsertInventoryLevel writes the stock snapshot of a variant unless the
// stored one is newer than level.UpdatedAt. It reports whether the row was written.
func (s *Store) UpsertInventoryLevel(ctx context.Context, level *models.InventoryLevel) (bool, error) {
	var variantID int64
	written, err := s.findOne(ctx, &variantID, `
		INSERT INTO inventory_levels (variant_id, in_stock, in_reserve, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (variant_id) DO UPDATE SET
			in_stock = EXCLUDED.in_stock,
			in_reserve = EXCLUDED.in_reserve,
			updated_at = EXCLUDED.updated_at
		WHERE inventory_levels.updated_at <= EXCLUDED.updated_at
		RETURNING variant_id`,
		level.VariantID, level.InStock, level.InReserve, level.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to upsert inventory level: %w", err)
	}
	return written, nil
}

// InsertInventoryHistory appends a stock snapshot
func (s *Store) InsertInventoryHistory(ctx context.Context, entry *models.InventoryHistory) error {
	err := s.get(ctx, &entry.ID, `
		INSERT INTO inventory_history (variant_id, in_stock, in_reserve, recorded_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		entry.VariantID, entry.InStock, entry.InReserve, entry.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to insert inventory history: %w", err)
	}
	return nil
}

// ListInventoryDetails retrieves the stock snapshots of a product's variants
func (s *Store) ListInventoryDetails(ctx context.Context, productID int64) ([]models.InventoryDetail, error) {
	var rows []models.InventoryDetail
	err := s.selectAll(ctx, &rows, `
		SELECT pv.product_id, c.name AS color_name, s.label AS size_label,
		       il.in_stock, il.in_reserve, il.updated_at
		FROM inventory_levels il
		JOIN product_variants pv ON pv.id = il.variant_id
		JOIN colors c ON c.id = pv.color_id
		JOIN sizes s ON s.id = pv.size_id
		WHERE pv.product_id = $1`, productID)
	return rows, err
}
