package store

import (
	"context"
	"fmt"

	"sales-reconciler/internal/models"
)

// AddSalesQuantity adds a positive quantity to a sales fact, creating it when absent.
// Returns the resulting quantity.
func (s *Store) AddSalesQuantity(ctx context.Context, key models.SalesKey, quantity int64) (int64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("sales addition must be positive: %d", quantity)
	}
	var total int64
	err := s.get(ctx, &total, `
		INSERT INTO sales (product_id, color_id, size_id, period_id, quantity)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id, color_id, size_id, period_id)
		DO UPDATE SET quantity = sales.quantity + EXCLUDED.quantity
		RETURNING quantity`,
		key.ProductID, key.ColorID, key.SizeID, key.PeriodID, quantity)
	if err != nil {
		return 0, fmt.Errorf("failed to add sales quantity: %w", err)
	}
	return total, nil
}

// FindSalesQuantity returns the current quantity of a sales fact and whether it exists
func (s *Store) FindSalesQuantity(ctx context.Context, key models.SalesKey) (int64, bool, error) {
	var quantity int64
	found, err := s.findOne(ctx, &quantity, `
		SELECT quantity FROM sales
		WHERE product_id = $1 AND color_id = $2 AND size_id = $3 AND period_id = $4`,
		key.ProductID, key.ColorID, key.SizeID, key.PeriodID)
	return quantity, found, err
}

// SubtractSalesQuantity subtracts quantity from an existing sales fact, never
// going below zero. Returns the resulting quantity.
func (s *Store) SubtractSalesQuantity(ctx context.Context, key models.SalesKey, quantity int64) (int64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("sales subtraction must be positive: %d", quantity)
	}
	var total int64
	found, err := s.findOne(ctx, &total, `
		UPDATE sales
		SET quantity = GREATEST(quantity - $5, 0)
		WHERE product_id = $1 AND color_id = $2 AND size_id = $3 AND period_id = $4
		RETURNING quantity`,
		key.ProductID, key.ColorID, key.SizeID, key.PeriodID, quantity)
	if err != nil {
		return 0, fmt.Errorf("failed to subtract sales quantity: %w", err)
	}
	if !found {
		return 0, nil
	}
	return total, nil
}

// ListSalesRows retrieves the sales facts of a product with their labels
func (s *Store) ListSalesRows(ctx context.Context, productID int64) ([]models.SalesRow, error) {
	var rows []models.SalesRow
	err := s.selectAll(ctx, &rows, `
		SELECT
			sales.product_id AS product_id,
			periods.year AS year,
			periods.label AS month_label,
			periods.month AS month_number,
			colors.name AS color_name,
			sizes.label AS size_label,
			sales.quantity AS quantity
		FROM sales
		JOIN periods ON periods.id = sales.period_id
		JOIN colors ON colors.id = sales.color_id
		JOIN sizes ON sizes.id = sales.size_id
		WHERE sales.product_id = $1
		ORDER BY periods.year, periods.month, periods.label, colors.name, sizes.label`, productID)
	return rows, err
}
