package store

import (
	"context"
	"fmt"

	"sales-reconciler/internal/models"
)

// GetProductByID retrieves a product by ID, nil when absent
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	found, err := s.findOne(ctx, &product, "SELECT id, name, slug FROM products WHERE id = $1", id)
	if err != nil || !found {
		return nil, err
	}
	return &product, nil
}

// FindProductByName retrieves a product by exact name
func (s *Store) FindProductByName(ctx context.Context, name string) (*models.Product, error) {
	var product models.Product
	found, err := s.findOne(ctx, &product, "SELECT id, name, slug FROM products WHERE name = $1", name)
	if err != nil || !found {
		return nil, err
	}
	return &product, nil
}

// FindProductBySlug retrieves a product by slug
func (s *Store) FindProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var product models.Product
	found, err := s.findOne(ctx, &product, "SELECT id, name, slug FROM products WHERE slug = $1", slug)
	if err != nil || !found {
		return nil, err
	}
	return &product, nil
}

// ListProducts retrieves all products ordered by name
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.selectAll(ctx, &products, "SELECT id, name, slug FROM products ORDER BY name")
	return products, err
}

// InsertProduct creates a product with an already disambiguated slug
func (s *Store) InsertProduct(ctx context.Context, name, slug string) (*models.Product, error) {
	product := models.Product{Name: name, Slug: slug}
	err := s.get(ctx, &product.ID,
		"INSERT INTO products (name, slug) VALUES ($1, $2) RETURNING id", name, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to insert product: %w", err)
	}
	return &product, nil
}

// FindColor retrieves a color by product and name
func (s *Store) FindColor(ctx context.Context, productID int64, name string) (*models.Color, error) {
	var color models.Color
	found, err := s.findOne(ctx, &color,
		"SELECT id, product_id, name FROM colors WHERE product_id = $1 AND name = $2", productID, name)
	if err != nil || !found {
		return nil, err
	}
	return &color, nil
}

// ListColorsByName retrieves every product's color with the given name,
// ordered by product name
func (s *Store) ListColorsByName(ctx context.Context, name string) ([]models.Color, error) {
	var colors []models.Color
	err := s.selectAll(ctx, &colors, `
		SELECT c.id, c.product_id, c.name
		FROM colors c
		JOIN products p ON p.id = c.product_id
		WHERE c.name = $1
		ORDER BY p.name`, name)
	return colors, err
}

// EnsureColor finds or creates a color for a product
func (s *Store) EnsureColor(ctx context.Context, productID int64, name string) (*models.Color, error) {
	var color models.Color
	err := s.get(ctx, &color, `
		INSERT INTO colors (product_id, name)
		VALUES ($1, $2)
		ON CONFLICT (product_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, product_id, name`, productID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure color: %w", err)
	}
	return &color, nil
}

// FindSizeByLabel retrieves a size by label
func (s *Store) FindSizeByLabel(ctx context.Context, label string) (*models.Size, error) {
	var size models.Size
	found, err := s.findOne(ctx, &size, "SELECT id, label FROM sizes WHERE label = $1", label)
	if err != nil || !found {
		return nil, err
	}
	return &size, nil
}

// EnsureSize finds or creates a size
func (s *Store) EnsureSize(ctx context.Context, label string) (*models.Size, error) {
	var size models.Size
	err := s.get(ctx, &size, `
		INSERT INTO sizes (label)
		VALUES ($1)
		ON CONFLICT (label) DO UPDATE SET label = EXCLUDED.label
		RETURNING id, label`, label)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure size: %w", err)
	}
	return &size, nil
}

// UpsertPeriod finds or creates the period for (year, label). A known month
// number is written, an unknown one never clears an existing value.
func (s *Store) UpsertPeriod(ctx context.Context, year int, month *int, label string) (*models.Period, error) {
	var period models.Period
	err := s.get(ctx, &period, `
		INSERT INTO periods (year, month, label)
		VALUES ($1, $2, $3)
		ON CONFLICT (year, label) DO UPDATE SET month = COALESCE(EXCLUDED.month, periods.month)
		RETURNING id, year, month, label`, year, month, label)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert period: %w", err)
	}
	return &period, nil
}
