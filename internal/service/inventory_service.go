package service

import (
	"context"
	"fmt"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/store"
	"sales-reconciler/internal/util"

	"go.uber.org/zap"
)

// InventoryMirror is an InventoryCache that can also be read back
type InventoryMirror interface {
	InventoryCache
	GetInventory(ctx context.Context, variantID int64) (inStock, inReserve int64, err error)
}

// InventoryService serves variant stock levels from the cache with a
// database fallback
type InventoryService struct {
	repo   store.Repository
	cache  InventoryMirror
	logger *zap.Logger
}

// NewInventoryService creates a new inventory service. cache may be nil.
func NewInventoryService(repo store.Repository, cache InventoryMirror) *InventoryService {
	return &InventoryService{
		repo:   repo,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// GetLevel returns the latest stock snapshot of a variant, nil when none
func (s *InventoryService) GetLevel(ctx context.Context, variantID int64) (*models.InventoryLevel, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.GetLevel")
	defer span.End()

	if s.cache != nil {
		inStock, inReserve, err := s.cache.GetInventory(ctx, variantID)
		if err == nil {
			return &models.InventoryLevel{VariantID: variantID, InStock: inStock, InReserve: inReserve}, nil
		}
		s.logger.Debug("Inventory cache miss, falling back to DB",
			zap.Int64("variant_id", variantID),
			zap.Error(err))
	}

	level, err := s.repo.FindInventoryLevel(ctx, variantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory level: %w", err)
	}
	if level != nil && s.cache != nil {
		if err := s.cache.SetInventoryLevel(ctx, level.VariantID, level.InStock, level.InReserve); err != nil {
			s.logger.Warn("Failed to refill inventory cache", zap.Int64("variant_id", variantID), zap.Error(err))
		}
	}
	return level, nil
}

// SyncToCache copies every inventory level from the database into the cache
func (s *InventoryService) SyncToCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	s.logger.Info("Starting inventory sync to Redis")

	levels, err := s.repo.ListInventoryLevels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list inventory levels: %w", err)
	}

	failed := 0
	for _, level := range levels {
		if err := s.cache.SetInventoryLevel(ctx, level.VariantID, level.InStock, level.InReserve); err != nil {
			failed++
			s.logger.Error("Failed to init Redis inventory",
				zap.Int64("variant_id", level.VariantID),
				zap.Error(err))
		}
	}

	s.logger.Info("Inventory sync completed", zap.Int("count", len(levels)), zap.Int("failed", failed))
	return nil
}
