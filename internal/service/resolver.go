package service

import (
	"context"
	"fmt"
	"strings"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/skucode"
	"sales-reconciler/internal/store"
	"sales-reconciler/internal/util"

	"go.uber.org/zap"
)

// FallbackMode controls how the resolver searches when a decoded product
// family does not match a catalog product.
type FallbackMode string

const (
	// FallbackBroad takes the first product, by name, carrying the decoded color
	FallbackBroad FallbackMode = "broad"
	// FallbackUnique searches every product but refuses ambiguous colors
	FallbackUnique FallbackMode = "unique"
	// FallbackOff fails resolution for unknown product families
	FallbackOff FallbackMode = "off"
)

// ParseFallbackMode maps a config value to a mode, defaulting to unique
func ParseFallbackMode(s string) FallbackMode {
	switch FallbackMode(strings.ToLower(strings.TrimSpace(s))) {
	case FallbackBroad:
		return FallbackBroad
	case FallbackOff:
		return FallbackOff
	default:
		return FallbackUnique
	}
}

// Outcome tags how a reference was resolved
type Outcome string

const (
	OutcomeOfferID        Outcome = "offer_id"
	OutcomeSKU            Outcome = "sku"
	OutcomeDecodedFound   Outcome = "decoded_found"
	OutcomeDecodedCreated Outcome = "decoded_created"
	OutcomeUnresolved     Outcome = "unresolved"
)

// VariantRef is an external reference to a variant
type VariantRef struct {
	OfferID *int64
	SKU     *string
}

// ResolveResult is the outcome of a resolution attempt
type ResolveResult struct {
	Variant *models.Variant  `json:"variant"`
	Decoded *skucode.Decoded `json:"decoded"`
	Outcome Outcome          `json:"outcome"`
}

// Resolved reports whether a variant was found or created
func (r ResolveResult) Resolved() bool {
	return r.Variant != nil
}

// Created reports whether the call inserted the variant
func (r ResolveResult) Created() bool {
	return r.Outcome == OutcomeDecodedCreated
}

type resolverRepository interface {
	store.CatalogRepository
	store.VariantRepository
}

// VariantResolver maps offer ids and SKUs to catalog variants
type VariantResolver struct {
	decoder  *skucode.Decoder
	fallback FallbackMode
	logger   *zap.Logger
}

// NewVariantResolver creates a resolver. A nil decoder uses the default size table.
func NewVariantResolver(decoder *skucode.Decoder, fallback FallbackMode) *VariantResolver {
	if decoder == nil {
		decoder = skucode.NewDecoder(skucode.SizeOrder)
	}
	return &VariantResolver{
		decoder:  decoder,
		fallback: fallback,
		logger:   util.GetLogger(),
	}
}

// Resolve looks the reference up by offer id, then exact SKU, then by decoding
// the SKU against the catalog. The decoded path creates at most one variant.
// Unresolved references are not errors; err is set only for storage failures.
func (r *VariantResolver) Resolve(ctx context.Context, repo resolverRepository, ref VariantRef) (ResolveResult, error) {
	result, err := r.resolve(ctx, repo, ref)
	if err != nil {
		return ResolveResult{Outcome: OutcomeUnresolved}, err
	}
	util.VariantResolutionsTotal.WithLabelValues(string(result.Outcome)).Inc()
	return result, nil
}

func (r *VariantResolver) resolve(ctx context.Context, repo resolverRepository, ref VariantRef) (ResolveResult, error) {
	unresolved := ResolveResult{Outcome: OutcomeUnresolved}

	if ref.OfferID != nil {
		v, err := repo.FindVariantByOfferID(ctx, *ref.OfferID)
		if err != nil {
			return unresolved, fmt.Errorf("failed to look up offer %d: %w", *ref.OfferID, err)
		}
		if v != nil {
			return ResolveResult{Variant: v, Outcome: OutcomeOfferID}, nil
		}
	}

	if ref.SKU == nil || *ref.SKU == "" {
		return unresolved, nil
	}
	sku := *ref.SKU

	v, err := repo.FindVariantBySKU(ctx, sku)
	if err != nil {
		return unresolved, fmt.Errorf("failed to look up sku %q: %w", sku, err)
	}
	if v != nil {
		return ResolveResult{Variant: v, Outcome: OutcomeSKU}, nil
	}

	decoded, ok := r.decoder.Decode(sku)
	if !ok {
		return unresolved, nil
	}
	unresolved.Decoded = decoded
	if decoded.ColorName == "" {
		return unresolved, nil
	}

	size, err := repo.FindSizeByLabel(ctx, decoded.SizeLabel)
	if err != nil {
		return unresolved, err
	}
	if size == nil {
		return unresolved, nil
	}

	color, err := r.findColor(ctx, repo, decoded)
	if err != nil || color == nil {
		return unresolved, err
	}

	variant, created, err := repo.FindOrCreateVariant(ctx, color.ProductID, color.ID, size.ID, ref.SKU, ref.OfferID)
	if err != nil {
		return unresolved, err
	}

	outcome := OutcomeDecodedFound
	if created {
		outcome = OutcomeDecodedCreated
		r.logger.Info("Variant created from decoded sku",
			zap.String("sku", sku),
			zap.Int64("variant_id", variant.ID),
			zap.Int64("product_id", variant.ProductID))
	}
	return ResolveResult{Variant: variant, Decoded: decoded, Outcome: outcome}, nil
}

// findColor picks the product color matching the decoded SKU. The decoded
// product family is preferred; other products are searched per fallback mode.
func (r *VariantResolver) findColor(ctx context.Context, repo resolverRepository, decoded *skucode.Decoded) (*models.Color, error) {
	if decoded.ProductName != "" {
		product, err := repo.FindProductByName(ctx, decoded.ProductName)
		if err != nil {
			return nil, err
		}
		if product != nil {
			return repo.FindColor(ctx, product.ID, decoded.ColorName)
		}
	}

	if r.fallback == FallbackOff {
		return nil, nil
	}

	colors, err := repo.ListColorsByName(ctx, decoded.ColorName)
	if err != nil {
		return nil, err
	}
	if len(colors) == 0 {
		return nil, nil
	}
	if len(colors) > 1 && r.fallback == FallbackUnique {
		r.logger.Warn("Ambiguous color across products, refusing fallback match",
			zap.String("color", decoded.ColorName),
			zap.String("numeric", decoded.Numeric),
			zap.Int("candidates", len(colors)))
		return nil, nil
	}
	return &colors[0], nil
}
