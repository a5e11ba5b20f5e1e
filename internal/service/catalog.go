package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"inventory-service/internal/models"
)

// Catalog is the lookup surface the reservation core consumes from the
// catalog-management collaborator.
type Catalog interface {
	ProductSKUExists(ctx context.Context, productID, skuID int64) (bool, error)
	GetSKUByID(ctx context.Context, skuID int64) (*models.SKU, error)
}

// AttributeSource lists the attribute sets of existing SKUs under one
// product model.
type AttributeSource interface {
	GetSKUAttributeSets(ctx context.Context, spuID int64, modelSlug string) ([]models.AttributeSet, error)
}

// NormalizeAttributes lower-cases keys and values and sorts by key. Two
// attribute sets are equivalent exactly when their normalized forms are
// equal, regardless of input order or casing.
func NormalizeAttributes(set models.AttributeSet) models.AttributeSet {
	normalized := make(models.AttributeSet, len(set))
	for i, attr := range set {
		normalized[i] = models.Attribute{
			Key:   strings.ToLower(attr.Key),
			Value: strings.ToLower(attr.Value),
		}
	}
	sort.Slice(normalized, func(i, j int) bool {
		return normalized[i].Key < normalized[j].Key
	})
	return normalized
}

// AttributesEqual reports whether two attribute sets are equivalent under
// normalization.
func AttributesEqual(a, b models.AttributeSet) bool {
	na, nb := NormalizeAttributes(a), NormalizeAttributes(b)
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if na[i].Key != nb[i].Key || na[i].Value != nb[i].Value {
			return false
		}
	}
	return true
}

// CatalogValidator guards SKU creation against duplicate definitions.
type CatalogValidator struct {
	source AttributeSource
}

// NewCatalogValidator creates a new catalog validator
func NewCatalogValidator(source AttributeSource) *CatalogValidator {
	return &CatalogValidator{source: source}
}

// ValidateNoDuplicateAttributes rejects an incoming attribute set when any
// existing SKU under the same (spuID, modelSlug) model has an equivalent
// set.
func (v *CatalogValidator) ValidateNoDuplicateAttributes(ctx context.Context, spuID int64, modelSlug string, attrs models.AttributeSet) error {
	existing, err := v.source.GetSKUAttributeSets(ctx, spuID, modelSlug)
	if err != nil {
		return fmt.Errorf("failed to load sku attribute sets: %w", err)
	}

	for _, set := range existing {
		if AttributesEqual(set, attrs) {
			return fmt.Errorf("model (%d, %s): %w", spuID, modelSlug, ErrDuplicateSku)
		}
	}
	return nil
}
