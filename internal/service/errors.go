package service

import (
	"errors"
	"fmt"
	"strings"

	"inventory-service/internal/models"
)

// ErrSKUNotSellable is returned when a reservation targets a SKU that does
// not exist or is not currently selling. Permanent: the caller should not
// retry with the same SKU.
var ErrSKUNotSellable = errors.New("sku does not exist or is not sellable")

// ErrDuplicateSku is returned when a SKU's attribute set is equivalent to
// an existing SKU under the same product model.
var ErrDuplicateSku = errors.New("duplicate sku attributes")

// InvalidProductError aborts a cart merge whose delta references products
// that do not resolve in the catalog. Every failing line is reported
// together; no part of the merge is applied.
type InvalidProductError struct {
	Lines []models.CartLine
}

func (e *InvalidProductError) Error() string {
	parts := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		parts = append(parts, fmt.Sprintf("(product=%d, sku=%d)", l.ProductID, l.SKUID))
	}
	return fmt.Sprintf("cart merge rejected, invalid lines: %s", strings.Join(parts, ", "))
}
