// Package pricing resolves the effective unit price of a product snapshot:
// the sale price when one is set, otherwise the list price.
package pricing

import (
	"errors"

	"github.com/shopflow/shopflow/internal/domain"
)

// ErrInvalidProduct means the snapshot carries neither a sale price nor a
// list price. A persisted product always has a price, so this is checked
// defensively before any cart or order math.
var ErrInvalidProduct = errors.New("product has neither price nor sale price")

// EffectiveUnitPrice returns SalePrice when it is set (> 0), else Price.
func EffectiveUnitPrice(s domain.ProductSnapshot) (int64, error) {
	if s.SalePrice > 0 {
		return s.SalePrice, nil
	}
	if s.Price > 0 {
		return s.Price, nil
	}
	return 0, ErrInvalidProduct
}
