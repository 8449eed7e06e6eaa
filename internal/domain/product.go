package domain

import "time"

// Product is a catalog record. Prices are in cents; SalePrice is zero when
// the product is not on sale.
type Product struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ShortDescription string    `json:"short_description"`
	Description      string    `json:"description,omitempty"`
	Stock            int       `json:"stock"`
	Price            int64     `json:"price"`
	SalePrice        int64     `json:"sale_price,omitempty"`
	FeatureImage     string    `json:"feature_image,omitempty"`
	BestSelling      bool      `json:"best_selling"`
	NewArrival       bool      `json:"new_arrival"`
	CreatedAt        time.Time `json:"created_at"`
}

// ProductSnapshot is a frozen copy of the product fields cart lines and
// orders depend on. It is captured when a line is touched or an order is
// placed and never re-joined against the live catalog row.
type ProductSnapshot struct {
	ProductID string    `json:"product_id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	SalePrice int64     `json:"sale_price,omitempty"`
	TakenAt   time.Time `json:"taken_at"`
}

func SnapshotProduct(p Product, at time.Time) ProductSnapshot {
	return ProductSnapshot{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		SalePrice: p.SalePrice,
		TakenAt:   at,
	}
}
