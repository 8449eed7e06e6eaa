package domain

import "time"

// CartLine is one product's entry in a cart. Snapshot carries the product
// fields as they were when the line was last touched, so later catalog edits
// do not change the line's contribution to the totals.
type CartLine struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Snapshot  ProductSnapshot `json:"snapshot"`
}

// Cart is the single per-user aggregate of in-progress purchase intentions.
// TotalItems and TotalPrice are derived from Items and never set directly;
// an empty cart is deleted rather than persisted.
type Cart struct {
	UserID     string     `json:"user_id"`
	Items      []CartLine `json:"items"`
	TotalItems int        `json:"total_items"`
	TotalPrice int64      `json:"total_price"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// FindLine returns the index of the line for productID, or -1.
func (c *Cart) FindLine(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}
