package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

type ShippingAddress struct {
	FullName   string `json:"full_name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
}

// Order models exactly one product bought by one user. User and Product are
// snapshots frozen at checkout; Status and the status-derived fields (IsPaid,
// PaidAt, IsDelivered, DeliveredAt, TrackingNumber) are the only parts that
// change afterwards. Orders are never deleted; cancellation is a status.
type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	ProductID       string          `json:"product_id"`
	User            UserSnapshot    `json:"user"`
	Product         ProductSnapshot `json:"product"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	Status          OrderStatus     `json:"status"`
	IsPaid          bool            `json:"is_paid"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	IsDelivered     bool            `json:"is_delivered"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
	TotalPrice      int64           `json:"total_price"`
	Tax             int64           `json:"tax"`
	ShippingCost    int64           `json:"shipping_cost"`
	Discount        int64           `json:"discount"`
	OrderNotes      string          `json:"order_notes,omitempty"`
	TrackingNumber  string          `json:"tracking_number,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
