package domain

import "time"

type OrderCreatedEvent struct {
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	ProductID     string    `json:"product_id"`
	ProductName   string    `json:"product_name"`
	CustomerEmail string    `json:"customer_email"`
	TotalPrice    int64     `json:"total_price"`
	Timestamp     time.Time `json:"timestamp"`
}

type OrderStatusChangedEvent struct {
	OrderID        string      `json:"order_id"`
	UserID         string      `json:"user_id"`
	CustomerEmail  string      `json:"customer_email"`
	OldStatus      OrderStatus `json:"old_status"`
	NewStatus      OrderStatus `json:"new_status"`
	TrackingNumber string      `json:"tracking_number,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}
