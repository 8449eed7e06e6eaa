package orders

import "github.com/shopflow/shopflow/internal/domain"

// transitions is the order lifecycle graph. delivered and cancelled are
// terminal; a status is never re-entered, so same-status writes are illegal
// too.
var transitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:   {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:   {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusDelivered: nil,
	domain.OrderStatusCancelled: nil,
}

func CanTransition(from, to domain.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
