package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DomainMetrics holds the business counters exposed on /metrics. A nil
// receiver is a no-op so binaries without a meter provider can skip wiring.
type DomainMetrics struct {
	ordersPlaced     metric.Int64Counter
	orderTransitions metric.Int64Counter
	cartMutations    metric.Int64Counter
}

func NewDomainMetrics() (*DomainMetrics, error) {
	meter := otel.Meter("shopflow")

	ordersPlaced, err := meter.Int64Counter("shopflow.orders.placed",
		metric.WithDescription("Orders created at checkout"))
	if err != nil {
		return nil, err
	}

	orderTransitions, err := meter.Int64Counter("shopflow.orders.transitions",
		metric.WithDescription("Order status transitions applied"))
	if err != nil {
		return nil, err
	}

	cartMutations, err := meter.Int64Counter("shopflow.cart.mutations",
		metric.WithDescription("Cart mutations by operation"))
	if err != nil {
		return nil, err
	}

	return &DomainMetrics{
		ordersPlaced:     ordersPlaced,
		orderTransitions: orderTransitions,
		cartMutations:    cartMutations,
	}, nil
}

func (m *DomainMetrics) RecordOrderPlaced(ctx context.Context) {
	if m == nil {
		return
	}
	m.ordersPlaced.Add(ctx, 1)
}

func (m *DomainMetrics) RecordOrderTransition(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.orderTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *DomainMetrics) RecordCartMutation(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.cartMutations.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}
