// Package messaging wraps kafka-go with trace-propagating publish and
// consume primitives. Events are JSON, keyed by order id so one order's
// events stay on one partition.
package messaging

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status.changed"
)
