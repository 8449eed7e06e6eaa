package orders

import (
	"context"
	"fmt"

	"github.com/shopflow/shopflow/internal/domain"
	"github.com/shopflow/shopflow/internal/messaging"
)

// KafkaPublisher routes each order event to its topic producer.
type KafkaPublisher struct {
	created       *messaging.Producer
	statusChanged *messaging.Producer
}

func NewKafkaPublisher(created, statusChanged *messaging.Producer) *KafkaPublisher {
	return &KafkaPublisher{created: created, statusChanged: statusChanged}
}

func (p *KafkaPublisher) Publish(ctx context.Context, key string, event any) error {
	switch event.(type) {
	case domain.OrderCreatedEvent:
		return p.created.Publish(ctx, key, event)
	case domain.OrderStatusChangedEvent:
		return p.statusChanged.Publish(ctx, key, event)
	default:
		return fmt.Errorf("no topic registered for event type %T", event)
	}
}

func (p *KafkaPublisher) Close() error {
	if err := p.created.Close(); err != nil {
		return err
	}
	return p.statusChanged.Close()
}
