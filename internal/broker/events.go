package broker

import (
	"context"
	"fmt"

	"material-service/internal/models"
)

// EventPublisher publishes material lifecycle events. All events of one
// work order share a key so consumers see them in order.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func woKey(woID string) string {
	return fmt.Sprintf("wo-%s", woID)
}

// PublishSnapshotBuilt publishes a SNAPSHOT_BUILT event
func (p *EventPublisher) PublishSnapshotBuilt(ctx context.Context, event *models.SnapshotBuiltEvent) error {
	return p.producer.PublishEvent(ctx, woKey(event.WOID), event)
}

// PublishMaterialsReserved publishes a MATERIALS_RESERVED event
func (p *EventPublisher) PublishMaterialsReserved(ctx context.Context, event *models.MaterialsReservedEvent) error {
	return p.producer.PublishEvent(ctx, woKey(event.WOID), event)
}

// PublishReservationReleased publishes a RESERVATION_RELEASED event
func (p *EventPublisher) PublishReservationReleased(ctx context.Context, event *models.ReservationReleasedEvent) error {
	return p.producer.PublishEvent(ctx, woKey(event.WOID), event)
}

// PublishMaterialConsumed publishes a MATERIAL_CONSUMED event
func (p *EventPublisher) PublishMaterialConsumed(ctx context.Context, event *models.MaterialConsumedEvent) error {
	return p.producer.PublishEvent(ctx, woKey(event.WOID), event)
}

// PublishConsumptionReversed publishes a CONSUMPTION_REVERSED event
func (p *EventPublisher) PublishConsumptionReversed(ctx context.Context, event *models.ConsumptionReversedEvent) error {
	return p.producer.PublishEvent(ctx, woKey(event.WOID), event)
}

// PublishOverConsumptionRequested publishes an OVER_CONSUMPTION_REQUESTED event
func (p *EventPublisher) PublishOverConsumptionRequested(ctx context.Context, event *models.OverConsumptionRequestedEvent) error {
	return p.producer.PublishEvent(ctx, woKey(event.WOID), event)
}

// PublishOverConsumptionDecided publishes an OVER_CONSUMPTION_DECIDED event
func (p *EventPublisher) PublishOverConsumptionDecided(ctx context.Context, event *models.OverConsumptionDecidedEvent) error {
	return p.producer.PublishEvent(ctx, woKey(event.WOID), event)
}
