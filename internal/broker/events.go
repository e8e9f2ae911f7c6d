package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing reconciliation events. Catalog changes go
// to their own topic.
type EventPublisher struct {
	producer *Producer
	catalog  *Producer
}

// NewEventPublisher creates a new event publisher. A nil catalog producer
// sends catalog events through producer.
func NewEventPublisher(producer, catalog *Producer) *EventPublisher {
	if catalog == nil {
		catalog = producer
	}
	return &EventPublisher{producer: producer, catalog: catalog}
}

// PublishStockReconciled publishes StockReconciled event
func (ep *EventPublisher) PublishStockReconciled(ctx context.Context, event *models.StockReconciledEvent) error {
	key := fmt.Sprintf("webhook-%d", event.WebhookEventID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishOrderReconciled publishes OrderReconciled event
func (ep *EventPublisher) PublishOrderReconciled(ctx context.Context, event *models.OrderReconciledEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishCatalogChanged publishes CatalogChanged event
func (ep *EventPublisher) PublishCatalogChanged(ctx context.Context, event *models.CatalogChangedEvent) error {
	key := fmt.Sprintf("product-%d", event.ProductID)
	return ep.catalog.PublishEvent(ctx, key, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onCatalogChanged func(context.Context, *models.CatalogChangedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnCatalogChanged registers a handler for CatalogChanged events
func (eh *EventHandler) OnCatalogChanged(handler func(context.Context, *models.CatalogChangedEvent) error) {
	eh.onCatalogChanged = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	util.GetLogger().Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeCatalogChanged:
		if eh.onCatalogChanged != nil {
			var event models.CatalogChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal CatalogChanged event: %w", err)
			}
			return eh.onCatalogChanged(ctx, &event)
		}

	default:
		util.GetLogger().Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
