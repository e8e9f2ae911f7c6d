package store

import (
	"context"
	"fmt"

	"sales-reconciler/internal/models"
)

// UpsertOrder stores the latest status snapshot of an order
func (s *Store) UpsertOrder(ctx context.Context, order *models.Order) error {
	if len(order.LastPayload) == 0 {
		order.LastPayload = []byte("{}")
	}
	err := s.exec(ctx, `
		INSERT INTO orders (id, source_uuid, global_source_uuid, last_status_id, last_status_group_id,
		                    last_status_changed_at, last_payload, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			source_uuid = EXCLUDED.source_uuid,
			global_source_uuid = EXCLUDED.global_source_uuid,
			last_status_id = EXCLUDED.last_status_id,
			last_status_group_id = EXCLUDED.last_status_group_id,
			last_status_changed_at = EXCLUDED.last_status_changed_at,
			last_payload = EXCLUDED.last_payload,
			updated_at = EXCLUDED.updated_at`,
		order.ID, order.SourceUUID, order.GlobalSourceUUID, order.LastStatusID, order.LastStatusGroupID,
		order.LastStatusChangedAt, order.LastPayload, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert order: %w", err)
	}
	return nil
}

// GetOrderByID retrieves an order by ID, nil when absent
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	found, err := s.findOne(ctx, &order, `
		SELECT id, source_uuid, global_source_uuid, last_status_id, last_status_group_id,
		       last_status_changed_at, last_payload, updated_at
		FROM orders WHERE id = $1`, id)
	if err != nil || !found {
		return nil, err
	}
	return &order, nil
}

// InsertOrderEvent appends an order event and sets its ID
func (s *Store) InsertOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	if len(event.Payload) == 0 {
		event.Payload = []byte("{}")
	}
	err := s.get(ctx, &event.ID, `
		INSERT INTO order_events (order_id, status_id, status_group_id, status_label, event_type,
		                          occurred_at, payload, is_negative, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		event.OrderID, event.StatusID, event.StatusGroupID, event.StatusLabel, event.EventType,
		event.OccurredAt, event.Payload, event.IsNegative, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order event: %w", err)
	}
	return nil
}

// InsertOrderEventItem appends a line item of an order event
func (s *Store) InsertOrderEventItem(ctx context.Context, item *models.OrderEventItem) error {
	if len(item.Payload) == 0 {
		item.Payload = []byte("{}")
	}
	err := s.get(ctx, &item.ID, `
		INSERT INTO order_event_items (event_id, variant_id, sku, quantity, price, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		item.EventID, item.VariantID, item.SKU, item.Quantity, item.Price, item.Payload)
	if err != nil {
		return fmt.Errorf("failed to insert order event item: %w", err)
	}
	return nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.get(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// ClaimEvent records an event as processed and reports whether this call
// inserted the row. A concurrent claim of the same id blocks on the primary key
// until the other transaction ends, so only one caller ever gets true.
func (s *Store) ClaimEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	var claimed string
	ok, err := s.findOne(ctx, &claimed, `
		INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING event_id`,
		eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("failed to claim event: %w", err)
	}
	return ok, nil
}
