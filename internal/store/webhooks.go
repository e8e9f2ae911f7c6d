package store

import (
	"context"
	"fmt"
	"time"

	"sales-reconciler/internal/models"
)

// InsertWebhookEvent persists an inbound webhook and sets its ID
func (s *Store) InsertWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	if len(event.Payload) == 0 {
		event.Payload = []byte("null")
	}
	err := s.get(ctx, &event.ID, `
		INSERT INTO webhook_events (event_type, payload, status, received_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		event.EventType, event.Payload, event.Status, event.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to insert webhook event: %w", err)
	}
	return nil
}

// UpdateWebhookStatus transitions a webhook event to a new status
func (s *Store) UpdateWebhookStatus(ctx context.Context, id int64, status string, processedAt *time.Time, errMsg *string) error {
	err := s.exec(ctx,
		"UPDATE webhook_events SET status = $1, processed_at = $2, error = $3 WHERE id = $4",
		status, processedAt, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to update webhook status: %w", err)
	}
	return nil
}

// GetWebhookEvent retrieves a webhook event by ID, nil when absent
func (s *Store) GetWebhookEvent(ctx context.Context, id int64) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	found, err := s.findOne(ctx, &event, `
		SELECT id, event_type, payload, status, received_at, processed_at, error
		FROM webhook_events WHERE id = $1`, id)
	if err != nil || !found {
		return nil, err
	}
	return &event, nil
}

// ListWebhookEventsByStatus retrieves up to limit events in a status with an
// id greater than afterID, in id order. Pass the last id of a page to get the next one.
func (s *Store) ListWebhookEventsByStatus(ctx context.Context, status string, afterID int64, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := s.selectAll(ctx, &events, `
		SELECT id, event_type, payload, status, received_at, processed_at, error
		FROM webhook_events
		WHERE status = $1 AND id > $2
		ORDER BY id
		LIMIT $3`, status, afterID, limit)
	return events, err
}
