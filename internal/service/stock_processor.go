package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/store"
	"sales-reconciler/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Reason classifies a failed result for the transport layer
type Reason string

const (
	ReasonMalformed Reason = "malformed"
	ReasonStorage   Reason = "storage"
)

// StockStatusAccepted is reported when nothing resolved and the event awaits the sweep
const StockStatusAccepted = "accepted"

// LineRef points at one line of a webhook payload
type LineRef struct {
	Index     int         `json:"index"`
	VariantID int64       `json:"variantId,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// StockResult is the outcome of a stock webhook
type StockResult struct {
	Status     string    `json:"status"`
	EventID    int64     `json:"eventId,omitempty"`
	Variants   []LineRef `json:"variants,omitempty"`
	Unresolved []LineRef `json:"unresolved,omitempty"`
	Invalid    []LineRef `json:"invalid,omitempty"`
	Message    string    `json:"message,omitempty"`
	Reason     Reason    `json:"-"`
}

// StockProcessor reconciles stock snapshots into inventory and inferred sales
type StockProcessor struct {
	repo      store.Repository
	resolver  *VariantResolver
	ledger    *SalesLedger
	publisher EventPublisher
	cache     InventoryCache
	now       func() time.Time
	logger    *zap.Logger
}

// NewStockProcessor creates a stock processor. publisher and cache may be nil.
func NewStockProcessor(
	repo store.Repository,
	resolver *VariantResolver,
	ledger *SalesLedger,
	publisher EventPublisher,
	cache InventoryCache,
) *StockProcessor {
	return &StockProcessor{
		repo:      repo,
		resolver:  resolver,
		ledger:    ledger,
		publisher: publisher,
		cache:     cache,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

type resolvedLine struct {
	StockLine
	variant *models.Variant
}

// Process records a raw stock webhook and reconciles it. A body that is not
// JSON is rejected before anything is recorded.
func (p *StockProcessor) Process(ctx context.Context, eventType string, raw []byte) StockResult {
	if eventType == "" {
		eventType = "stocks"
	}
	ctx, span := util.StartSpan(ctx, "StockProcessor.Process", attribute.String("event_type", eventType))
	defer span.End()
	util.WebhooksReceivedTotal.WithLabelValues(eventType).Inc()

	payload, body, err := decodeBody(raw)
	if err != nil {
		return StockResult{Status: models.WebhookStatusFailed, Message: "Invalid JSON payload", Reason: ReasonMalformed}
	}

	event := &models.WebhookEvent{
		EventType:  eventType,
		Payload:    body,
		Status:     models.WebhookStatusReceived,
		ReceivedAt: p.now().UTC(),
	}
	if err := p.repo.InsertWebhookEvent(ctx, event); err != nil {
		p.logger.Error("Failed to record stock webhook", zap.Error(err))
		return StockResult{Status: models.WebhookStatusFailed, Message: "Failed to persist webhook", Reason: ReasonStorage}
	}

	return p.apply(ctx, event, payload, false)
}

// Reprocess runs a stored pending event through the same state machine once
// the catalog can resolve it. A replayed snapshot never infers sales and never
// overwrites a level stored after the event was received.
func (p *StockProcessor) Reprocess(ctx context.Context, event *models.WebhookEvent) StockResult {
	ctx, span := util.StartSpan(ctx, "StockProcessor.Reprocess", attribute.Int64("event_id", event.ID))
	defer span.End()

	var payload interface{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return p.fail(ctx, event, ReasonMalformed, "Invalid JSON payload", StockResult{})
		}
	}
	return p.apply(ctx, event, payload, true)
}

func (p *StockProcessor) apply(ctx context.Context, event *models.WebhookEvent, payload interface{}, replay bool) StockResult {
	start := time.Now()
	defer func() {
		util.WebhookProcessingLatency.WithLabelValues(event.EventType).Observe(time.Since(start).Seconds())
	}()

	lines := NormalizeStockPayload(payload)
	if len(lines) == 0 {
		return p.fail(ctx, event, ReasonMalformed, "Empty stock payload", StockResult{})
	}

	var invalid []LineRef
	for _, line := range lines {
		if !line.Valid() {
			invalid = append(invalid, LineRef{Index: line.Index, Payload: line.Raw})
		}
	}
	if len(invalid) > 0 {
		return p.fail(ctx, event, ReasonMalformed, "Invalid stock numbers", StockResult{Invalid: invalid})
	}

	now := p.now().UTC()
	asOf := now
	if replay {
		asOf = event.ReceivedAt.UTC()
	}
	timestamp := now.Format(time.RFC3339Nano)

	var (
		resolved   []resolvedLine
		unresolved []LineRef
		levels     []models.StockLevelData
		deltas     []models.SalesDeltaData
		status     string
	)
	err := p.repo.WithTx(ctx, func(tx store.Repository) error {
		resolved, unresolved, levels, deltas = nil, nil, nil, nil

		for _, line := range lines {
			res, err := p.resolver.Resolve(ctx, tx, line.Ref())
			if err != nil {
				return err
			}
			if !res.Resolved() {
				unresolved = append(unresolved, LineRef{Index: line.Index, Payload: line.Raw})
				continue
			}
			resolved = append(resolved, resolvedLine{StockLine: line, variant: res.Variant})
		}

		if len(resolved) == 0 {
			status = models.WebhookStatusPending
			msg := "Variant not resolved"
			return tx.UpdateWebhookStatus(ctx, event.ID, status, nil, &msg)
		}
		status = models.WebhookStatusProcessed
		if len(unresolved) > 0 {
			status = models.WebhookStatusProcessedWithWarnings
		}

		for _, line := range resolved {
			stock := roundHalfUp(line.InStock)
			reserve := roundHalfUp(line.InReserve)

			var delta int64
			if !replay {
				previous, err := tx.FindInventoryLevel(ctx, line.variant.ID)
				if err != nil {
					return err
				}
				if previous != nil {
					delta = previous.InStock - stock
				}
			}

			if err := tx.BackfillVariantIdentifiers(ctx, line.variant.ID, line.SKU, line.OfferID); err != nil {
				return err
			}
			written, err := tx.UpsertInventoryLevel(ctx, &models.InventoryLevel{
				VariantID: line.variant.ID,
				InStock:   stock,
				InReserve: reserve,
				UpdatedAt: asOf,
			})
			if err != nil {
				return err
			}
			if err := tx.InsertInventoryHistory(ctx, &models.InventoryHistory{
				VariantID:  line.variant.ID,
				InStock:    stock,
				InReserve:  reserve,
				RecordedAt: asOf,
			}); err != nil {
				return err
			}
			if !written {
				p.logger.Info("Stored inventory level is newer than the snapshot, keeping it",
					zap.Int64("event_id", event.ID),
					zap.Int64("variant_id", line.variant.ID))
				continue
			}

			// only a decrease implies a sale; restocks leave the ledger alone
			if delta > 0 {
				applied, err := p.ledger.Apply(ctx, tx, line.variant, float64(delta), timestamp)
				if err != nil {
					return err
				}
				if applied != nil {
					deltas = append(deltas, *applied)
				}
			}
			levels = append(levels, models.StockLevelData{VariantID: line.variant.ID, InStock: stock, InReserve: reserve})
		}
		return tx.UpdateWebhookStatus(ctx, event.ID, status, &now, nil)
	})
	if err != nil {
		return p.fail(ctx, event, ReasonStorage, err.Error(), StockResult{})
	}

	if status == models.WebhookStatusPending {
		util.WebhooksProcessedTotal.WithLabelValues(event.EventType, models.WebhookStatusPending).Inc()
		p.logger.Info("Stock webhook pending, no variant resolved",
			zap.Int64("event_id", event.ID),
			zap.Int("lines", len(lines)))
		return StockResult{
			Status:     StockStatusAccepted,
			EventID:    event.ID,
			Unresolved: unresolved,
			Message:    "Variant not resolved yet",
		}
	}

	util.WebhooksProcessedTotal.WithLabelValues(event.EventType, status).Inc()

	result := StockResult{Status: status, EventID: event.ID}
	for _, line := range resolved {
		result.Variants = append(result.Variants, LineRef{Index: line.Index, VariantID: line.variant.ID})
	}
	if len(unresolved) > 0 {
		result.Unresolved = unresolved
		result.Message = "Processed with unresolved variants"
		p.logger.Warn("Stock webhook processed with unresolved variants",
			zap.Int64("event_id", event.ID),
			zap.Int("unresolved", len(unresolved)))
	}

	p.afterCommit(ctx, event, status, levels, deltas)
	return result
}

// afterCommit mirrors levels to the cache and publishes the event. Both are
// best-effort.
func (p *StockProcessor) afterCommit(ctx context.Context, event *models.WebhookEvent, status string, levels []models.StockLevelData, deltas []models.SalesDeltaData) {
	if p.cache != nil {
		for _, level := range levels {
			if err := p.cache.SetInventoryLevel(ctx, level.VariantID, level.InStock, level.InReserve); err != nil {
				p.logger.Warn("Failed to cache inventory level", zap.Int64("variant_id", level.VariantID), zap.Error(err))
			}
		}
	}

	if p.publisher == nil {
		return
	}
	reconciled := &models.StockReconciledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeStockReconciled,
			Timestamp: p.now().UTC(),
		},
		WebhookEventID: event.ID,
		Status:         status,
		Levels:         levels,
		SalesDeltas:    deltas,
	}
	if err := p.publisher.PublishStockReconciled(ctx, reconciled); err != nil {
		p.logger.Error("Failed to publish StockReconciled event", zap.Int64("event_id", event.ID), zap.Error(err))
	}
}

func (p *StockProcessor) fail(ctx context.Context, event *models.WebhookEvent, reason Reason, msg string, result StockResult) StockResult {
	util.SpanError(ctx, errors.New(msg))
	if err := p.repo.UpdateWebhookStatus(ctx, event.ID, models.WebhookStatusFailed, nil, &msg); err != nil {
		p.logger.Error("Failed to mark webhook failed", zap.Int64("event_id", event.ID), zap.Error(err))
	}
	util.WebhooksProcessedTotal.WithLabelValues(event.EventType, models.WebhookStatusFailed).Inc()
	p.logger.Warn("Stock webhook failed",
		zap.Int64("event_id", event.ID),
		zap.String("reason", string(reason)),
		zap.String("error", msg))

	result.Status = models.WebhookStatusFailed
	result.EventID = event.ID
	result.Message = msg
	result.Reason = reason
	return result
}

// decodeBody parses a webhook body. An empty body is treated as JSON null.
func decodeBody(raw []byte) (interface{}, []byte, error) {
	if len(raw) == 0 {
		return nil, []byte("null"), nil
	}
	var payload interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, err
	}
	return payload, raw, nil
}
