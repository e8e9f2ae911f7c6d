package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/store"
	"sales-reconciler/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const duplicateDelivery = "duplicate delivery"

// OrderResult is the outcome of an order webhook
type OrderResult struct {
	Status        string `json:"status"`
	EventID       int64  `json:"eventId,omitempty"`
	OrderID       int64  `json:"orderId,omitempty"`
	StatusID      *int64 `json:"statusId"`
	ItemsRecorded int    `json:"itemsRecorded"`
	Duplicate     bool   `json:"duplicate,omitempty"`
	Message       string `json:"message,omitempty"`
	Reason        Reason `json:"-"`
}

// OrderProcessor records order status events and applies signed sales deltas
type OrderProcessor struct {
	repo      store.Repository
	resolver  *VariantResolver
	ledger    *SalesLedger
	negative  map[int64]struct{}
	fetcher   OrderFetcher
	guard     DeliveryGuard
	dedupTTL  time.Duration
	publisher EventPublisher
	now       func() time.Time
	logger    *zap.Logger
}

// OrderProcessorOptions carries the optional collaborators of an OrderProcessor
type OrderProcessorOptions struct {
	NegativeStatusIDs []int64
	Fetcher           OrderFetcher
	Guard             DeliveryGuard
	DedupTTL          time.Duration
	Publisher         EventPublisher
}

// NewOrderProcessor creates an order processor
func NewOrderProcessor(repo store.Repository, resolver *VariantResolver, ledger *SalesLedger, opts OrderProcessorOptions) *OrderProcessor {
	negative := make(map[int64]struct{}, len(opts.NegativeStatusIDs))
	for _, id := range opts.NegativeStatusIDs {
		negative[id] = struct{}{}
	}
	ttl := opts.DedupTTL
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &OrderProcessor{
		repo:      repo,
		resolver:  resolver,
		ledger:    ledger,
		negative:  negative,
		fetcher:   opts.Fetcher,
		guard:     opts.Guard,
		dedupTTL:  ttl,
		publisher: opts.Publisher,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// IsNegative reports whether a status id means cancellation, return or failed fulfillment
func (p *OrderProcessor) IsNegative(statusID *int64) bool {
	if statusID == nil {
		return false
	}
	_, ok := p.negative[*statusID]
	return ok
}

// Process records a raw order webhook and reconciles it
func (p *OrderProcessor) Process(ctx context.Context, raw []byte) OrderResult {
	ctx, span := util.StartSpan(ctx, "OrderProcessor.Process")
	defer span.End()

	start := time.Now()
	payload, body, err := decodeBody(raw)
	if err != nil {
		util.WebhooksReceivedTotal.WithLabelValues("order").Inc()
		return OrderResult{Status: models.WebhookStatusFailed, Message: "Invalid JSON payload", Reason: ReasonMalformed}
	}

	eventType := OrderEventType(payload)
	util.WebhooksReceivedTotal.WithLabelValues(eventType).Inc()
	defer func() {
		util.WebhookProcessingLatency.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	event := &models.WebhookEvent{
		EventType:  eventType,
		Payload:    body,
		Status:     models.WebhookStatusReceived,
		ReceivedAt: p.now().UTC(),
	}
	if err := p.repo.InsertWebhookEvent(ctx, event); err != nil {
		p.logger.Error("Failed to record order webhook", zap.Error(err))
		return OrderResult{Status: models.WebhookStatusFailed, Message: "Failed to persist webhook", Reason: ReasonStorage}
	}

	hook, err := ParseOrderWebhook(payload, p.now())
	if err != nil {
		return p.fail(ctx, event, ReasonMalformed, "Invalid order id", OrderResult{})
	}
	result := OrderResult{EventID: event.ID, OrderID: hook.OrderID, StatusID: hook.StatusID}
	isNegative := p.IsNegative(hook.StatusID)

	digest := payloadDigest(body)
	if p.seenCommitted(ctx, digest) {
		return p.duplicate(ctx, event, result)
	}

	items := NormalizeOrderItems(hook.RawItems)
	if len(items) == 0 && isNegative {
		items = p.enrich(ctx, hook.OrderID)
	}

	var deltas []models.SalesDeltaData
	duplicate := false
	err = p.repo.WithTx(ctx, func(tx store.Repository) error {
		deltas = nil
		duplicate = false
		// the claim comes first so a concurrent identical delivery waits on it
		claimed, err := tx.ClaimEvent(ctx, digest, eventType)
		if err != nil {
			return err
		}
		if !claimed {
			duplicate = true
			return nil
		}

		recorded, applied, err := p.record(ctx, tx, event, hook, items, isNegative)
		if err != nil {
			return err
		}
		result.ItemsRecorded = recorded
		deltas = applied

		now := p.now().UTC()
		return tx.UpdateWebhookStatus(ctx, event.ID, models.WebhookStatusProcessed, &now, nil)
	})
	if err != nil {
		result.ItemsRecorded = 0
		return p.fail(ctx, event, ReasonStorage, err.Error(), result)
	}
	p.rememberCommitted(ctx, digest)
	if duplicate {
		return p.duplicate(ctx, event, result)
	}

	util.WebhooksProcessedTotal.WithLabelValues(eventType, models.WebhookStatusProcessed).Inc()
	p.logger.Info("Order webhook processed",
		zap.Int64("event_id", event.ID),
		zap.Int64("order_id", hook.OrderID),
		zap.Bool("negative", isNegative),
		zap.Int("items", result.ItemsRecorded))

	result.Status = models.WebhookStatusProcessed
	p.publish(ctx, event, hook, isNegative, result.ItemsRecorded, deltas)
	return result
}

// record writes the order snapshot, the event and its items. It returns the
// number of items written and the ledger adjustments applied.
func (p *OrderProcessor) record(ctx context.Context, tx store.Repository, event *models.WebhookEvent, hook *OrderWebhook, items []OrderItem, isNegative bool) (int, []models.SalesDeltaData, error) {
	now := p.now().UTC()

	snapshot, err := json.Marshal(hook.Context)
	if err != nil {
		return 0, nil, err
	}
	if err := tx.UpsertOrder(ctx, &models.Order{
		ID:                  hook.OrderID,
		SourceUUID:          hook.SourceUUID,
		GlobalSourceUUID:    hook.GlobalSourceUUID,
		LastStatusID:        hook.StatusID,
		LastStatusGroupID:   hook.StatusGroupID,
		LastStatusChangedAt: strPtr(hook.OccurredAt),
		LastPayload:         snapshot,
		UpdatedAt:           now,
	}); err != nil {
		return 0, nil, err
	}

	orderEvent := &models.OrderEvent{
		OrderID:       hook.OrderID,
		StatusID:      hook.StatusID,
		StatusGroupID: hook.StatusGroupID,
		StatusLabel:   hook.StatusLabel,
		EventType:     event.EventType,
		OccurredAt:    hook.OccurredAt,
		Payload:       event.Payload,
		IsNegative:    isNegative,
		CreatedAt:     now,
	}
	if err := tx.InsertOrderEvent(ctx, orderEvent); err != nil {
		return 0, nil, err
	}

	var deltas []models.SalesDeltaData
	recorded := 0
	for _, item := range items {
		res, err := p.resolver.Resolve(ctx, tx, item.Ref())
		if err != nil {
			return 0, nil, err
		}

		var variantID *int64
		if res.Resolved() {
			variantID = &res.Variant.ID
			if err := tx.BackfillVariantIdentifiers(ctx, res.Variant.ID, item.SKU, item.OfferID); err != nil {
				return 0, nil, err
			}
		}

		rawItem, err := json.Marshal(item.Raw)
		if err != nil {
			return 0, nil, err
		}
		if err := tx.InsertOrderEventItem(ctx, &models.OrderEventItem{
			EventID:   orderEvent.ID,
			VariantID: variantID,
			SKU:       item.SKU,
			Quantity:  roundHalfUp(item.Quantity),
			Price:     item.Price,
			Payload:   rawItem,
		}); err != nil {
			return 0, nil, err
		}
		recorded++

		if !res.Resolved() || item.Quantity == 0 {
			continue
		}
		magnitude := math.Abs(item.Quantity)
		delta := magnitude
		if isNegative {
			delta = -magnitude
		}
		applied, err := p.ledger.Apply(ctx, tx, res.Variant, delta, hook.OccurredAt)
		if err != nil {
			return 0, nil, err
		}
		if applied != nil {
			deltas = append(deltas, *applied)
		}
	}
	return recorded, deltas, nil
}

// enrich fetches the order's items when a negative webhook arrives without
// any. Failures are logged and treated as no items.
func (p *OrderProcessor) enrich(ctx context.Context, orderID int64) []OrderItem {
	if p.fetcher == nil {
		return nil
	}
	details, err := p.fetcher.FetchOrder(ctx, orderID)
	if err != nil {
		util.EnrichmentRequestsTotal.WithLabelValues("error").Inc()
		p.logger.Warn("Failed to fetch order details", zap.Int64("order_id", orderID), zap.Error(err))
		return nil
	}
	if details == nil {
		util.EnrichmentRequestsTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	items := NormalizeOrderItems(details.ProductLines())
	util.EnrichmentRequestsTotal.WithLabelValues("ok").Inc()
	p.logger.Info("Order items enriched from upstream",
		zap.Int64("order_id", orderID),
		zap.Int("items", len(items)))
	return items
}

// seenCommitted consults the delivery cache. A cached digest only counts once
// processed_events confirms it; on any doubt the transaction claim decides.
func (p *OrderProcessor) seenCommitted(ctx context.Context, digest string) bool {
	if p.guard == nil {
		return false
	}
	seen, err := p.guard.SeenDelivery(ctx, digest)
	if err != nil {
		p.logger.Warn("Delivery guard unavailable", zap.Error(err))
		return false
	}
	if !seen {
		return false
	}
	processed, err := p.repo.IsEventProcessed(ctx, digest)
	if err != nil {
		p.logger.Warn("Failed to confirm cached delivery", zap.Error(err))
		return false
	}
	if !processed {
		p.logger.Warn("Cached delivery digest has no processed event, reapplying", zap.String("digest", digest))
	}
	return processed
}

func (p *OrderProcessor) rememberCommitted(ctx context.Context, digest string) {
	if p.guard == nil {
		return
	}
	if err := p.guard.RememberDelivery(ctx, digest, p.dedupTTL); err != nil {
		p.logger.Warn("Failed to cache delivery digest", zap.Error(err))
	}
}

func (p *OrderProcessor) duplicate(ctx context.Context, event *models.WebhookEvent, result OrderResult) OrderResult {
	now := p.now().UTC()
	msg := duplicateDelivery
	if err := p.repo.UpdateWebhookStatus(ctx, event.ID, models.WebhookStatusProcessed, &now, &msg); err != nil {
		p.logger.Error("Failed to mark duplicate webhook", zap.Int64("event_id", event.ID), zap.Error(err))
	}
	util.DuplicateDeliveriesTotal.Inc()
	util.WebhooksProcessedTotal.WithLabelValues(event.EventType, models.WebhookStatusProcessed).Inc()
	p.logger.Info("Duplicate order webhook skipped",
		zap.Int64("event_id", event.ID),
		zap.Int64("order_id", result.OrderID))

	result.Status = models.WebhookStatusProcessed
	result.Duplicate = true
	result.ItemsRecorded = 0
	result.Message = duplicateDelivery
	return result
}

func (p *OrderProcessor) publish(ctx context.Context, event *models.WebhookEvent, hook *OrderWebhook, isNegative bool, recorded int, deltas []models.SalesDeltaData) {
	if p.publisher == nil {
		return
	}
	reconciled := &models.OrderReconciledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderReconciled,
			Timestamp: p.now().UTC(),
		},
		WebhookEventID: event.ID,
		OrderID:        hook.OrderID,
		StatusID:       hook.StatusID,
		IsNegative:     isNegative,
		ItemsRecorded:  recorded,
		SalesDeltas:    deltas,
	}
	if err := p.publisher.PublishOrderReconciled(ctx, reconciled); err != nil {
		p.logger.Error("Failed to publish OrderReconciled event", zap.Int64("order_id", hook.OrderID), zap.Error(err))
	}
}

func (p *OrderProcessor) fail(ctx context.Context, event *models.WebhookEvent, reason Reason, msg string, result OrderResult) OrderResult {
	util.SpanError(ctx, errors.New(msg))
	if err := p.repo.UpdateWebhookStatus(ctx, event.ID, models.WebhookStatusFailed, nil, &msg); err != nil {
		p.logger.Error("Failed to mark webhook failed", zap.Int64("event_id", event.ID), zap.Error(err))
	}
	util.WebhooksProcessedTotal.WithLabelValues(event.EventType, models.WebhookStatusFailed).Inc()
	p.logger.Warn("Order webhook failed",
		zap.Int64("event_id", event.ID),
		zap.String("reason", string(reason)),
		zap.String("error", msg))

	result.Status = models.WebhookStatusFailed
	result.EventID = event.ID
	result.Message = msg
	result.Reason = reason
	return result
}

func payloadDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
