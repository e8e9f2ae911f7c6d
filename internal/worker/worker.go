package worker

import (
	"context"
	"sync"
	"time"

	"sales-reconciler/internal/broker"
	"sales-reconciler/internal/models"
	"sales-reconciler/internal/service"
	"sales-reconciler/internal/util"

	"go.uber.org/zap"
)

const sweepLockKey = "sweep:pending-webhooks"

// sweepLockTTLFactor keeps the lock alive past the next tick so a slow sweep
// is not joined by another replica
const sweepLockTTLFactor = 3

// Locker guards the sweep across replicas. Implemented by redisclient.Client.
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

// PendingSource pages stored webhooks by status in id order
type PendingSource interface {
	ListWebhookEventsByStatus(ctx context.Context, status string, afterID int64, limit int) ([]models.WebhookEvent, error)
}

// Reprocessor re-runs a stored stock webhook
type Reprocessor interface {
	Reprocess(ctx context.Context, event *models.WebhookEvent) service.StockResult
}

// ReconcileWorker periodically re-runs pending stock webhooks. Catalog
// changes consumed from Kafka trigger an early sweep.
type ReconcileWorker struct {
	source    PendingSource
	processor Reprocessor
	locker    Locker
	consumer  *broker.Consumer
	interval  time.Duration
	batchSize int

	trigger chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// NewReconcileWorker creates a new sweep worker. locker and consumer may be nil.
func NewReconcileWorker(
	source PendingSource,
	processor Reprocessor,
	locker Locker,
	consumer *broker.Consumer,
	interval time.Duration,
	batchSize int,
) *ReconcileWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ReconcileWorker{
		source:    source,
		processor: processor,
		locker:    locker,
		consumer:  consumer,
		interval:  interval,
		batchSize: batchSize,
		trigger:   make(chan struct{}, 1),
		logger:    util.GetLogger(),
	}
}

// Start launches the sweep loop and, when configured, the catalog consumer
func (w *ReconcileWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.logger.Info("Starting reconcile worker",
		zap.Duration("interval", w.interval),
		zap.Int("batch_size", w.batchSize))

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx)
	}()

	if w.consumer != nil {
		handler := broker.NewEventHandler()
		handler.OnCatalogChanged(func(ctx context.Context, event *models.CatalogChangedEvent) error {
			w.logger.Debug("Catalog changed, scheduling sweep",
				zap.Int64("product_id", event.ProductID),
				zap.String("reason", event.Reason))
			w.Trigger()
			return nil
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.StartConsuming(ctx, handler.HandleMessage); err != nil && ctx.Err() == nil {
				w.logger.Error("Catalog consumer stopped", zap.Error(err))
			}
		}()
	}
}

// Trigger schedules a sweep without waiting for the next tick
func (w *ReconcileWorker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Stop stops the worker and waits for the running sweep to finish
func (w *ReconcileWorker) Stop() error {
	w.logger.Info("Stopping reconcile worker...")
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	if w.consumer != nil {
		return w.consumer.Close()
	}
	return nil
}

func (w *ReconcileWorker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.trigger:
		}
		if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("Pending sweep failed", zap.Error(err))
		}
	}
}

// Sweep walks every pending webhook page by page, oldest first, re-running
// each one, and returns how many left the pending state.
func (w *ReconcileWorker) Sweep(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "ReconcileWorker.Sweep")
	defer span.End()

	if w.locker != nil {
		token, acquired, err := w.locker.AcquireLock(ctx, sweepLockKey, w.interval*sweepLockTTLFactor)
		if err != nil {
			util.SweepRunsTotal.WithLabelValues("error").Inc()
			util.SpanError(ctx, err)
			return 0, err
		}
		if !acquired {
			util.SweepRunsTotal.WithLabelValues("skipped").Inc()
			w.logger.Debug("Sweep already running elsewhere")
			return 0, nil
		}
		defer func() {
			if err := w.locker.ReleaseLock(context.Background(), sweepLockKey, token); err != nil {
				w.logger.Warn("Failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	var afterID int64
	pending, settled := 0, 0
	for ctx.Err() == nil {
		events, err := w.source.ListWebhookEventsByStatus(ctx, models.WebhookStatusPending, afterID, w.batchSize)
		if err != nil {
			util.SweepRunsTotal.WithLabelValues("error").Inc()
			util.SpanError(ctx, err)
			return settled, err
		}

		for i := range events {
			if ctx.Err() != nil {
				break
			}
			result := w.processor.Reprocess(ctx, &events[i])
			util.SweepEventsTotal.WithLabelValues(result.Status).Inc()
			if result.Status != service.StockStatusAccepted {
				settled++
			}
			afterID = events[i].ID
			pending++
		}
		if len(events) < w.batchSize {
			break
		}
	}

	util.SweepRunsTotal.WithLabelValues("ok").Inc()
	if pending > 0 {
		w.logger.Info("Pending sweep completed",
			zap.Int("pending", pending),
			zap.Int("settled", settled))
	}
	return settled, nil
}
