package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/store"
	"sales-reconciler/internal/util"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var monthLabels = [12]string{
	"Січень", "Лютий", "Березень", "Квітень", "Травень", "Червень",
	"Липень", "Серпень", "Вересень", "Жовтень", "Листопад", "Грудень",
}

// Casers are stateful, so each call builds its own.
func lowerUK(s string) string { return cases.Lower(language.Ukrainian).String(s) }

func titleUK(s string) string { return cases.Title(language.Ukrainian).String(s) }

var monthByLabel = func() map[string]int {
	m := make(map[string]int, len(monthLabels))
	for i, label := range monthLabels {
		m[lowerUK(label)] = i + 1
	}
	return m
}()

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// MonthLabel returns the capitalized Ukrainian month name
func MonthLabel(m time.Month) string {
	return monthLabels[m-1]
}

// MonthNumber maps a month label to 1-12, nil when the label is unknown
func MonthNumber(label string) *int {
	n, ok := monthByLabel[lowerUK(strings.TrimSpace(label))]
	if !ok {
		return nil
	}
	return &n
}

// NormalizeMonthLabel trims and capitalizes a month label
func NormalizeMonthLabel(label string) string {
	return titleUK(strings.TrimSpace(label))
}

// ParseTimestamp parses an upstream timestamp. Values without a zone are UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

type ledgerRepository interface {
	store.CatalogRepository
	store.VariantRepository
	store.SalesRepository
}

// SalesLedger applies signed quantity deltas to the sales fact table
type SalesLedger struct {
	now    func() time.Time
	logger *zap.Logger
}

// NewSalesLedger creates a new sales ledger
func NewSalesLedger() *SalesLedger {
	return &SalesLedger{now: time.Now, logger: util.GetLogger()}
}

// Apply adds or subtracts delta units for the variant in the period of
// occurredAt. Subtractions are clamped so the fact never goes below zero and
// are skipped when there is nothing to subtract from. An empty occurredAt
// means now; an unparseable one makes the call a no-op. The returned delta is
// nil when nothing was written.
func (l *SalesLedger) Apply(ctx context.Context, repo ledgerRepository, variant *models.Variant, delta float64, occurredAt string) (*models.SalesDeltaData, error) {
	if variant == nil || variant.ID == 0 || !isFinite(delta) {
		return nil, nil
	}
	units := roundHalfUp(delta)
	if units == 0 {
		return nil, nil
	}

	if variant.ProductID == 0 || variant.ColorID == 0 || variant.SizeID == 0 {
		full, err := repo.GetVariantByID(ctx, variant.ID)
		if err != nil {
			return nil, err
		}
		if full == nil {
			return nil, nil
		}
		variant = full
	}

	at := l.now().UTC()
	if occurredAt != "" {
		parsed, ok := ParseTimestamp(occurredAt)
		if !ok {
			l.logger.Warn("Skipping sales delta with unparseable timestamp",
				zap.Int64("variant_id", variant.ID),
				zap.String("occurred_at", occurredAt))
			return nil, nil
		}
		at = parsed
	}

	month := int(at.Month())
	period, err := repo.UpsertPeriod(ctx, at.Year(), &month, MonthLabel(at.Month()))
	if err != nil {
		return nil, err
	}

	key := models.SalesKey{
		ProductID: variant.ProductID,
		ColorID:   variant.ColorID,
		SizeID:    variant.SizeID,
		PeriodID:  period.ID,
	}
	applied := &models.SalesDeltaData{
		VariantID: variant.ID,
		Period:    fmt.Sprintf("%d %s", period.Year, period.Label),
	}

	if units > 0 {
		total, err := repo.AddSalesQuantity(ctx, key, units)
		if err != nil {
			return nil, err
		}
		util.SalesAdjustmentsTotal.WithLabelValues("up").Inc()
		util.SalesUnitsTotal.WithLabelValues("up").Add(float64(units))
		applied.Delta = units
		applied.Quantity = total
		return applied, nil
	}

	current, found, err := repo.FindSalesQuantity(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found || current <= 0 {
		return nil, nil
	}
	subtract := -units
	if current < subtract {
		subtract = current
	}
	total, err := repo.SubtractSalesQuantity(ctx, key, subtract)
	if err != nil {
		return nil, err
	}
	util.SalesAdjustmentsTotal.WithLabelValues("down").Inc()
	util.SalesUnitsTotal.WithLabelValues("down").Add(float64(subtract))
	applied.Delta = -subtract
	applied.Quantity = total
	return applied, nil
}
