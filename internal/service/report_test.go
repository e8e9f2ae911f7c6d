package service

import (
	"context"
	"testing"
	"time"

	"sales-reconciler/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortSizes(t *testing.T) {
	items := []SizeQuantity{{Size: "XL"}, {Size: "Custom"}, {Size: "XS"}, {Size: "2XL"}, {Size: "Another"}, {Size: "M"}}
	SortSizes(items)

	var got []string
	for _, it := range items {
		got = append(got, it.Size)
	}
	assert.Equal(t, []string{"XS", "M", "XL", "2XL", "Another", "Custom"}, got)
}

func TestGroupSalesRows(t *testing.T) {
	rows := []models.SalesRow{
		{Year: 2024, MonthLabel: "Березень", MonthNumber: ptr(3), ColorName: "Чорний", SizeLabel: "L", Quantity: 1},
		{Year: 2023, MonthLabel: "Грудень", MonthNumber: ptr(12), ColorName: "Чорний", SizeLabel: "M", Quantity: 4},
		{Year: 2024, MonthLabel: "Січень", MonthNumber: ptr(1), ColorName: "Білий", SizeLabel: "S", Quantity: 2},
		{Year: 2024, MonthLabel: "Березень", MonthNumber: ptr(3), ColorName: "Чорний", SizeLabel: "XS", Quantity: 5},
		{Year: 2024, MonthLabel: "Розпродаж", ColorName: "Чорний", SizeLabel: "M", Quantity: 7},
	}

	months := GroupSalesRows(rows)
	require.Len(t, months, 4)

	assert.Equal(t, "Грудень", months[0].Month)
	assert.Equal(t, 2023, months[0].Year)
	assert.Equal(t, "Розпродаж", months[1].Month)
	assert.Equal(t, "Січень", months[2].Month)
	assert.Equal(t, "Березень", months[3].Month)

	black := months[3].Colors["Чорний"]
	require.Len(t, black, 2)
	assert.Equal(t, SizeQuantity{Size: "XS", Quantity: 5}, black[0])
	assert.Equal(t, SizeQuantity{Size: "L", Quantity: 1}, black[1])

	assert.Empty(t, GroupSalesRows(nil))
}

func TestSalesReport(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	hoodie := repo.seedProduct(hoodieName)
	black := repo.seedColor(hoodie.ID, "Чорний")
	v := repo.seedVariant(hoodie.ID, black.ID, "M", ptr("KUF001BKM"), nil)
	tee := repo.seedProduct("Футболка Premium Kufaika")

	ledger := NewSalesLedger()
	_, err := ledger.Apply(ctx, repo, &v, 3, "2024-02-10")
	require.NoError(t, err)
	_, err = repo.UpsertInventoryLevel(ctx, &models.InventoryLevel{
		VariantID: v.ID, InStock: 9, InReserve: 1, UpdatedAt: time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	svc := NewReportService(repo)

	t.Run("all products", func(t *testing.T) {
		reports, err := svc.SalesReport(ctx, ReportFilter{})
		require.NoError(t, err)
		require.Len(t, reports, 2)

		var hoodieReport ProductReport
		for _, r := range reports {
			if r.ID == hoodie.ID {
				hoodieReport = r
			}
		}
		require.Len(t, hoodieReport.Months, 1)
		assert.Equal(t, "Лютий", hoodieReport.Months[0].Month)
		assert.Equal(t, []SizeQuantity{{Size: "M", Quantity: 3}}, hoodieReport.Months[0].Colors["Чорний"])
		require.Len(t, hoodieReport.Variants, 1)
		assert.Equal(t, int64(9), hoodieReport.Inventory["Чорний"]["M"].InStock)
	})

	t.Run("by slug", func(t *testing.T) {
		reports, err := svc.SalesReport(ctx, ReportFilter{Slug: tee.Slug})
		require.NoError(t, err)
		require.Len(t, reports, 1)
		assert.Equal(t, tee.ID, reports[0].ID)
		assert.Empty(t, reports[0].Months)
		assert.Nil(t, reports[0].Inventory)
	})

	t.Run("id wins over slug", func(t *testing.T) {
		reports, err := svc.SalesReport(ctx, ReportFilter{ProductID: &hoodie.ID, Slug: tee.Slug})
		require.NoError(t, err)
		require.Len(t, reports, 1)
		assert.Equal(t, hoodie.ID, reports[0].ID)
	})

	t.Run("unknown product", func(t *testing.T) {
		reports, err := svc.SalesReport(ctx, ReportFilter{Slug: "missing"})
		require.NoError(t, err)
		assert.Empty(t, reports)
	})
}

func TestListVariants(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	p := repo.seedProduct(hoodieName)
	svc := NewReportService(repo)

	product, variants, err := svc.ListVariants(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, product.ID)
	assert.NotNil(t, variants)
	assert.Empty(t, variants)

	_, _, err = svc.ListVariants(ctx, 4242)
	assert.ErrorIs(t, err, ErrProductNotFound)

	products, err := svc.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 1)
}
