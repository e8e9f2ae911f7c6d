package service

import (
	"context"
	"sort"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/skucode"
	"sales-reconciler/internal/store"
	"sales-reconciler/internal/util"
)

// SizeQuantity is the sold quantity of one size
type SizeQuantity struct {
	Size     string `json:"size"`
	Quantity int64  `json:"quantity"`
}

// MonthSales groups a period's sales by color
type MonthSales struct {
	Month  string                    `json:"month"`
	Year   int                       `json:"year"`
	Colors map[string][]SizeQuantity `json:"colors"`
}

// InventoryCell is the stock snapshot of one color x size
type InventoryCell struct {
	InStock   int64     `json:"in_stock"`
	InReserve int64     `json:"in_reserve"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductReport is the dashboard view of a product
type ProductReport struct {
	ID        int64                               `json:"id"`
	Name      string                              `json:"name"`
	Slug      string                              `json:"slug"`
	Months    []MonthSales                        `json:"months"`
	Variants  []models.VariantDetail              `json:"variants"`
	Inventory map[string]map[string]InventoryCell `json:"inventory,omitempty"`
}

// ReportFilter narrows the sales report. ProductID wins over Slug.
type ReportFilter struct {
	ProductID *int64
	Slug      string
}

// ReportService serves the read side of the ledger
type ReportService struct {
	repo store.Repository
}

// NewReportService creates a report service
func NewReportService(repo store.Repository) *ReportService {
	return &ReportService{repo: repo}
}

// ListProducts returns every product ordered by name
func (s *ReportService) ListProducts(ctx context.Context) ([]models.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []models.Product{}
	}
	return products, nil
}

// ListVariants returns a product with its variants
func (s *ReportService) ListVariants(ctx context.Context, productID int64) (*models.Product, []models.VariantDetail, error) {
	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return nil, nil, err
	}
	if product == nil {
		return nil, nil, ErrProductNotFound
	}
	variants, err := s.repo.ListVariantDetails(ctx, productID)
	if err != nil {
		return nil, nil, err
	}
	if variants == nil {
		variants = []models.VariantDetail{}
	}
	return product, variants, nil
}

// SalesReport builds the per product sales, variants and inventory view
func (s *ReportService) SalesReport(ctx context.Context, filter ReportFilter) ([]ProductReport, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.SalesReport")
	defer span.End()

	var products []models.Product
	switch {
	case filter.ProductID != nil:
		p, err := s.repo.GetProductByID(ctx, *filter.ProductID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			products = append(products, *p)
		}
	case filter.Slug != "":
		p, err := s.repo.FindProductBySlug(ctx, filter.Slug)
		if err != nil {
			return nil, err
		}
		if p != nil {
			products = append(products, *p)
		}
	default:
		all, err := s.repo.ListProducts(ctx)
		if err != nil {
			return nil, err
		}
		products = all
	}

	reports := make([]ProductReport, 0, len(products))
	for _, product := range products {
		rows, err := s.repo.ListSalesRows(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		variants, err := s.repo.ListVariantDetails(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		if variants == nil {
			variants = []models.VariantDetail{}
		}
		levels, err := s.repo.ListInventoryDetails(ctx, product.ID)
		if err != nil {
			return nil, err
		}

		report := ProductReport{
			ID:       product.ID,
			Name:     product.Name,
			Slug:     product.Slug,
			Months:   GroupSalesRows(rows),
			Variants: variants,
		}
		if len(levels) > 0 {
			report.Inventory = make(map[string]map[string]InventoryCell)
			for _, level := range levels {
				if report.Inventory[level.ColorName] == nil {
					report.Inventory[level.ColorName] = make(map[string]InventoryCell)
				}
				report.Inventory[level.ColorName][level.SizeLabel] = InventoryCell{
					InStock:   level.InStock,
					InReserve: level.InReserve,
					UpdatedAt: level.UpdatedAt,
				}
			}
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// GroupSalesRows groups rows by (year, month label) and color. Months are
// ordered by year then month number, unknown months first within a year.
func GroupSalesRows(rows []models.SalesRow) []MonthSales {
	type bucket struct {
		sales MonthSales
		month int
	}
	type monthKey struct {
		year  int
		label string
	}

	var order []monthKey
	buckets := make(map[monthKey]*bucket)
	for _, row := range rows {
		key := monthKey{year: row.Year, label: row.MonthLabel}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{sales: MonthSales{Month: row.MonthLabel, Year: row.Year, Colors: map[string][]SizeQuantity{}}}
			if row.MonthNumber != nil {
				b.month = *row.MonthNumber
			}
			buckets[key] = b
			order = append(order, key)
		}
		b.sales.Colors[row.ColorName] = append(b.sales.Colors[row.ColorName], SizeQuantity{Size: row.SizeLabel, Quantity: row.Quantity})
	}

	grouped := make([]bucket, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		for color := range b.sales.Colors {
			SortSizes(b.sales.Colors[color])
		}
		grouped = append(grouped, *b)
	}
	sort.SliceStable(grouped, func(i, j int) bool {
		if grouped[i].sales.Year != grouped[j].sales.Year {
			return grouped[i].sales.Year < grouped[j].sales.Year
		}
		return grouped[i].month < grouped[j].month
	})

	months := make([]MonthSales, len(grouped))
	for i, b := range grouped {
		months[i] = b.sales
	}
	return months
}

// SortSizes orders sizes by the canonical size order. Unknown sizes go last,
// ordered by label.
func SortSizes(items []SizeQuantity) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := skucode.SizeRank(items[i].Size), skucode.SizeRank(items[j].Size)
		if ri < 0 {
			ri = len(skucode.SizeOrder)
		}
		if rj < 0 {
			rj = len(skucode.SizeOrder)
		}
		if ri != rj {
			return ri < rj
		}
		return items[i].Size < items[j].Size
	})
}
