package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"sales-reconciler/internal/keycrm"
	"sales-reconciler/internal/models"
	"sales-reconciler/internal/skucode"
	"sales-reconciler/internal/store"
)

var errInjected = errors.New("injected failure")

type fakeState struct {
	nextID      int64
	products    map[int64]models.Product
	colors      map[int64]models.Color
	sizes       map[int64]models.Size
	periods     map[int64]models.Period
	variants    map[int64]models.Variant
	sales       map[models.SalesKey]int64
	levels      map[int64]models.InventoryLevel
	history     []models.InventoryHistory
	webhooks    map[int64]models.WebhookEvent
	orders      map[int64]models.Order
	orderEvents []models.OrderEvent
	orderItems  []models.OrderEventItem
	processed   map[string]string
}

func (s *fakeState) clone() *fakeState {
	c := &fakeState{
		nextID:      s.nextID,
		products:    make(map[int64]models.Product, len(s.products)),
		colors:      make(map[int64]models.Color, len(s.colors)),
		sizes:       make(map[int64]models.Size, len(s.sizes)),
		periods:     make(map[int64]models.Period, len(s.periods)),
		variants:    make(map[int64]models.Variant, len(s.variants)),
		sales:       make(map[models.SalesKey]int64, len(s.sales)),
		levels:      make(map[int64]models.InventoryLevel, len(s.levels)),
		history:     append([]models.InventoryHistory(nil), s.history...),
		webhooks:    make(map[int64]models.WebhookEvent, len(s.webhooks)),
		orders:      make(map[int64]models.Order, len(s.orders)),
		orderEvents: append([]models.OrderEvent(nil), s.orderEvents...),
		orderItems:  append([]models.OrderEventItem(nil), s.orderItems...),
		processed:   make(map[string]string, len(s.processed)),
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.colors {
		c.colors[k] = v
	}
	for k, v := range s.sizes {
		c.sizes[k] = v
	}
	for k, v := range s.periods {
		c.periods[k] = v
	}
	for k, v := range s.variants {
		c.variants[k] = v
	}
	for k, v := range s.sales {
		c.sales[k] = v
	}
	for k, v := range s.levels {
		c.levels[k] = v
	}
	for k, v := range s.webhooks {
		c.webhooks[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.processed {
		c.processed[k] = v
	}
	return c
}

// fakeRepo is an in-memory store.Repository. WithTx restores the previous
// state when fn fails.
type fakeRepo struct {
	st *fakeState

	// failSalesWriteAt fails the Nth sales write (1-based), 0 disables
	failSalesWriteAt  int
	salesWrites       int
	failWebhookInsert bool
	failTx            bool
	txCount           int
}

func newFakeRepo() *fakeRepo {
	r := &fakeRepo{st: &fakeState{
		products:  map[int64]models.Product{},
		colors:    map[int64]models.Color{},
		sizes:     map[int64]models.Size{},
		periods:   map[int64]models.Period{},
		variants:  map[int64]models.Variant{},
		sales:     map[models.SalesKey]int64{},
		levels:    map[int64]models.InventoryLevel{},
		webhooks:  map[int64]models.WebhookEvent{},
		orders:    map[int64]models.Order{},
		processed: map[string]string{},
	}}
	for _, label := range skucode.SizeOrder {
		r.seedSize(label)
	}
	return r
}

var _ store.Repository = (*fakeRepo)(nil)

func (r *fakeRepo) id() int64 {
	r.st.nextID++
	return r.st.nextID
}

func (r *fakeRepo) seedProduct(name string) models.Product {
	p := models.Product{ID: r.id(), Name: name, Slug: Slugify(name)}
	r.st.products[p.ID] = p
	return p
}

func (r *fakeRepo) seedColor(productID int64, name string) models.Color {
	c := models.Color{ID: r.id(), ProductID: productID, Name: name}
	r.st.colors[c.ID] = c
	return c
}

func (r *fakeRepo) seedSize(label string) models.Size {
	s := models.Size{ID: r.id(), Label: label}
	r.st.sizes[s.ID] = s
	return s
}

func (r *fakeRepo) sizeID(label string) int64 {
	for _, s := range r.st.sizes {
		if s.Label == label {
			return s.ID
		}
	}
	return 0
}

func (r *fakeRepo) seedVariant(productID, colorID int64, size string, sku *string, offerID *int64) models.Variant {
	v := models.Variant{ID: r.id(), ProductID: productID, ColorID: colorID, SizeID: r.sizeID(size), SKU: sku, OfferID: offerID}
	r.st.variants[v.ID] = v
	return v
}

func (r *fakeRepo) totalSales() int64 {
	var total int64
	for _, q := range r.st.sales {
		total += q
	}
	return total
}

func (r *fakeRepo) salesFor(variantID int64) int64 {
	v := r.st.variants[variantID]
	var total int64
	for key, q := range r.st.sales {
		if key.ProductID == v.ProductID && key.ColorID == v.ColorID && key.SizeID == v.SizeID {
			total += q
		}
	}
	return total
}

func (r *fakeRepo) webhook(id int64) models.WebhookEvent {
	return r.st.webhooks[id]
}

func (r *fakeRepo) salesWrite() error {
	r.salesWrites++
	if r.failSalesWriteAt > 0 && r.salesWrites == r.failSalesWriteAt {
		return errInjected
	}
	return nil
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(store.Repository) error) error {
	r.txCount++
	if r.failTx {
		return errInjected
	}
	snapshot := r.st.clone()
	if err := fn(r); err != nil {
		r.st = snapshot
		return err
	}
	return nil
}

// Catalog

func (r *fakeRepo) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	p, ok := r.st.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *fakeRepo) FindProductByName(ctx context.Context, name string) (*models.Product, error) {
	for _, p := range r.st.products {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) FindProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	for _, p := range r.st.products {
		if p.Slug == slug {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) ListProducts(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	for _, p := range r.st.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeRepo) InsertProduct(ctx context.Context, name, slug string) (*models.Product, error) {
	for _, p := range r.st.products {
		if p.Name == name || p.Slug == slug {
			return nil, errors.New("duplicate product")
		}
	}
	p := models.Product{ID: r.id(), Name: name, Slug: slug}
	r.st.products[p.ID] = p
	return &p, nil
}

func (r *fakeRepo) FindColor(ctx context.Context, productID int64, name string) (*models.Color, error) {
	for _, c := range r.st.colors {
		if c.ProductID == productID && c.Name == name {
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) ListColorsByName(ctx context.Context, name string) ([]models.Color, error) {
	var out []models.Color
	for _, c := range r.st.colors {
		if c.Name == name {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return r.st.products[out[i].ProductID].Name < r.st.products[out[j].ProductID].Name
	})
	return out, nil
}

func (r *fakeRepo) EnsureColor(ctx context.Context, productID int64, name string) (*models.Color, error) {
	if c, _ := r.FindColor(ctx, productID, name); c != nil {
		return c, nil
	}
	c := r.seedColor(productID, name)
	return &c, nil
}

func (r *fakeRepo) FindSizeByLabel(ctx context.Context, label string) (*models.Size, error) {
	for _, s := range r.st.sizes {
		if s.Label == label {
			return &s, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) EnsureSize(ctx context.Context, label string) (*models.Size, error) {
	if s, _ := r.FindSizeByLabel(ctx, label); s != nil {
		return s, nil
	}
	s := r.seedSize(label)
	return &s, nil
}

func (r *fakeRepo) UpsertPeriod(ctx context.Context, year int, month *int, label string) (*models.Period, error) {
	for id, p := range r.st.periods {
		if p.Year == year && p.Label == label {
			if p.Month == nil && month != nil {
				p.Month = month
				r.st.periods[id] = p
			}
			return &p, nil
		}
	}
	p := models.Period{ID: r.id(), Year: year, Month: month, Label: label}
	r.st.periods[p.ID] = p
	return &p, nil
}

// Variants

func (r *fakeRepo) GetVariantByID(ctx context.Context, id int64) (*models.Variant, error) {
	v, ok := r.st.variants[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (r *fakeRepo) sortedVariants() []models.Variant {
	out := make([]models.Variant, 0, len(r.st.variants))
	for _, v := range r.st.variants {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *fakeRepo) FindVariantByOfferID(ctx context.Context, offerID int64) (*models.Variant, error) {
	for _, v := range r.sortedVariants() {
		if v.OfferID != nil && *v.OfferID == offerID {
			return &v, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) FindVariantBySKU(ctx context.Context, sku string) (*models.Variant, error) {
	for _, v := range r.sortedVariants() {
		if v.SKU != nil && *v.SKU == sku {
			return &v, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) FindOrCreateVariant(ctx context.Context, productID, colorID, sizeID int64, sku *string, offerID *int64) (*models.Variant, bool, error) {
	for id, v := range r.st.variants {
		if v.ProductID == productID && v.ColorID == colorID && v.SizeID == sizeID {
			if v.SKU == nil {
				v.SKU = sku
			}
			if v.OfferID == nil {
				v.OfferID = offerID
			}
			r.st.variants[id] = v
			return &v, false, nil
		}
	}
	v := models.Variant{ID: r.id(), ProductID: productID, ColorID: colorID, SizeID: sizeID, SKU: sku, OfferID: offerID}
	r.st.variants[v.ID] = v
	return &v, true, nil
}

func (r *fakeRepo) BackfillVariantIdentifiers(ctx context.Context, variantID int64, sku *string, offerID *int64) error {
	v, ok := r.st.variants[variantID]
	if !ok {
		return nil
	}
	if v.SKU == nil {
		v.SKU = sku
	}
	if v.OfferID == nil {
		v.OfferID = offerID
	}
	r.st.variants[variantID] = v
	return nil
}

func (r *fakeRepo) ListVariantDetails(ctx context.Context, productID int64) ([]models.VariantDetail, error) {
	var out []models.VariantDetail
	for _, v := range r.sortedVariants() {
		if v.ProductID != productID {
			continue
		}
		out = append(out, models.VariantDetail{
			ID:        v.ID,
			ProductID: v.ProductID,
			ColorName: r.st.colors[v.ColorID].Name,
			SizeLabel: r.st.sizes[v.SizeID].Label,
			SKU:       v.SKU,
			OfferID:   v.OfferID,
		})
	}
	return out, nil
}

// Inventory

func (r *fakeRepo) FindInventoryLevel(ctx context.Context, variantID int64) (*models.InventoryLevel, error) {
	l, ok := r.st.levels[variantID]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (r *fakeRepo) ListInventoryLevels(ctx context.Context) ([]models.InventoryLevel, error) {
	var out []models.InventoryLevel
	for _, l := range r.st.levels {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariantID < out[j].VariantID })
	return out, nil
}

func (r *fakeRepo) UpsertInventoryLevel(ctx context.Context, level *models.InventoryLevel) (bool, error) {
	if current, ok := r.st.levels[level.VariantID]; ok && current.UpdatedAt.After(level.UpdatedAt) {
		return false, nil
	}
	r.st.levels[level.VariantID] = *level
	return true, nil
}

func (r *fakeRepo) InsertInventoryHistory(ctx context.Context, entry *models.InventoryHistory) error {
	entry.ID = r.id()
	r.st.history = append(r.st.history, *entry)
	return nil
}

func (r *fakeRepo) ListInventoryDetails(ctx context.Context, productID int64) ([]models.InventoryDetail, error) {
	var out []models.InventoryDetail
	for _, v := range r.sortedVariants() {
		l, ok := r.st.levels[v.ID]
		if !ok || v.ProductID != productID {
			continue
		}
		out = append(out, models.InventoryDetail{
			ProductID: productID,
			ColorName: r.st.colors[v.ColorID].Name,
			SizeLabel: r.st.sizes[v.SizeID].Label,
			InStock:   l.InStock,
			InReserve: l.InReserve,
			UpdatedAt: l.UpdatedAt,
		})
	}
	return out, nil
}

// Sales

func (r *fakeRepo) AddSalesQuantity(ctx context.Context, key models.SalesKey, quantity int64) (int64, error) {
	if err := r.salesWrite(); err != nil {
		return 0, err
	}
	r.st.sales[key] += quantity
	return r.st.sales[key], nil
}

func (r *fakeRepo) FindSalesQuantity(ctx context.Context, key models.SalesKey) (int64, bool, error) {
	q, ok := r.st.sales[key]
	return q, ok, nil
}

func (r *fakeRepo) SubtractSalesQuantity(ctx context.Context, key models.SalesKey, quantity int64) (int64, error) {
	if err := r.salesWrite(); err != nil {
		return 0, err
	}
	q, ok := r.st.sales[key]
	if !ok || quantity <= 0 {
		return q, nil
	}
	q -= quantity
	if q < 0 {
		q = 0
	}
	r.st.sales[key] = q
	return q, nil
}

func (r *fakeRepo) ListSalesRows(ctx context.Context, productID int64) ([]models.SalesRow, error) {
	var out []models.SalesRow
	for key, q := range r.st.sales {
		if key.ProductID != productID {
			continue
		}
		period := r.st.periods[key.PeriodID]
		out = append(out, models.SalesRow{
			ProductID:   productID,
			Year:        period.Year,
			MonthLabel:  period.Label,
			MonthNumber: period.Month,
			ColorName:   r.st.colors[key.ColorID].Name,
			SizeLabel:   r.st.sizes[key.SizeID].Label,
			Quantity:    q,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ColorName != out[j].ColorName {
			return out[i].ColorName < out[j].ColorName
		}
		return out[i].SizeLabel < out[j].SizeLabel
	})
	return out, nil
}

// Webhooks

func (r *fakeRepo) InsertWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	if r.failWebhookInsert {
		return errInjected
	}
	event.ID = r.id()
	if event.Status == "" {
		event.Status = models.WebhookStatusReceived
	}
	r.st.webhooks[event.ID] = *event
	return nil
}

func (r *fakeRepo) UpdateWebhookStatus(ctx context.Context, id int64, status string, processedAt *time.Time, errMsg *string) error {
	e, ok := r.st.webhooks[id]
	if !ok {
		return nil
	}
	e.Status = status
	e.ProcessedAt = processedAt
	e.Error = errMsg
	r.st.webhooks[id] = e
	return nil
}

func (r *fakeRepo) GetWebhookEvent(ctx context.Context, id int64) (*models.WebhookEvent, error) {
	e, ok := r.st.webhooks[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *fakeRepo) ListWebhookEventsByStatus(ctx context.Context, status string, afterID int64, limit int) ([]models.WebhookEvent, error) {
	var out []models.WebhookEvent
	for _, e := range r.st.webhooks {
		if e.Status == status && e.ID > afterID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Orders

func (r *fakeRepo) UpsertOrder(ctx context.Context, order *models.Order) error {
	r.st.orders[order.ID] = *order
	return nil
}

func (r *fakeRepo) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	o, ok := r.st.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r *fakeRepo) InsertOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	event.ID = r.id()
	r.st.orderEvents = append(r.st.orderEvents, *event)
	return nil
}

func (r *fakeRepo) InsertOrderEventItem(ctx context.Context, item *models.OrderEventItem) error {
	item.ID = r.id()
	r.st.orderItems = append(r.st.orderItems, *item)
	return nil
}

func (r *fakeRepo) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	_, ok := r.st.processed[eventID]
	return ok, nil
}

func (r *fakeRepo) ClaimEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	if _, ok := r.st.processed[eventID]; ok {
		return false, nil
	}
	r.st.processed[eventID] = eventType
	return true, nil
}

// Collaborators

type fakePublisher struct {
	stock   []*models.StockReconciledEvent
	orders  []*models.OrderReconciledEvent
	catalog []*models.CatalogChangedEvent
	err     error
}

func (p *fakePublisher) PublishStockReconciled(ctx context.Context, event *models.StockReconciledEvent) error {
	p.stock = append(p.stock, event)
	return p.err
}

func (p *fakePublisher) PublishOrderReconciled(ctx context.Context, event *models.OrderReconciledEvent) error {
	p.orders = append(p.orders, event)
	return p.err
}

func (p *fakePublisher) PublishCatalogChanged(ctx context.Context, event *models.CatalogChangedEvent) error {
	p.catalog = append(p.catalog, event)
	return p.err
}

type cachedLevel struct {
	inStock, inReserve int64
}

type fakeCache struct {
	levels map[int64]cachedLevel
	setErr error
	reads  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{levels: map[int64]cachedLevel{}}
}

func (c *fakeCache) SetInventoryLevel(ctx context.Context, variantID, inStock, inReserve int64) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.levels[variantID] = cachedLevel{inStock: inStock, inReserve: inReserve}
	return nil
}

func (c *fakeCache) GetInventory(ctx context.Context, variantID int64) (int64, int64, error) {
	c.reads++
	l, ok := c.levels[variantID]
	if !ok {
		return 0, 0, errors.New("inventory not found")
	}
	return l.inStock, l.inReserve, nil
}

type fakeGuard struct {
	seen       map[string]bool
	remembered []string
	err        error
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{seen: map[string]bool{}}
}

func (g *fakeGuard) SeenDelivery(ctx context.Context, digest string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	return g.seen[digest], nil
}

func (g *fakeGuard) RememberDelivery(ctx context.Context, digest string, ttl time.Duration) error {
	if g.err != nil {
		return g.err
	}
	g.seen[digest] = true
	g.remembered = append(g.remembered, digest)
	return nil
}

type fakeFetcher struct {
	details *keycrm.OrderDetails
	err     error
	calls   []int64
}

func (f *fakeFetcher) FetchOrder(ctx context.Context, orderID int64) (*keycrm.OrderDetails, error) {
	f.calls = append(f.calls, orderID)
	return f.details, f.err
}

func ptr[T any](v T) *T { return &v }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
