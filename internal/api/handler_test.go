package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStock struct {
	result    service.StockResult
	eventType string
	body      string
}

func (s *stubStock) Process(ctx context.Context, eventType string, raw []byte) service.StockResult {
	s.eventType = eventType
	s.body = string(raw)
	return s.result
}

type stubOrders struct {
	result service.OrderResult
}

func (s *stubOrders) Process(ctx context.Context, raw []byte) service.OrderResult {
	return s.result
}

type stubCatalog struct {
	variantErr error
	lastReq    service.UpsertVariantRequest
}

func (s *stubCatalog) EnsureCatalog(ctx context.Context, req service.CatalogRequest) (*service.CatalogResult, error) {
	if req.Product == "" {
		return nil, service.ErrInvalidRequest
	}
	return &service.CatalogResult{Product: models.Product{ID: 1, Name: req.Product}, Created: true}, nil
}

func (s *stubCatalog) UpsertVariant(ctx context.Context, req service.UpsertVariantRequest) (*models.Variant, bool, error) {
	s.lastReq = req
	if s.variantErr != nil {
		return nil, false, s.variantErr
	}
	return &models.Variant{ID: 42}, true, nil
}

type stubReports struct {
	filter service.ReportFilter
}

func (s *stubReports) ListProducts(ctx context.Context) ([]models.Product, error) {
	return []models.Product{{ID: 1, Name: "Худі", Slug: "худі"}}, nil
}

func (s *stubReports) ListVariants(ctx context.Context, productID int64) (*models.Product, []models.VariantDetail, error) {
	if productID != 1 {
		return nil, nil, service.ErrProductNotFound
	}
	return &models.Product{ID: 1}, []models.VariantDetail{{ID: 5, ColorName: "Чорний", SizeLabel: "M"}}, nil
}

func (s *stubReports) SalesReport(ctx context.Context, filter service.ReportFilter) ([]service.ProductReport, error) {
	s.filter = filter
	return []service.ProductReport{{ID: 1, Name: "Худі"}}, nil
}

type stubInventory struct{}

func (stubInventory) GetLevel(ctx context.Context, variantID int64) (*models.InventoryLevel, error) {
	switch variantID {
	case 1:
		return &models.InventoryLevel{VariantID: 1, InStock: 4}, nil
	case 2:
		return nil, errors.New("db down")
	}
	return nil, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

type testServer struct {
	router  *gin.Engine
	stock   *stubStock
	orders  *stubOrders
	catalog *stubCatalog
	reports *stubReports
}

func newTestServer(checks map[string]Pinger) *testServer {
	gin.SetMode(gin.TestMode)
	s := &testServer{
		router:  gin.New(),
		stock:   &stubStock{},
		orders:  &stubOrders{},
		catalog: &stubCatalog{},
		reports: &stubReports{},
	}
	NewHandler(Deps{
		Stock:     s.stock,
		Orders:    s.orders,
		Catalog:   s.catalog,
		Reports:   s.reports,
		Inventory: stubInventory{},
		Checks:    checks,
	}).SetupRoutes(s.router)
	return s
}

func (s *testServer) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(map[string]Pinger{"db": stubPinger{}})
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/ready", "").Code)

	s = newTestServer(map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{err: errors.New("refused")}})
	w := s.do(http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, map[string]interface{}{"redis": "refused"}, decode(t, w)["errors"])
}

func TestStockWebhookStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		result service.StockResult
		want   int
	}{
		{"processed", service.StockResult{Status: models.WebhookStatusProcessed, EventID: 1}, http.StatusOK},
		{"warnings", service.StockResult{Status: models.WebhookStatusProcessedWithWarnings, EventID: 1}, http.StatusOK},
		{"accepted", service.StockResult{Status: service.StockStatusAccepted, EventID: 1}, http.StatusAccepted},
		{"malformed", service.StockResult{Status: models.WebhookStatusFailed, Reason: service.ReasonMalformed, Message: "Empty stock payload"}, http.StatusBadRequest},
		{"storage", service.StockResult{Status: models.WebhookStatusFailed, Reason: service.ReasonStorage, Message: "boom"}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(nil)
			s.stock.result = tc.result
			w := s.do(http.MethodPost, "/webhooks/keycrm", `{"sku":"A"}`, "keycrm-webhook", "stocks.update")
			assert.Equal(t, tc.want, w.Code)
			assert.Equal(t, "stocks.update", s.stock.eventType)
			assert.Equal(t, `{"sku":"A"}`, s.stock.body)
		})
	}
}

func TestStockWebhookFailureBody(t *testing.T) {
	s := newTestServer(nil)
	s.stock.result = service.StockResult{
		Status:  models.WebhookStatusFailed,
		EventID: 9,
		Reason:  service.ReasonMalformed,
		Message: "Invalid stock numbers",
		Invalid: []service.LineRef{{Index: 1}},
	}
	w := s.do(http.MethodPost, "/webhooks/keycrm", `{}`)
	body := decode(t, w)
	assert.Equal(t, "Invalid stock numbers", body["error"])
	assert.Equal(t, float64(9), body["eventId"])
	assert.Len(t, body["invalid"], 1)
}

func TestOrderWebhook(t *testing.T) {
	s := newTestServer(nil)
	s.orders.result = service.OrderResult{Status: models.WebhookStatusProcessed, OrderID: 5, ItemsRecorded: 2}
	w := s.do(http.MethodPost, "/webhooks/keycrm/orders", `{}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["itemsRecorded"])

	s.orders.result = service.OrderResult{Status: models.WebhookStatusFailed, Reason: service.ReasonMalformed, Message: "Invalid order id", EventID: 3}
	w = s.do(http.MethodPost, "/webhooks/keycrm/orders", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid order id", decode(t, w)["error"])
}

func TestSalesAndProducts(t *testing.T) {
	s := newTestServer(nil)

	w := s.do(http.MethodGet, "/api/products", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["products"], 1)

	w = s.do(http.MethodGet, "/api/sales?productId=7&slug=x", "")
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, s.reports.filter.ProductID)
	assert.Equal(t, int64(7), *s.reports.filter.ProductID)
	assert.Equal(t, "x", s.reports.filter.Slug)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/sales?productId=abc", "").Code)
}

func TestVariants(t *testing.T) {
	s := newTestServer(nil)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/variants", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/variants?productId=x", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/variants?productId=2", "").Code)

	w := s.do(http.MethodGet, "/api/variants?productId=1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["variants"], 1)

	w = s.do(http.MethodPost, "/api/variants", `{"productId": 1, "colorName": "Чорний", "sizeLabel": "M", "sku": "KUF001BKM", "offerId": 12}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(42), decode(t, w)["variantId"])
	assert.Equal(t, int64(12), *s.catalog.lastReq.OfferID)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/variants", `{"offerId": "twelve"}`).Code)

	s.catalog.variantErr = service.ErrColorNotFound
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/variants", `{"productId": 1}`).Code)
	s.catalog.variantErr = service.ErrInvalidRequest
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/variants", `{}`).Code)
	s.catalog.variantErr = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, s.do(http.MethodPost, "/api/variants", `{}`).Code)
}

func TestEnsureCatalog(t *testing.T) {
	s := newTestServer(nil)
	assert.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/catalog", `{"product": "Худі", "colors": ["Чорний"]}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/catalog", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/catalog", `not json`).Code)
}

func TestInventory(t *testing.T) {
	s := newTestServer(nil)
	w := s.do(http.MethodGet, "/api/inventory/1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(4), decode(t, w)["in_stock"])

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/inventory/3", "").Code)
	assert.Equal(t, http.StatusInternalServerError, s.do(http.MethodGet, "/api/inventory/2", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/inventory/abc", "").Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(nil)
	w := s.do(http.MethodOptions, "/webhooks/keycrm", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
