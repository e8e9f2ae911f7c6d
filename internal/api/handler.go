package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/service"
	"sales-reconciler/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StockProcessor handles stock webhooks
type StockProcessor interface {
	Process(ctx context.Context, eventType string, raw []byte) service.StockResult
}

// OrderProcessor handles order webhooks
type OrderProcessor interface {
	Process(ctx context.Context, raw []byte) service.OrderResult
}

// Catalog is the admin write side
type Catalog interface {
	EnsureCatalog(ctx context.Context, req service.CatalogRequest) (*service.CatalogResult, error)
	UpsertVariant(ctx context.Context, req service.UpsertVariantRequest) (*models.Variant, bool, error)
}

// Reports is the dashboard read side
type Reports interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	ListVariants(ctx context.Context, productID int64) (*models.Product, []models.VariantDetail, error)
	SalesReport(ctx context.Context, filter service.ReportFilter) ([]service.ProductReport, error)
}

// Inventory serves cached stock levels
type Inventory interface {
	GetLevel(ctx context.Context, variantID int64) (*models.InventoryLevel, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	stock     StockProcessor
	orders    OrderProcessor
	catalog   Catalog
	reports   Reports
	inventory Inventory
	checks    map[string]Pinger
	logger    *zap.Logger
}

// Deps groups the collaborators of a Handler
type Deps struct {
	Stock     StockProcessor
	Orders    OrderProcessor
	Catalog   Catalog
	Reports   Reports
	Inventory Inventory
	Checks    map[string]Pinger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Deps) *Handler {
	return &Handler{
		stock:     deps.Stock,
		orders:    deps.Orders,
		catalog:   deps.Catalog,
		reports:   deps.Reports,
		inventory: deps.Inventory,
		checks:    deps.Checks,
		logger:    util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(h.requestLogger())
	router.Use(corsMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	webhooks := router.Group("/webhooks/keycrm")
	{
		webhooks.POST("", h.stockWebhook)
		webhooks.POST("/orders", h.orderWebhook)
	}

	api := router.Group("/api")
	{
		api.GET("/products", h.listProducts)
		api.GET("/sales", h.listSales)
		api.GET("/variants", h.listVariants)
		api.POST("/variants", h.upsertVariant)
		api.POST("/catalog", h.ensureCatalog)
		api.GET("/inventory/:variantId", h.getInventory)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failures := gin.H{}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"errors": failures,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// stockWebhook handles KeyCRM stock notifications
func (h *Handler) stockWebhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	eventType := strings.TrimSpace(c.GetHeader("keycrm-webhook"))
	result := h.stock.Process(c.Request.Context(), eventType, raw)

	switch {
	case result.Status == models.WebhookStatusFailed:
		body := gin.H{"error": result.Message}
		if result.EventID != 0 {
			body["eventId"] = result.EventID
		}
		if len(result.Invalid) > 0 {
			body["invalid"] = result.Invalid
		}
		c.JSON(statusForReason(result.Reason), body)
	case result.Status == service.StockStatusAccepted:
		c.JSON(http.StatusAccepted, result)
	default:
		c.JSON(http.StatusOK, result)
	}
}

// orderWebhook handles KeyCRM order status notifications
func (h *Handler) orderWebhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	result := h.orders.Process(c.Request.Context(), raw)
	if result.Status == models.WebhookStatusFailed {
		body := gin.H{"error": result.Message}
		if result.EventID != 0 {
			body["eventId"] = result.EventID
		}
		c.JSON(statusForReason(result.Reason), body)
		return
	}

	c.JSON(http.StatusOK, result)
}

// listProducts returns the catalog products
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.reports.ListProducts(c.Request.Context())
	if err != nil {
		h.internalError(c, "Failed to list products", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// listSales returns the sales report, optionally for one product
func (h *Handler) listSales(c *gin.Context) {
	var filter service.ReportFilter
	if raw := c.Query("productId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid productId"})
			return
		}
		filter.ProductID = &id
	}
	filter.Slug = c.Query("slug")

	reports, err := h.reports.SalesReport(c.Request.Context(), filter)
	if err != nil {
		h.internalError(c, "Failed to build sales report", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": reports})
}

// listVariants returns the variants of a product
func (h *Handler) listVariants(c *gin.Context) {
	raw := c.Query("productId")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing productId"})
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid productId"})
		return
	}

	product, variants, err := h.reports.ListVariants(c.Request.Context(), id)
	if err != nil {
		h.adminError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": product, "variants": variants})
}

// upsertVariant binds identifiers to a product x color x size
func (h *Handler) upsertVariant(c *gin.Context) {
	var req service.UpsertVariantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	variant, created, err := h.catalog.UpsertVariant(c.Request.Context(), req)
	if err != nil {
		h.adminError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"variantId": variant.ID, "created": created})
}

// ensureCatalog creates a product with its colors and sizes
func (h *Handler) ensureCatalog(c *gin.Context) {
	var req service.CatalogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.catalog.EnsureCatalog(c.Request.Context(), req)
	if err != nil {
		h.adminError(c, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

// getInventory returns the latest stock level of a variant
func (h *Handler) getInventory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("variantId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid variantId"})
		return
	}

	level, err := h.inventory.GetLevel(c.Request.Context(), id)
	if err != nil {
		h.internalError(c, "Failed to get inventory", err)
		return
	}
	if level == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Inventory not found"})
		return
	}
	c.JSON(http.StatusOK, level)
}

func (h *Handler) adminError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, service.ErrColorNotFound),
		errors.Is(err, service.ErrSizeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.internalError(c, "Internal error", err)
	}
}

func (h *Handler) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   msg,
		"details": err.Error(),
	})
}

func statusForReason(reason service.Reason) int {
	if reason == service.ReasonMalformed {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// corsMiddleware lets the dashboard call the API from another origin
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, keycrm-webhook")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestLogger logs every request through the service logger
func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			h.logger.Warn("HTTP request", fields...)
			return
		}
		h.logger.Debug("HTTP request", fields...)
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
