package keycrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sales-reconciler/internal/util"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// OrderDetails is the subset of the KeyCRM order resource used for enrichment
type OrderDetails struct {
	ID       int64                    `json:"id"`
	StatusID *int64                   `json:"status_id"`
	Products []map[string]interface{} `json:"products"`
}

// Client talks to the KeyCRM open API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a KeyCRM client. requestsPerMinute <= 0 disables the
// client-side rate limit.
func NewClient(baseURL, token string, timeout time.Duration, requestsPerMinute int) *Client {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     util.GetLogger(),
	}
}

// Enabled reports whether an API token is configured
func (c *Client) Enabled() bool {
	return c.token != ""
}

// FetchOrder loads an order with its products. It returns nil, nil when no
// token is configured.
func (c *Client) FetchOrder(ctx context.Context, orderID int64) (*OrderDetails, error) {
	if !c.Enabled() {
		return nil, nil
	}

	ctx, span := util.StartSpan(ctx, "KeyCRM.FetchOrder")
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	url := fmt.Sprintf("%s/order/%d?include=products.offer", c.baseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keycrm request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("keycrm request failed: %d %s: %s",
			resp.StatusCode, http.StatusText(resp.StatusCode), strings.TrimSpace(string(body)))
	}

	var details OrderDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("failed to decode order %d: %w", orderID, err)
	}

	c.logger.Debug("Fetched order details",
		zap.Int64("order_id", orderID),
		zap.Int("products", len(details.Products)))
	return &details, nil
}

// ProductLines returns the order's products for the item normalizer
func (d *OrderDetails) ProductLines() []interface{} {
	if d == nil {
		return nil
	}
	lines := make([]interface{}, 0, len(d.Products))
	for _, p := range d.Products {
		lines = append(lines, p)
	}
	return lines
}
