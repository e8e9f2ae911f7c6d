package service

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Upstream payloads drift between snake_case, camelCase and nested shapes.
// Everything below turns a decoded JSON value into one canonical struct so the
// processors never look at alternate keys.

var ErrInvalidOrderID = errors.New("invalid order id")

// StockLine is one normalized line of a stock snapshot
type StockLine struct {
	Index     int
	OfferID   *int64
	SKU       *string
	InStock   float64
	InReserve float64
	Raw       interface{}
}

// Valid reports whether both stock numbers coerced to finite values
func (l StockLine) Valid() bool {
	return isFinite(l.InStock) && isFinite(l.InReserve)
}

// Ref is the variant reference carried by the line
func (l StockLine) Ref() VariantRef {
	return VariantRef{OfferID: l.OfferID, SKU: l.SKU}
}

// NormalizeStockPayload accepts a single object or an array of objects.
// A null, false or empty-string payload yields no lines.
func NormalizeStockPayload(payload interface{}) []StockLine {
	var entries []interface{}
	switch v := payload.(type) {
	case nil:
		return nil
	case bool:
		if !v {
			return nil
		}
		entries = []interface{}{v}
	case string:
		if v == "" {
			return nil
		}
		entries = []interface{}{v}
	case []interface{}:
		entries = v
	default:
		entries = []interface{}{v}
	}

	lines := make([]StockLine, 0, len(entries))
	for i, entry := range entries {
		obj, _ := entry.(map[string]interface{})
		raw := entry
		if raw == nil {
			raw = map[string]interface{}{}
		}

		line := StockLine{Index: i, Raw: raw}

		if rawOffer := pick(obj, "offer_id", "offerId"); rawOffer != nil && rawOffer != "" {
			line.OfferID = toInt64(rawOffer)
		}
		if rawSKU := pick(obj, "sku"); rawSKU != nil {
			line.SKU = nonEmpty(toString(rawSKU))
		}

		line.InStock = coerceNumber(pickOr(obj, 0.0, "in_stock", "inStock"))
		line.InReserve = coerceNumber(pickOr(obj, 0.0, "in_reserve", "inReserve"))
		lines = append(lines, line)
	}
	return lines
}

// OrderItem is one normalized order line
type OrderItem struct {
	SKU      *string
	OfferID  *int64
	Quantity float64
	Price    decimal.NullDecimal
	Raw      interface{}
}

// Ref is the variant reference carried by the item
func (i OrderItem) Ref() VariantRef {
	return VariantRef{OfferID: i.OfferID, SKU: i.SKU}
}

// normalizeOrderItem returns false for non-object entries
func normalizeOrderItem(raw interface{}) (OrderItem, bool) {
	obj, ok := raw.(map[string]interface{})
	if !ok || obj == nil {
		return OrderItem{}, false
	}

	item := OrderItem{Raw: obj}
	if sku := pick(obj, "sku", "offer_sku", "offerSku", "offer.sku", "product.sku", "variant.sku"); sku != nil {
		item.SKU = nonEmpty(toString(sku))
	}
	if offer := pick(obj, "offer_id", "offerId", "offer.id", "variant_id", "variant.id"); offer != nil && offer != "" {
		item.OfferID = toInt64(offer)
	}

	if qty := pick(obj, "quantity", "qty", "count", "amount", "number"); qty != nil {
		if q := coerceNumber(qty); isFinite(q) {
			item.Quantity = q
		}
	}

	if price := pick(obj, "price", "sum", "total", "amount_total", "cost"); price != nil {
		item.Price = toDecimal(price)
	}
	return item, true
}

// NormalizeOrderItems normalizes raw entries, dropping non-objects,
// zero-quantity lines and lines without any identifier.
func NormalizeOrderItems(raw []interface{}) []OrderItem {
	items := make([]OrderItem, 0, len(raw))
	for _, entry := range raw {
		item, ok := normalizeOrderItem(entry)
		if !ok || item.Quantity == 0 {
			continue
		}
		if item.SKU == nil && item.OfferID == nil {
			continue
		}
		items = append(items, item)
	}
	return items
}

// OrderWebhook is the canonical form of an order status webhook
type OrderWebhook struct {
	EventType        string
	OrderID          int64
	SourceUUID       *string
	GlobalSourceUUID *string
	StatusID         *int64
	StatusGroupID    *int64
	StatusLabel      *string
	OccurredAt       string
	Context          map[string]interface{}
	RawItems         []interface{}
}

// OrderEventType returns the event name of an order webhook body
func OrderEventType(body interface{}) string {
	obj, _ := body.(map[string]interface{})
	if ev := pick(obj, "event"); ev != nil {
		return toString(ev)
	}
	return "order.status"
}

// ParseOrderWebhook extracts the order envelope. It fails only when the order
// id is missing or not an integer.
func ParseOrderWebhook(body interface{}, now time.Time) (*OrderWebhook, error) {
	obj, _ := body.(map[string]interface{})
	ctxObj, _ := pick(obj, "context").(map[string]interface{})
	if ctxObj == nil {
		ctxObj = map[string]interface{}{}
	}

	rawID := pick(ctxObj, "id")
	if rawID == nil {
		rawID = pick(obj, "order_id", "id")
	}
	if rawID == nil {
		return nil, ErrInvalidOrderID
	}
	orderID := toInt64(rawID)
	if orderID == nil {
		return nil, ErrInvalidOrderID
	}

	hook := &OrderWebhook{
		EventType: OrderEventType(body),
		OrderID:   *orderID,
		Context:   ctxObj,
	}
	if v := pick(ctxObj, "source_uuid"); v != nil {
		hook.SourceUUID = strPtr(toString(v))
	}
	if v := pick(ctxObj, "global_source_uuid"); v != nil {
		hook.GlobalSourceUUID = strPtr(toString(v))
	}
	if v := pick(ctxObj, "status_id"); v != nil {
		hook.StatusID = toInt64(v)
	}
	if v := pick(ctxObj, "status_group_id"); v != nil {
		hook.StatusGroupID = toInt64(v)
	}
	if v := pick(ctxObj, "status_name", "status"); v != nil {
		hook.StatusLabel = strPtr(toString(v))
	}
	if v := pick(ctxObj, "status_changed_at", "updated_at"); v != nil {
		hook.OccurredAt = toString(v)
	} else {
		hook.OccurredAt = now.UTC().Format(time.RFC3339Nano)
	}

	for _, key := range []string{"items", "products", "positions", "lines"} {
		if list, ok := ctxObj[key].([]interface{}); ok {
			hook.RawItems = append(hook.RawItems, list...)
		}
	}
	if list, ok := pick(obj, "items").([]interface{}); ok {
		hook.RawItems = append(hook.RawItems, list...)
	}
	return hook, nil
}

// pick returns the first non-null value among dotted key paths
func pick(obj map[string]interface{}, paths ...string) interface{} {
	for _, path := range paths {
		if v := lookup(obj, path); v != nil {
			return v
		}
	}
	return nil
}

func pickOr(obj map[string]interface{}, def interface{}, paths ...string) interface{} {
	if v := pick(obj, paths...); v != nil {
		return v
	}
	return def
}

func lookup(obj map[string]interface{}, path string) interface{} {
	var cur interface{} = obj
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok || m == nil {
			return nil
		}
		cur = m[part]
	}
	return cur
}

// coerceNumber converts a JSON value the way a lenient numeric cast does:
// null and blank strings are zero, booleans are 0 or 1, anything unparseable
// is NaN.
func coerceNumber(v interface{}) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return n
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case []interface{}:
		switch len(n) {
		case 0:
			return 0
		case 1:
			return coerceNumber(n[0])
		}
	}
	return math.NaN()
}

// toInt64 returns nil unless v coerces to a finite integer
func toInt64(v interface{}) *int64 {
	f := coerceNumber(v)
	if !isFinite(f) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return nil
	}
	id := int64(f)
	return &id
}

func toDecimal(v interface{}) decimal.NullDecimal {
	if s, ok := v.(string); ok {
		if d, err := decimal.NewFromString(strings.TrimSpace(s)); err == nil {
			return decimal.NewNullDecimal(d)
		}
	}
	f := coerceNumber(v)
	if !isFinite(f) {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(f))
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case json.Number:
		return s.String()
	case nil:
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func strPtr(s string) *string {
	return &s
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// roundHalfUp rounds .5 towards positive infinity
func roundHalfUp(f float64) int64 {
	return int64(math.Floor(f + 0.5))
}
