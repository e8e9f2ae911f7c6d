// Package skucode decodes structured variant codes such as "KUF001BKXS/S" into
// a product family, color and size. Decoding is pure: it never touches storage.
package skucode

import (
	"regexp"
	"sort"
	"strings"
)

// SizeOrder is the canonical display order of size labels.
var SizeOrder = []string{"XS", "XS/S", "S", "M", "M/L", "L", "XL", "XL/XXL", "2XL", "XXL", "3XL"}

var productCodes = map[string]string{
	"001": "Худі Утеплений Kufaika Unisex",
	"002": "Худі Легкий Kufaika Unisex",
	"004": "Світшот Утеплений Kufaika Unisex",
	"005": "Світшот Легкий Kufaika Unisex",
	"006": "Футболка Premium Kufaika",
	"007": "Футболка OVERSIZE Kufaika",
	"008": "Футболка Relaxed Kufaika",
	"009": "Футболка Lightness Kufaika",
}

var colorCodes = map[string]string{
	"BK": "Чорний",
	"WH": "Білий",
	"OG": "Олива",
	"GY": "Сірий",
	"GR": "Сірий Грі",
	"BE": "Бежевий",
	"PK": "Ніжно-рожевий",
	"HA": "Хакі",
	"CY": "Койот",
	"OT": "Інший Колір",
}

var (
	nonAlnum  = regexp.MustCompile(`[^A-Z0-9]`)
	bodyShape = regexp.MustCompile(`^([A-Z]+)([0-9]+)([A-Z]+)$`)
)

// Decoded is the result of a successful decode. ProductName and ColorName are
// empty when the numeric or color code is not in the lookup tables.
type Decoded struct {
	Prefix      string `json:"prefix"`
	Numeric     string `json:"numeric"`
	ProductName string `json:"productName,omitempty"`
	ColorCode   string `json:"colorCode"`
	ColorName   string `json:"colorName,omitempty"`
	SizeLabel   string `json:"sizeLabel"`
}

type sizeAlias struct {
	label   string
	compact string
}

// Decoder matches codes against a fixed set of size aliases and lookup tables.
type Decoder struct {
	aliases  []sizeAlias
	products map[string]string
	colors   map[string]string
}

// NewDecoder builds a decoder for the given size labels using the built-in
// product and color tables.
func NewDecoder(sizes []string) *Decoder {
	aliases := make([]sizeAlias, 0, len(sizes))
	for _, label := range sizes {
		c := Compact(label)
		if c == "" {
			continue
		}
		aliases = append(aliases, sizeAlias{label: label, compact: c})
	}
	// longest alias first so "S" never shadows "XS/S"
	sort.SliceStable(aliases, func(i, j int) bool {
		return len(aliases[i].compact) > len(aliases[j].compact)
	})
	return &Decoder{aliases: aliases, products: productCodes, colors: colorCodes}
}

var defaultDecoder = NewDecoder(SizeOrder)

// Decode decodes code with the default size order.
func Decode(code string) (*Decoded, bool) {
	return defaultDecoder.Decode(code)
}

// Compact uppercases s and strips everything that is not A-Z or 0-9.
func Compact(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToUpper(strings.TrimSpace(s)), "")
}

// Decode returns the decoded triple, or false when code does not follow the
// prefix + number + color + size layout.
func (d *Decoder) Decode(code string) (*Decoded, bool) {
	compact := Compact(code)
	if compact == "" {
		return nil, false
	}

	var size *sizeAlias
	for i := range d.aliases {
		if strings.HasSuffix(compact, d.aliases[i].compact) {
			size = &d.aliases[i]
			break
		}
	}
	if size == nil {
		return nil, false
	}

	rest := compact[:len(compact)-len(size.compact)]
	m := bodyShape.FindStringSubmatch(rest)
	if m == nil {
		return nil, false
	}

	return &Decoded{
		Prefix:      m[1],
		Numeric:     m[2],
		ProductName: d.products[m[2]],
		ColorCode:   m[3],
		ColorName:   d.colors[m[3]],
		SizeLabel:   size.label,
	}, true
}

// SizeRank returns the position of label in SizeOrder, or -1 when unknown.
func SizeRank(label string) int {
	for i, s := range SizeOrder {
		if s == label {
			return i
		}
	}
	return -1
}
