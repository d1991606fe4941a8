// Package catalog is the client side of the retail tool server.
//
// The tool server speaks MCP (JSON-RPC 2.0 over HTTP POST /mcp) and exposes
// the catalog as named tools (get_categories, get_product_types,
// get_attributes, query_products, query_stock) plus policy documents as
// resources under file://docs/. Provider wraps those calls in typed Go
// methods; every tool result arrives as JSON text in content[0].
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Tool names exposed by the tool server.
const (
	ToolGetCategories   = "get_categories"
	ToolGetProductTypes = "get_product_types"
	ToolGetAttributes   = "get_attributes"
	ToolQueryProducts   = "query_products"
	ToolQueryStock      = "query_stock"

	// ToolReadResource is not a tool on the wire; it names resources/read
	// in logs and debug output.
	ToolReadResource = "read_resource"
)

// Provider is the ToolProvider capability.
type Provider interface {
	Categories(ctx context.Context) ([]string, error)
	ProductTypes(ctx context.Context, category string) ([]ProductType, error)
	Attributes(ctx context.Context, category, productType string) (Attributes, error)
	QueryProducts(ctx context.Context, q ProductQuery) ([]Product, error)
	Stock(ctx context.Context, productID string) (Stock, error)
	ReadResource(ctx context.Context, uri string) (string, error)
	ListTools(ctx context.Context) ([]Tool, error)
	Close() error
}

// Tool describes one tool advertised by tools/list.
type Tool struct {
	Name        string
	Description string
}

// ProductType is one row of get_product_types.
type ProductType struct {
	Category string
	Type     string
	Count    int
}

// UnmarshalJSON accepts both the catalog column names
// (master_category, article_type, product_count) and the short form
// (category, type, count). Counts may arrive as strings.
func (p *ProductType) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Category = firstString(raw, "master_category", "category")
	p.Type = firstString(raw, "article_type", "type")
	p.Count = toInt(firstValue(raw, "product_count", "count"))
	return nil
}

// Attributes is the result of get_attributes.
type Attributes struct {
	Colors  []string `json:"colors"`
	Genders []string `json:"genders"`
	Seasons []string `json:"seasons"`
	Usages  []string `json:"usages"`

	present map[string]bool
}

// UnmarshalJSON records which vocabulary fields the server returned.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.present = make(map[string]bool, len(raw))
	for k := range raw {
		a.present[k] = true
	}
	type plain Attributes
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	a.Colors, a.Genders, a.Seasons, a.Usages = p.Colors, p.Genders, p.Seasons, p.Usages
	return nil
}

// Has reports whether the vocabulary field (colors, genders, seasons,
// usages) was exposed by the server.
func (a Attributes) Has(field string) bool {
	if a.present != nil {
		return a.present[field]
	}
	switch field {
	case "colors":
		return a.Colors != nil
	case "genders":
		return a.Genders != nil
	case "seasons":
		return a.Seasons != nil
	case "usages":
		return a.Usages != nil
	}
	return false
}

// ProductQuery is the argument object of query_products.
type ProductQuery struct {
	Category   string            `json:"category,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	MinPrice   *float64          `json:"minPrice,omitempty"`
	MaxPrice   *float64          `json:"maxPrice,omitempty"`
	InStock    *bool             `json:"inStock,omitempty"`
	SearchTerm string            `json:"searchTerm,omitempty"`
	Limit      int               `json:"limit,omitempty"`
}

// Product is one catalog row. The field set depends on the catalog, so it
// stays a loose map with accessors for the fields the assistant speaks.
type Product map[string]any

// Name returns the first non-empty display name field.
func (p Product) Name() string {
	if s := firstString(p, "productName", "product_name", "productDisplayName", "product_display_name"); s != "" {
		return s
	}
	return "Unknown product"
}

// Price returns the price as spoken text, or "price not available".
func (p Product) Price() string {
	switch v := p["price"].(type) {
	case float64:
		if v == 0 {
			break
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		if v != "" {
			return v
		}
	}
	return "price not available"
}

// Stock is the result of query_stock.
type Stock struct {
	InStock  bool
	Quantity int
}

// UnmarshalJSON tolerates numeric fields encoded as strings.
func (s *Stock) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := firstValue(raw, "inStock", "in_stock").(type) {
	case bool:
		s.InStock = v
	case string:
		s.InStock = strings.EqualFold(v, "true")
	}
	s.Quantity = toInt(firstValue(raw, "quantity", "stock"))
	return nil
}

// PolicyURI returns the resource URI of a policy document.
func PolicyURI(policyType string) string {
	return fmt.Sprintf("file://docs/%s_policy.txt", policyType)
}

// FAQURI is the general FAQ document.
const FAQURI = "file://docs/faq.txt"

func firstValue(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(n))
		return i
	}
	return 0
}
