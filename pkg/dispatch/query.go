package dispatch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/teslashibe/go-retail-voice/pkg/catalog"
	"github.com/teslashibe/go-retail-voice/pkg/intent"
)

var pricePattern = regexp.MustCompile(`\$?\s*(\d+(?:\.\d+)?)`)

// BuildQuery turns product_search params into a query_products request.
//
// Attributes are copied as given, except keys containing "price" whose
// string value is a phrase like "under $60": those set maxPrice ("under",
// "less") or minPrice ("over", "more") and are left out of the
// attributes. Root-level minPrice, maxPrice and inStock win over values
// extracted from phrases. limit <= 0 selects DefaultLimit.
func BuildQuery(params intent.Params, limit int) catalog.ProductQuery {
	if limit <= 0 {
		limit = DefaultLimit
	}
	q := catalog.ProductQuery{
		Category:   params.String("category"),
		SearchTerm: params.String("searchTerm"),
		Limit:      limit,
	}

	if attrs := params.Map("attributes"); len(attrs) > 0 {
		q.Attributes = make(map[string]string, len(attrs))
		for k, v := range attrs {
			if s, ok := v.(string); ok && strings.Contains(strings.ToLower(k), "price") {
				applyPricePhrase(&q, s)
				continue
			}
			if v == nil {
				continue
			}
			q.Attributes[k] = attributeString(v)
		}
		if len(q.Attributes) == 0 {
			q.Attributes = nil
		}
	}

	if v, ok := params.Float("minPrice"); ok {
		q.MinPrice = &v
	}
	if v, ok := params.Float("maxPrice"); ok {
		q.MaxPrice = &v
	}
	if v, ok := params.Bool("inStock"); ok {
		q.InStock = &v
	}
	if v, ok := params.Float("limit"); ok && v > 0 {
		q.Limit = int(v)
	}
	return q
}

func applyPricePhrase(q *catalog.ProductQuery, phrase string) {
	m := pricePattern.FindStringSubmatch(phrase)
	if m == nil {
		return
	}
	price, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return
	}
	lower := strings.ToLower(phrase)
	switch {
	case strings.Contains(lower, "under") || strings.Contains(lower, "less"):
		q.MaxPrice = &price
	case strings.Contains(lower, "over") || strings.Contains(lower, "more"):
		q.MinPrice = &price
	}
}

func attributeString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
