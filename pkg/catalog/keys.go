package catalog

import (
	"context"
	"sort"
	"strings"
)

// Canonical attribute keys accepted by query_products.
const (
	AttrType   = "type"
	AttrColor  = "color"
	AttrGender = "gender"
	AttrSeason = "season"
	AttrUsage  = "usage"
)

// attributeKeys maps caller-facing attribute names to the canonical keys
// the tool server accepts. The tool server maps those onto catalog columns
// (type -> article_type, color -> base_colour).
var attributeKeys = map[string]string{
	"type":         AttrType,
	"style":        AttrType,
	"kind":         AttrType,
	"article_type": AttrType,
	"articletype":  AttrType,
	"color":        AttrColor,
	"colour":       AttrColor,
	"base_colour":  AttrColor,
	"base_color":   AttrColor,
	"gender":       AttrGender,
	"season":       AttrSeason,
	"usage":        AttrUsage,
}

// vocabularyField names where the tool server exposes the valid values of
// each canonical key.
var vocabularyField = map[string]string{
	AttrType:   ToolGetProductTypes,
	AttrColor:  "colors",
	AttrGender: "genders",
	AttrSeason: "seasons",
	AttrUsage:  "usages",
}

// requiredTools must be advertised by tools/list.
var requiredTools = []string{
	ToolGetCategories,
	ToolGetProductTypes,
	ToolGetAttributes,
	ToolQueryProducts,
	ToolQueryStock,
}

// CanonicalAttribute resolves a caller-facing key. ok is false for keys
// outside the table.
func CanonicalAttribute(key string) (canonical string, ok bool) {
	canonical, ok = attributeKeys[strings.ToLower(strings.TrimSpace(key))]
	return canonical, ok
}

// CanonicalAttributes returns the canonical keys in sorted order.
func CanonicalAttributes() []string {
	keys := make([]string, 0, len(vocabularyField))
	for k := range vocabularyField {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NormalizeAttributes rewrites keys through the table. Unknown keys are
// lower-cased and passed through. Empty values are dropped.
func NormalizeAttributes(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if c, ok := CanonicalAttribute(k); ok {
			out[c] = v
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

// ValidateAttributeKeys checks the key table against what the tool server
// exposes: every canonical key needs a vocabulary source, and every tool
// the dispatcher calls must be advertised.
func ValidateAttributeKeys(ctx context.Context, p Provider) error {
	tools, err := p.ListTools(ctx)
	if err != nil {
		return err
	}
	advertised := make(map[string]bool, len(tools))
	for _, t := range tools {
		advertised[t.Name] = true
	}

	var kerr KeyTableError
	for _, name := range requiredTools {
		if !advertised[name] {
			kerr.MissingTools = append(kerr.MissingTools, name)
		}
	}

	attrs, err := p.Attributes(ctx, "", "")
	if err != nil {
		return err
	}
	for _, key := range CanonicalAttributes() {
		field := vocabularyField[key]
		if field == ToolGetProductTypes {
			if !advertised[ToolGetProductTypes] {
				kerr.MissingFields = append(kerr.MissingFields, key)
			}
			continue
		}
		if !attrs.Has(field) {
			kerr.MissingFields = append(kerr.MissingFields, key)
		}
	}

	if len(kerr.MissingFields) > 0 || len(kerr.MissingTools) > 0 {
		return &kerr
	}
	return nil
}
