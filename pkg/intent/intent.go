// Package intent classifies a customer utterance into one of a closed set
// of intents and extracts the parameters the dispatcher needs.
//
// Classification is grounded: before each call the Adapter fetches the
// live catalog vocabulary (categories, product types, colours, genders,
// seasons, usages) so the model can only name values the catalog holds.
package intent

import (
	"context"
	"errors"
	"strings"
)

// Intent is the classified purpose of an utterance.
type Intent string

const (
	Stock         Intent = "stock"
	Policy        Intent = "policy"
	ProductSearch Intent = "product_search"
	Categories    Intent = "categories"
	General       Intent = "general"
	Unknown       Intent = "unknown"
)

var all = []Intent{Stock, Policy, ProductSearch, Categories, General, Unknown}

// All returns every intent in declaration order.
func All() []Intent {
	out := make([]Intent, len(all))
	copy(out, all)
	return out
}

// Parse resolves s (case-insensitive) to an Intent.
func Parse(s string) (Intent, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, in := range all {
		if string(in) == s {
			return in, true
		}
	}
	return Unknown, false
}

// IsOffTopic reports whether the intent counts against the patience limit.
func (i Intent) IsOffTopic() bool {
	return i == General || i == Unknown
}

func (i Intent) String() string { return string(i) }

// Params is the loosely typed parameter object produced by the classifier.
type Params map[string]any

// String returns params[key] as a string. Numbers are formatted without a
// trailing ".0" so a product id classified as 12345 reads "12345".
func (p Params) String(key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return formatNumber(v)
	case int:
		return formatNumber(float64(v))
	}
	return ""
}

// Float returns params[key] as a number. Numeric strings are accepted.
func (p Params) Float(key string) (float64, bool) {
	return toFloat(p[key])
}

// Bool returns params[key] as a bool.
func (p Params) Bool(key string) (bool, bool) {
	switch v := p[key].(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(v) {
		case "true", "yes":
			return true, true
		case "false", "no":
			return false, true
		}
	}
	return false, false
}

// Map returns params[key] as a nested object.
func (p Params) Map(key string) map[string]any {
	m, _ := p[key].(map[string]any)
	return m
}

// Vocabulary is the live catalog vocabulary the classifier is grounded on.
type Vocabulary struct {
	Categories   []string
	ProductTypes []string
	Colors       []string
	Genders      []string
	Seasons      []string
	Usages       []string
}

// Result is one classification.
type Result struct {
	Intent     Intent
	Confidence float64
	Params     Params
	Reasoning  string
}

// UnknownResult is the degraded classification.
func UnknownResult() Result {
	return Result{Intent: Unknown, Params: Params{}}
}

// Classifier turns a transcript into a Result.
type Classifier interface {
	Classify(ctx context.Context, transcript string, vocab Vocabulary) (Result, error)
}

// Sentinel errors.
var (
	// ErrMalformed is returned when the classifier output is not a valid
	// classification.
	ErrMalformed = errors.New("intent: malformed classifier output")

	// ErrEmptyTranscript is returned for blank input.
	ErrEmptyTranscript = errors.New("intent: empty transcript")
)
