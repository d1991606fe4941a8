package intent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type rawResult struct {
	Intent     *string          `json:"intent"`
	Confidence *float64         `json:"confidence"`
	Params     json.RawMessage  `json:"params"`
	Reasoning  *json.RawMessage `json:"reasoning"`
}

// ParseResult validates raw classifier output. It takes the span from the
// first '{' to the last '}', so prose or code fences around the object are
// ignored.
//
// A stock result whose productId is not purely numeric keeps its intent
// but loses the productId, so the dispatcher asks the customer for it.
func ParseResult(raw string) (Result, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return Result{}, fmt.Errorf("%w: no JSON object in %q", ErrMalformed, truncate(raw, 80))
	}

	var r rawResult
	if err := json.Unmarshal([]byte(raw[start:end+1]), &r); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if r.Intent == nil {
		return Result{}, fmt.Errorf("%w: missing intent", ErrMalformed)
	}
	in, ok := Parse(*r.Intent)
	if !ok {
		return Result{}, fmt.Errorf("%w: unknown intent %q", ErrMalformed, *r.Intent)
	}

	if r.Confidence == nil {
		return Result{}, fmt.Errorf("%w: missing confidence", ErrMalformed)
	}
	if *r.Confidence < 0 || *r.Confidence > 1 {
		return Result{}, fmt.Errorf("%w: confidence %v out of range", ErrMalformed, *r.Confidence)
	}

	if r.Reasoning == nil {
		return Result{}, fmt.Errorf("%w: missing reasoning", ErrMalformed)
	}
	var reasoning string
	if err := json.Unmarshal(*r.Reasoning, &reasoning); err != nil {
		return Result{}, fmt.Errorf("%w: reasoning is not a string", ErrMalformed)
	}

	params := Params{}
	if len(r.Params) > 0 && string(r.Params) != "null" {
		if err := json.Unmarshal(r.Params, &params); err != nil {
			return Result{}, fmt.Errorf("%w: params is not an object", ErrMalformed)
		}
	}

	if in == Stock {
		if id := params.String("productId"); id != "" && !isDigits(id) {
			delete(params, "productId")
		}
	}

	return Result{
		Intent:     in,
		Confidence: *r.Confidence,
		Params:     params,
		Reasoning:  reasoning,
	}, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(n, "$")), 64)
		return f, err == nil
	}
	return 0, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
