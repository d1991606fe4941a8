// Package dispatch maps a classified intent onto one tool server
// operation and phrases the result as a spoken answer.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-retail-voice/pkg/catalog"
	"github.com/teslashibe/go-retail-voice/pkg/intent"
)

// Fixed responses.
const (
	GreetingText      = "Hello! I'm your retail assistant. I can help you search for products, check stock availability, or answer questions about our store policies. How can I assist you today?"
	ClarificationText = "I'm sorry, I didn't understand your request. Could you please rephrase?"
	ErrorText         = "I'm sorry, I encountered an error while processing your request. Please try again."
	NoCategoriesText  = "I couldn't retrieve the categories at this moment."
	NeedProductIDText = "I need a product ID to check stock. Could you provide the product ID?"
	NoProductsText    = "I couldn't find any products matching your criteria. Would you like to try a different search?"
	MoreDetailsSuffix = "... Would you like more details?"
)

const (
	DefaultLimit        = 20
	DefaultPolicyPrefix = 800
	DefaultPolicyType   = "faq"
)

// ErrPanic marks a recovered panic inside a dispatch.
var ErrPanic = errors.New("dispatch: panic")

// Outcome is the result of one dispatch.
type Outcome struct {
	// ToolName is the tool invoked, empty when none was.
	ToolName string

	// ToolResult is the raw tool payload, or the error text when the tool
	// failed.
	ToolResult string

	ResponseText string

	// Failure is set when the request could not be served. The response
	// text is still a valid apology.
	Failure error
}

// Dispatcher routes intents to the tool server.
type Dispatcher struct {
	provider     catalog.Provider
	limit        int
	policyPrefix int
	logger       *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDefaultLimit sets the product search limit used when the classifier
// gives none.
func WithDefaultLimit(n int) Option {
	return func(d *Dispatcher) { d.limit = n }
}

// WithPolicyPrefix sets how many characters of a policy are spoken.
func WithPolicyPrefix(n int) Option {
	return func(d *Dispatcher) { d.policyPrefix = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a Dispatcher.
func New(p catalog.Provider, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		provider:     p,
		limit:        DefaultLimit,
		policyPrefix: DefaultPolicyPrefix,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatch")
	return d
}

// Dispatch serves one intent. It always returns a non-empty ResponseText.
func (d *Dispatcher) Dispatch(ctx context.Context, in intent.Intent, params intent.Params) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch panic", "intent", in, "panic", r)
			out = Outcome{
				ToolName:     out.ToolName,
				ResponseText: ErrorText,
				Failure:      fmt.Errorf("%w: %v", ErrPanic, r),
			}
		}
	}()

	if params == nil {
		params = intent.Params{}
	}

	switch in {
	case intent.General:
		return Outcome{ResponseText: GreetingText}
	case intent.Categories:
		return d.categories(ctx)
	case intent.Stock:
		return d.stock(ctx, params)
	case intent.Policy:
		return d.policy(ctx, params)
	case intent.ProductSearch:
		return d.productSearch(ctx, params)
	default:
		return Outcome{ResponseText: ClarificationText}
	}
}

func (d *Dispatcher) fail(tool string, err error) Outcome {
	d.logger.Error("tool call failed", "tool", tool, "error", err)
	return Outcome{
		ToolName:     tool,
		ToolResult:   err.Error(),
		ResponseText: ErrorText,
		Failure:      err,
	}
}

func (d *Dispatcher) categories(ctx context.Context) Outcome {
	cats, err := d.provider.Categories(ctx)
	if err != nil {
		return d.fail(catalog.ToolGetCategories, err)
	}
	out := Outcome{ToolName: catalog.ToolGetCategories, ToolResult: marshal(cats)}
	if len(cats) == 0 {
		out.ResponseText = NoCategoriesText
		return out
	}
	out.ResponseText = fmt.Sprintf("We have %d main categories available: %s.", len(cats), strings.Join(cats, ", "))
	return out
}

func (d *Dispatcher) stock(ctx context.Context, params intent.Params) Outcome {
	id := params.String("productId")
	if id == "" {
		return Outcome{ResponseText: NeedProductIDText}
	}

	st, err := d.provider.Stock(ctx, id)
	out := Outcome{ToolName: catalog.ToolQueryStock}
	if err != nil {
		out.ToolResult = err.Error()
		var toolErr *catalog.ToolError
		if errors.As(err, &toolErr) {
			out.ResponseText = fmt.Sprintf("I couldn't find stock information for product ID %s. Please verify the product ID is correct.", id)
		} else {
			d.logger.Warn("stock lookup failed", "product_id", id, "error", err)
			out.ResponseText = fmt.Sprintf("I'm sorry, I couldn't retrieve stock information for product %s. Please verify the product ID.", id)
		}
		return out
	}

	out.ToolResult = marshal(map[string]any{"inStock": st.InStock, "quantity": st.Quantity})
	if st.InStock {
		out.ResponseText = fmt.Sprintf("Yes, product %s is in stock. We have %d units available.", id, st.Quantity)
	} else {
		out.ResponseText = fmt.Sprintf("Sorry, product %s is currently out of stock.", id)
	}
	return out
}

func (d *Dispatcher) policy(ctx context.Context, params intent.Params) Outcome {
	policyType := params.String("policyType")
	if policyType == "" {
		policyType = DefaultPolicyType
	}
	out := Outcome{ToolName: catalog.ToolReadResource}

	doc, err := d.provider.ReadResource(ctx, catalog.PolicyURI(policyType))
	if err == nil {
		out.ToolResult = doc
		if prefix, cut := truncate(doc, d.policyPrefix); cut {
			out.ResponseText = prefix + MoreDetailsSuffix
		} else {
			out.ResponseText = doc
		}
		return out
	}
	d.logger.Info("policy not found, falling back to FAQ", "policy_type", policyType, "error", err)

	faq, ferr := d.provider.ReadResource(ctx, catalog.FAQURI)
	if ferr != nil {
		d.logger.Warn("FAQ fallback failed", "error", ferr)
		out.ToolResult = err.Error()
		out.ResponseText = fmt.Sprintf("I'm sorry, I couldn't find information about %s policy. Please try rephrasing your question.", policyType)
		return out
	}
	prefix, _ := truncate(faq, d.policyPrefix)
	out.ToolResult = faq
	out.ResponseText = "Here's some general information that might help: " + prefix + "..."
	return out
}

func (d *Dispatcher) productSearch(ctx context.Context, params intent.Params) Outcome {
	q := BuildQuery(params, d.limit)
	d.logger.Debug("querying products", "query", marshal(q))

	products, err := d.provider.QueryProducts(ctx, q)
	if err != nil {
		return d.fail(catalog.ToolQueryProducts, err)
	}
	out := Outcome{ToolName: catalog.ToolQueryProducts, ToolResult: marshal(products)}
	if len(products) == 0 {
		out.ResponseText = NoProductsText
		return out
	}

	n := len(products)
	shown := products
	if n > 3 {
		shown = products[:3]
	}
	items := make([]string, len(shown))
	for i, p := range shown {
		items[i] = fmt.Sprintf("%s for $%s", p.Name(), p.Price())
	}

	plural, more := "", ""
	if n > 1 {
		plural = "s"
	}
	if n > 3 {
		more = ", and more"
	}
	out.ResponseText = fmt.Sprintf("I found %d product%s. Here are some options: %s%s.", n, plural, strings.Join(items, ", "), more)
	return out
}

// truncate returns the first n runes of s and whether anything was cut.
func truncate(s string, n int) (string, bool) {
	r := []rune(s)
	if len(r) <= n {
		return s, false
	}
	return string(r[:n]), true
}

func marshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
