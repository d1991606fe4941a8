package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-retail-voice/pkg/catalog"
	"github.com/teslashibe/go-retail-voice/pkg/intent"
)

func ptr[T any](v T) *T { return &v }

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name   string
		params intent.Params
		want   catalog.ProductQuery
	}{
		{
			name: "price phrase under",
			params: intent.Params{
				"category":   "Apparel",
				"attributes": map[string]any{"color": "Blue", "price": "under $60"},
			},
			want: catalog.ProductQuery{
				Category:   "Apparel",
				Attributes: map[string]string{"color": "Blue"},
				MaxPrice:   ptr(60.0),
				Limit:      20,
			},
		},
		{
			name:   "price phrase over",
			params: intent.Params{"attributes": map[string]any{"priceRange": "more than 20.5 dollars"}},
			want:   catalog.ProductQuery{MinPrice: ptr(20.5), Limit: 20},
		},
		{
			name:   "price phrase without direction",
			params: intent.Params{"attributes": map[string]any{"price": "$30", "type": "Tshirts"}},
			want:   catalog.ProductQuery{Attributes: map[string]string{"type": "Tshirts"}, Limit: 20},
		},
		{
			name: "root values win",
			params: intent.Params{
				"attributes": map[string]any{"price": "under $60"},
				"maxPrice":   45.0,
				"inStock":    true,
				"searchTerm": "Nike",
				"limit":      5.0,
			},
			want: catalog.ProductQuery{
				MaxPrice:   ptr(45.0),
				InStock:    ptr(true),
				SearchTerm: "Nike",
				Limit:      5,
			},
		},
		{
			name:   "keys copied verbatim",
			params: intent.Params{"attributes": map[string]any{"Colour": "Red", "size": 42.0}},
			want:   catalog.ProductQuery{Attributes: map[string]string{"Colour": "Red", "size": "42"}, Limit: 20},
		},
		{
			name:   "empty",
			params: intent.Params{},
			want:   catalog.ProductQuery{Limit: 20},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildQuery(tt.params, 0))
		})
	}
}

func TestDispatchFixedIntents(t *testing.T) {
	m := catalog.NewMock()
	d := New(m)

	out := d.Dispatch(context.Background(), intent.General, nil)
	assert.Equal(t, GreetingText, out.ResponseText)
	assert.Empty(t, out.ToolName)

	out = d.Dispatch(context.Background(), intent.Unknown, nil)
	assert.Equal(t, ClarificationText, out.ResponseText)
	assert.Nil(t, out.Failure)

	out = d.Dispatch(context.Background(), intent.Intent("bogus"), nil)
	assert.Equal(t, ClarificationText, out.ResponseText)

	assert.Empty(t, m.Calls())
}

func TestDispatchCategories(t *testing.T) {
	t.Run("listed", func(t *testing.T) {
		m := catalog.NewMock()
		out := New(m).Dispatch(context.Background(), intent.Categories, nil)
		assert.Equal(t, "We have 3 main categories available: Apparel, Footwear, Accessories.", out.ResponseText)
		assert.Equal(t, catalog.ToolGetCategories, out.ToolName)
		assert.Equal(t, `["Apparel","Footwear","Accessories"]`, out.ToolResult)
	})

	t.Run("empty", func(t *testing.T) {
		m := catalog.NewMock()
		m.CategoriesFunc = func(ctx context.Context) ([]string, error) { return nil, nil }
		out := New(m).Dispatch(context.Background(), intent.Categories, nil)
		assert.Equal(t, NoCategoriesText, out.ResponseText)
		assert.Nil(t, out.Failure)
	})

	t.Run("unavailable", func(t *testing.T) {
		m := catalog.NewMock()
		m.CategoriesFunc = func(ctx context.Context) ([]string, error) {
			return nil, fmt.Errorf("%w: connection refused", catalog.ErrUnavailable)
		}
		out := New(m).Dispatch(context.Background(), intent.Categories, nil)
		assert.Equal(t, ErrorText, out.ResponseText)
		assert.ErrorIs(t, out.Failure, catalog.ErrUnavailable)
	})
}

func TestDispatchStock(t *testing.T) {
	t.Run("missing product id makes no call", func(t *testing.T) {
		m := catalog.NewMock()
		out := New(m).Dispatch(context.Background(), intent.Stock, intent.Params{})
		assert.Equal(t, NeedProductIDText, out.ResponseText)
		assert.Empty(t, m.Calls())
	})

	t.Run("in stock", func(t *testing.T) {
		m := catalog.NewMock()
		m.StockFunc = func(ctx context.Context, id string) (catalog.Stock, error) {
			return catalog.Stock{InStock: true, Quantity: 7}, nil
		}
		out := New(m).Dispatch(context.Background(), intent.Stock, intent.Params{"productId": "12345"})
		assert.Equal(t, "Yes, product 12345 is in stock. We have 7 units available.", out.ResponseText)
		assert.Equal(t, catalog.ToolQueryStock, out.ToolName)
		require.Len(t, m.CallsTo("Stock"), 1)
		assert.Equal(t, "12345", m.CallsTo("Stock")[0].Arg)
	})

	t.Run("out of stock", func(t *testing.T) {
		m := catalog.NewMock()
		m.StockFunc = func(ctx context.Context, id string) (catalog.Stock, error) {
			return catalog.Stock{}, nil
		}
		out := New(m).Dispatch(context.Background(), intent.Stock, intent.Params{"productId": 42.0})
		assert.Equal(t, "Sorry, product 42 is currently out of stock.", out.ResponseText)
	})

	t.Run("tool error", func(t *testing.T) {
		m := catalog.NewMock()
		m.StockFunc = func(ctx context.Context, id string) (catalog.Stock, error) {
			return catalog.Stock{}, &catalog.ToolError{Tool: catalog.ToolQueryStock, Message: "Product not found"}
		}
		out := New(m).Dispatch(context.Background(), intent.Stock, intent.Params{"productId": "9"})
		assert.Equal(t, "I couldn't find stock information for product ID 9. Please verify the product ID is correct.", out.ResponseText)
		assert.Nil(t, out.Failure)
	})

	t.Run("transport error", func(t *testing.T) {
		m := catalog.NewMock()
		m.StockFunc = func(ctx context.Context, id string) (catalog.Stock, error) {
			return catalog.Stock{}, catalog.ErrUnavailable
		}
		out := New(m).Dispatch(context.Background(), intent.Stock, intent.Params{"productId": "9"})
		assert.Equal(t, "I'm sorry, I couldn't retrieve stock information for product 9. Please verify the product ID.", out.ResponseText)
		assert.Nil(t, out.Failure)
	})
}

func TestDispatchPolicy(t *testing.T) {
	long := strings.Repeat("a", 900)

	t.Run("short document", func(t *testing.T) {
		m := catalog.NewMock()
		m.ReadResourceFunc = func(ctx context.Context, uri string) (string, error) {
			return "Returns within 30 days.", nil
		}
		out := New(m).Dispatch(context.Background(), intent.Policy, intent.Params{"policyType": "return"})
		assert.Equal(t, "Returns within 30 days.", out.ResponseText)
		assert.Equal(t, "file://docs/return_policy.txt", m.CallsTo("ReadResource")[0].Arg)
	})

	t.Run("long document truncated", func(t *testing.T) {
		m := catalog.NewMock()
		m.ReadResourceFunc = func(ctx context.Context, uri string) (string, error) { return long, nil }
		out := New(m).Dispatch(context.Background(), intent.Policy, nil)
		assert.Equal(t, strings.Repeat("a", 800)+MoreDetailsSuffix, out.ResponseText)
		assert.Equal(t, "file://docs/faq_policy.txt", m.CallsTo("ReadResource")[0].Arg)
	})

	t.Run("fallback to faq once", func(t *testing.T) {
		m := catalog.NewMock()
		m.ReadResourceFunc = func(ctx context.Context, uri string) (string, error) {
			if uri == catalog.FAQURI {
				return "We ship worldwide.", nil
			}
			return "", &catalog.ToolError{Tool: catalog.ToolReadResource, Message: "not found"}
		}
		out := New(m).Dispatch(context.Background(), intent.Policy, intent.Params{"policyType": "warranty"})
		assert.Equal(t, "Here's some general information that might help: We ship worldwide....", out.ResponseText)
		assert.Len(t, m.CallsTo("ReadResource"), 2)
	})

	t.Run("both fail", func(t *testing.T) {
		m := catalog.NewMock()
		out := New(m).Dispatch(context.Background(), intent.Policy, intent.Params{"policyType": "warranty"})
		assert.Equal(t, "I'm sorry, I couldn't find information about warranty policy. Please try rephrasing your question.", out.ResponseText)
		assert.Len(t, m.CallsTo("ReadResource"), 2)
		assert.Nil(t, out.Failure)
	})

	t.Run("prefix counts runes", func(t *testing.T) {
		m := catalog.NewMock()
		m.ReadResourceFunc = func(ctx context.Context, uri string) (string, error) { return "héllo wörld", nil }
		out := New(m, WithPolicyPrefix(5)).Dispatch(context.Background(), intent.Policy, nil)
		assert.Equal(t, "héllo"+MoreDetailsSuffix, out.ResponseText)
	})
}

func TestDispatchProductSearch(t *testing.T) {
	products := func(n int) []catalog.Product {
		out := make([]catalog.Product, n)
		for i := range out {
			out[i] = catalog.Product{"productName": fmt.Sprintf("Item %d", i+1), "price": float64(10 * (i + 1))}
		}
		return out
	}

	tests := []struct {
		name string
		n    int
		want string
	}{
		{"none", 0, NoProductsText},
		{"one", 1, "I found 1 product. Here are some options: Item 1 for $10."},
		{"three", 3, "I found 3 products. Here are some options: Item 1 for $10, Item 2 for $20, Item 3 for $30."},
		{"more", 5, "I found 5 products. Here are some options: Item 1 for $10, Item 2 for $20, Item 3 for $30, and more."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := catalog.NewMock()
			m.QueryProductsFunc = func(ctx context.Context, q catalog.ProductQuery) ([]catalog.Product, error) {
				return products(tt.n), nil
			}
			out := New(m).Dispatch(context.Background(), intent.ProductSearch, intent.Params{"category": "Footwear"})
			assert.Equal(t, tt.want, out.ResponseText)
			assert.Equal(t, catalog.ToolQueryProducts, out.ToolName)
		})
	}

	t.Run("query normalised by provider", func(t *testing.T) {
		m := catalog.NewMock()
		New(m).Dispatch(context.Background(), intent.ProductSearch, intent.Params{
			"attributes": map[string]any{"colour": "Red", "price": "under $60"},
		})
		calls := m.CallsTo("QueryProducts")
		require.Len(t, calls, 1)
		q := calls[0].Arg.(catalog.ProductQuery)
		assert.Equal(t, map[string]string{"color": "Red"}, q.Attributes)
		require.NotNil(t, q.MaxPrice)
		assert.Equal(t, 60.0, *q.MaxPrice)
		assert.Equal(t, 20, q.Limit)
	})

	t.Run("malformed", func(t *testing.T) {
		m := catalog.NewMock()
		m.QueryProductsFunc = func(ctx context.Context, q catalog.ProductQuery) ([]catalog.Product, error) {
			return nil, fmt.Errorf("%s: %w", catalog.ToolQueryProducts, catalog.ErrMalformed)
		}
		out := New(m).Dispatch(context.Background(), intent.ProductSearch, nil)
		assert.Equal(t, ErrorText, out.ResponseText)
		assert.ErrorIs(t, out.Failure, catalog.ErrMalformed)
	})
}

func TestDispatchRecoversPanic(t *testing.T) {
	m := catalog.NewMock()
	m.CategoriesFunc = func(ctx context.Context) ([]string, error) { panic("nil map") }
	out := New(m).Dispatch(context.Background(), intent.Categories, nil)
	assert.Equal(t, ErrorText, out.ResponseText)
	assert.True(t, errors.Is(out.Failure, ErrPanic))
}
