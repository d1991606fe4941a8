package catalog

import (
	"context"
	"sync"
)

// Mock implements Provider for testing. Unset function fields return
// empty results.
type Mock struct {
	CategoriesFunc    func(ctx context.Context) ([]string, error)
	ProductTypesFunc  func(ctx context.Context, category string) ([]ProductType, error)
	AttributesFunc    func(ctx context.Context, category, productType string) (Attributes, error)
	QueryProductsFunc func(ctx context.Context, q ProductQuery) ([]Product, error)
	StockFunc         func(ctx context.Context, productID string) (Stock, error)
	ReadResourceFunc  func(ctx context.Context, uri string) (string, error)
	ListToolsFunc     func(ctx context.Context) ([]Tool, error)

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation. Arg holds the main argument
// (product id, URI, category or the query).
type MockCall struct {
	Method string
	Arg    any
}

// NewMock returns a mock backed by a small fixed catalog.
func NewMock() *Mock {
	return &Mock{
		CategoriesFunc: func(ctx context.Context) ([]string, error) {
			return []string{"Apparel", "Footwear", "Accessories"}, nil
		},
		ProductTypesFunc: func(ctx context.Context, category string) ([]ProductType, error) {
			return []ProductType{
				{Category: "Footwear", Type: "Sports Shoes", Count: 12},
				{Category: "Apparel", Type: "Tshirts", Count: 40},
			}, nil
		},
		AttributesFunc: func(ctx context.Context, category, productType string) (Attributes, error) {
			return Attributes{
				Colors:  []string{"Red", "Blue", "Black"},
				Genders: []string{"Men", "Women"},
				Seasons: []string{"Summer", "Winter"},
				Usages:  []string{"Casual", "Sports"},
			}, nil
		},
		ListToolsFunc: func(ctx context.Context) ([]Tool, error) {
			tools := make([]Tool, len(requiredTools))
			for i, n := range requiredTools {
				tools[i] = Tool{Name: n}
			}
			return tools, nil
		},
	}
}

// Categories calls CategoriesFunc.
func (m *Mock) Categories(ctx context.Context) ([]string, error) {
	m.record("Categories", nil)
	if m.CategoriesFunc != nil {
		return m.CategoriesFunc(ctx)
	}
	return nil, nil
}

// ProductTypes calls ProductTypesFunc.
func (m *Mock) ProductTypes(ctx context.Context, category string) ([]ProductType, error) {
	m.record("ProductTypes", category)
	if m.ProductTypesFunc != nil {
		return m.ProductTypesFunc(ctx, category)
	}
	return nil, nil
}

// Attributes calls AttributesFunc.
func (m *Mock) Attributes(ctx context.Context, category, productType string) (Attributes, error) {
	m.record("Attributes", category)
	if m.AttributesFunc != nil {
		return m.AttributesFunc(ctx, category, productType)
	}
	return Attributes{}, nil
}

// QueryProducts normalises attribute keys like MCPClient, then calls
// QueryProductsFunc.
func (m *Mock) QueryProducts(ctx context.Context, q ProductQuery) ([]Product, error) {
	q.Attributes = NormalizeAttributes(q.Attributes)
	m.record("QueryProducts", q)
	if m.QueryProductsFunc != nil {
		return m.QueryProductsFunc(ctx, q)
	}
	return nil, nil
}

// Stock calls StockFunc.
func (m *Mock) Stock(ctx context.Context, productID string) (Stock, error) {
	m.record("Stock", productID)
	if m.StockFunc != nil {
		return m.StockFunc(ctx, productID)
	}
	return Stock{}, nil
}

// ReadResource calls ReadResourceFunc.
func (m *Mock) ReadResource(ctx context.Context, uri string) (string, error) {
	m.record("ReadResource", uri)
	if m.ReadResourceFunc != nil {
		return m.ReadResourceFunc(ctx, uri)
	}
	return "", &ToolError{Tool: ToolReadResource, Message: "resource not found: " + uri}
}

// ListTools calls ListToolsFunc.
func (m *Mock) ListTools(ctx context.Context) ([]Tool, error) {
	m.record("ListTools", nil)
	if m.ListToolsFunc != nil {
		return m.ListToolsFunc(ctx)
	}
	return nil, nil
}

// Close is a no-op.
func (m *Mock) Close() error { return nil }

func (m *Mock) record(method string, arg any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Arg: arg})
}

// Calls returns a copy of the recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsTo returns the recorded calls of one method.
func (m *Mock) CallsTo(method string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MockCall
	for _, c := range m.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

var _ Provider = (*Mock)(nil)
