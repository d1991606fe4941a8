package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sony/gobreaker"
)

// ClientName is sent in the MCP initialize handshake.
const ClientName = "retail-voice"

// Options configures an MCPClient.
type Options struct {
	// Timeout bounds each JSON-RPC round trip.
	Timeout time.Duration

	// BreakerFailures is the number of consecutive transport failures
	// that opens the breaker. Zero disables the breaker.
	BreakerFailures int

	// BreakerTimeout is how long the breaker stays open.
	BreakerTimeout time.Duration

	Version string
	Logger  *slog.Logger
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:         10 * time.Second,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
		Version:         "dev",
		Logger:          slog.Default(),
	}
}

// MCPClient implements Provider against an MCP tool server over
// streamable HTTP. The initialize handshake runs lazily on first use, so
// the process can start while the tool server is still down.
type MCPClient struct {
	endpoint string
	client   *client.Client
	breaker  *gobreaker.CircuitBreaker
	opts     Options
	logger   *slog.Logger

	mu          sync.Mutex
	started     bool
	initialized bool
}

// NewMCPClient creates a client for the tool server at baseURL
// (e.g. "http://mcp:4000"); JSON-RPC requests go to baseURL + "/mcp".
func NewMCPClient(baseURL string, opts Options) (*MCPClient, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/mcp"

	c, err := client.NewStreamableHttpClient(endpoint, transport.WithHTTPTimeout(opts.Timeout))
	if err != nil {
		return nil, fmt.Errorf("catalog: create MCP client: %w", err)
	}

	logger := opts.Logger.With("component", "catalog.mcp")
	m := &MCPClient{
		endpoint: endpoint,
		client:   c,
		opts:     opts,
		logger:   logger,
	}

	if opts.BreakerFailures > 0 {
		failures := uint32(opts.BreakerFailures)
		m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "tool-server",
			MaxRequests: 1,
			Timeout:     opts.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return m, nil
}

// Endpoint returns the JSON-RPC URL.
func (m *MCPClient) Endpoint() string { return m.endpoint }

func (m *MCPClient) ensureInitialized(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return nil
	}

	if !m.started {
		if err := m.client.Start(ctx); err != nil {
			return fmt.Errorf("start transport: %w", err)
		}
		m.started = true
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: ClientName, Version: m.opts.Version}
	res, err := m.client.Initialize(ctx, req)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	m.initialized = true
	m.logger.Info("connected to tool server",
		"endpoint", m.endpoint,
		"server", res.ServerInfo.Name,
		"protocol", res.ProtocolVersion,
	)
	return nil
}

// guard runs fn behind the breaker. fn's transport errors count as
// failures; results (including tool-level errors) count as successes.
func (m *MCPClient) guard(ctx context.Context, fn func() (any, error)) (any, error) {
	run := func() (any, error) {
		if err := m.ensureInitialized(ctx); err != nil {
			return nil, err
		}
		return fn()
	}

	var (
		out any
		err error
	)
	if m.breaker == nil {
		out, err = run()
	} else {
		out, err = m.breaker.Execute(func() (interface{}, error) { return run() })
	}
	if err == nil {
		return out, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		m.logger.Debug("tool server call rejected", "reason", err)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// callTool invokes a tool and returns its text payload. A tool-reported
// failure comes back as *ToolError.
func (m *MCPClient) callTool(ctx context.Context, name string, args any) (string, error) {
	start := time.Now()
	out, err := m.guard(ctx, func() (any, error) {
		req := mcp.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = args
		return m.client.CallTool(ctx, req)
	})
	if err != nil {
		m.logger.Warn("tool call failed", "tool", name, "error", err)
		return "", err
	}

	res := out.(*mcp.CallToolResult)
	text := firstText(res.Content)
	m.logger.Debug("tool call", "tool", name, "bytes", len(text), "latency_ms", time.Since(start).Milliseconds())

	if res.IsError || strings.HasPrefix(text, "Error:") {
		return text, &ToolError{Tool: name, Message: strings.TrimSpace(strings.TrimPrefix(text, "Error:"))}
	}
	if text == "" {
		return "", fmt.Errorf("%s: %w", name, ErrEmptyResult)
	}
	return text, nil
}

func firstText(content []mcp.Content) string {
	for _, c := range content {
		switch t := c.(type) {
		case mcp.TextContent:
			return t.Text
		case *mcp.TextContent:
			return t.Text
		}
	}
	return ""
}

func decode[T any](tool, text string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return v, fmt.Errorf("%s: %w: %v", tool, ErrMalformed, err)
	}
	return v, nil
}

// Categories calls get_categories.
func (m *MCPClient) Categories(ctx context.Context) ([]string, error) {
	text, err := m.callTool(ctx, ToolGetCategories, map[string]any{})
	if err != nil {
		return nil, err
	}
	return decode[[]string](ToolGetCategories, text)
}

// ProductTypes calls get_product_types, optionally filtered by category.
func (m *MCPClient) ProductTypes(ctx context.Context, category string) ([]ProductType, error) {
	args := map[string]any{}
	if category != "" {
		args["category"] = category
	}
	text, err := m.callTool(ctx, ToolGetProductTypes, args)
	if err != nil {
		return nil, err
	}
	return decode[[]ProductType](ToolGetProductTypes, text)
}

// Attributes calls get_attributes, optionally filtered.
func (m *MCPClient) Attributes(ctx context.Context, category, productType string) (Attributes, error) {
	args := map[string]any{}
	if category != "" {
		args["category"] = category
	}
	if productType != "" {
		args["type"] = productType
	}
	text, err := m.callTool(ctx, ToolGetAttributes, args)
	if err != nil {
		return Attributes{}, err
	}
	return decode[Attributes](ToolGetAttributes, text)
}

// QueryProducts calls query_products. Attribute keys are normalised
// through the key table before sending.
func (m *MCPClient) QueryProducts(ctx context.Context, q ProductQuery) ([]Product, error) {
	q.Attributes = NormalizeAttributes(q.Attributes)
	text, err := m.callTool(ctx, ToolQueryProducts, q)
	if err != nil {
		return nil, err
	}
	return decode[[]Product](ToolQueryProducts, text)
}

// Stock calls query_stock.
func (m *MCPClient) Stock(ctx context.Context, productID string) (Stock, error) {
	text, err := m.callTool(ctx, ToolQueryStock, map[string]any{"productId": productID})
	if err != nil {
		return Stock{}, err
	}
	return decode[Stock](ToolQueryStock, text)
}

// ReadResource fetches a document via resources/read and returns the
// text of its first content entry.
func (m *MCPClient) ReadResource(ctx context.Context, uri string) (string, error) {
	out, err := m.guard(ctx, func() (any, error) {
		req := mcp.ReadResourceRequest{}
		req.Params.URI = uri
		res, err := m.client.ReadResource(ctx, req)
		if err != nil {
			// JSON-RPC errors for a missing document are not transport
			// failures and must not trip the breaker.
			return &ToolError{Tool: ToolReadResource, Message: err.Error()}, nil
		}
		return res, nil
	})
	if err != nil {
		return "", err
	}

	switch v := out.(type) {
	case *ToolError:
		return "", v
	case *mcp.ReadResourceResult:
		for _, c := range v.Contents {
			switch t := c.(type) {
			case mcp.TextResourceContents:
				return t.Text, nil
			case *mcp.TextResourceContents:
				return t.Text, nil
			}
		}
	}
	return "", fmt.Errorf("%s %s: %w", ToolReadResource, uri, ErrEmptyResult)
}

// ListTools calls tools/list.
func (m *MCPClient) ListTools(ctx context.Context) ([]Tool, error) {
	out, err := m.guard(ctx, func() (any, error) {
		return m.client.ListTools(ctx, mcp.ListToolsRequest{})
	})
	if err != nil {
		return nil, err
	}
	res := out.(*mcp.ListToolsResult)
	tools := make([]Tool, len(res.Tools))
	for i, t := range res.Tools {
		tools[i] = Tool{Name: t.Name, Description: t.Description}
	}
	return tools, nil
}

// Close closes the transport.
func (m *MCPClient) Close() error {
	return m.client.Close()
}

var _ Provider = (*MCPClient)(nil)
