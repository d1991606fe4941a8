package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const providerAnthropic = "anthropic"

// Anthropic implements Provider with the Anthropic Messages API.
type Anthropic struct {
	client anthropic.Client
	config *Config
	logger *slog.Logger
}

// NewAnthropic creates an Anthropic provider. The SDK's own retry loop is
// disabled; fallback is handled by Chain.
func NewAnthropic(opts ...Option) (*Anthropic, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = ""
	cfg.Model = "claude-3-5-haiku-latest"
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, WrapError(providerAnthropic, ErrNoAPIKey)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Anthropic{
		client: anthropic.NewClient(reqOpts...),
		config: cfg,
		logger: cfg.Logger.With("component", "inference.anthropic"),
	}, nil
}

// Name returns "anthropic".
func (a *Anthropic) Name() string { return providerAnthropic }

// Chat sends the conversation as a single Messages.New call.
func (a *Anthropic) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	system, rest := splitSystem(req.Messages)
	if req.JSONMode {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object and nothing else.")
	}

	messages := make([]anthropic.MessageParam, 0, len(rest))
	for _, m := range rest {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.config.model(req)),
		MaxTokens:   int64(a.config.maxTokens(req)),
		Messages:    messages,
		Temperature: anthropic.Float(a.config.temperature(req)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, a.wrap(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, WrapError(providerAnthropic, ErrEmptyResponse)
	}

	latency := time.Since(start).Milliseconds()
	usage := Usage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	a.logger.Debug("chat completion", "model", resp.Model, "tokens", usage.TotalTokens, "latency_ms", latency)

	return &ChatResponse{
		Message:      NewAssistantMessage(text.String()),
		FinishReason: string(resp.StopReason),
		Usage:        usage,
		Model:        string(resp.Model),
		LatencyMs:    latency,
	}, nil
}

// Health lists models to verify the key.
func (a *Anthropic) Health(ctx context.Context) error {
	if _, err := a.client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return a.wrap(err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no resources.
func (a *Anthropic) Close() error { return nil }

func (a *Anthropic) wrap(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Error(),
			Provider:   providerAnthropic,
		}
	}
	return WrapError(providerAnthropic, fmt.Errorf("messages: %w", err))
}

var _ Provider = (*Anthropic)(nil)
