package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/teslashibe/go-retail-voice/pkg/inference"
)

const systemPromptTemplate = `You are an intent classifier for a retail voice assistant. Analyze the customer's query and determine their intent.

Available intents:
- "stock": the customer wants stock availability for a specific numeric product ID
- "policy": the customer asks about store policies (returns, refund, shipping, warranty, exchange)
- "product_search": the customer wants to find products by attributes (category, type, color, price, gender, brand) or asks about stock of products by description
- "categories": the customer wants to know which categories or product types are sold
- "general": greeting or small talk
- "unknown": the intent cannot be determined

=== CATALOG VOCABULARY ===
Categories (use EXACTLY these values): {{json .Categories}}
Product types (use EXACTLY these values): {{json .ProductTypes}}
Colors (use EXACTLY these values): {{json .Colors}}
Genders (use EXACTLY these values): {{json .Genders}}
Seasons (use EXACTLY these values): {{json .Seasons}}
Usages (use EXACTLY these values): {{json .Usages}}

Extraction rules:
1. product_search: extract every relevant attribute using exact vocabulary values.
   - category: one of {{join .Categories ", "}}
   - attributes.type, attributes.color, attributes.gender, attributes.season, attributes.usage
   - searchTerm: brand or product name mentioned by the customer
   - maxPrice from "under $X" or "less than $X"; minPrice from "over $X" or "more than $X"
   - inStock: true when the customer asks about availability or "in stock"
2. stock: only when the customer names a numeric product ID (e.g. "product 12345"); put it in productId.
3. categories: only when the customer asks what is sold without looking for specific products.
4. policy: put the policy kind (return, refund, shipping, warranty, exchange) in policyType.

Matching rules:
- map singular or loose words to the closest vocabulary value ("backpack" -> "Backpacks")
- a general mention of a category ("all footwear", "shoes") sets category, not attributes.type
- always extract brand names as searchTerm

Examples:
- "Do you have black shirts in stock?" -> {"intent":"product_search","params":{"attributes":{"type":"Shirts","color":"Black"},"inStock":true}}
- "Show me all footwear products" -> {"intent":"product_search","params":{"category":"Footwear"}}
- "What categories are available?" -> {"intent":"categories","params":{}}
- "Tell me about the refund policy" -> {"intent":"policy","params":{"policyType":"refund"}}
- "Do you have product 12345 in stock?" -> {"intent":"stock","params":{"productId":"12345"}}

Respond with one JSON object: {"intent":"...","confidence":0.95,"params":{...},"reasoning":"..."}`

var systemPrompt = template.Must(template.New("classifier").Funcs(template.FuncMap{
	"join": strings.Join,
	"json": func(v []string) string {
		if v == nil {
			v = []string{}
		}
		b, _ := json.Marshal(v)
		return string(b)
	},
}).Parse(systemPromptTemplate))

// BuildPrompt renders the grounded system prompt for vocab.
func BuildPrompt(vocab Vocabulary) (string, error) {
	var sb strings.Builder
	if err := systemPrompt.Execute(&sb, vocab); err != nil {
		return "", fmt.Errorf("intent: render prompt: %w", err)
	}
	return sb.String(), nil
}

// LLMClassifier classifies with a chat model at temperature 0.
type LLMClassifier struct {
	provider inference.Provider
	model    string
	logger   *slog.Logger
}

// LLMOption configures an LLMClassifier.
type LLMOption func(*LLMClassifier)

// WithModel overrides the provider's default model.
func WithModel(model string) LLMOption {
	return func(c *LLMClassifier) { c.model = model }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) LLMOption {
	return func(c *LLMClassifier) { c.logger = l }
}

// NewLLMClassifier creates a classifier backed by provider.
func NewLLMClassifier(provider inference.Provider, opts ...LLMOption) *LLMClassifier {
	c := &LLMClassifier{provider: provider, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "intent.llm")
	return c
}

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, transcript string, vocab Vocabulary) (Result, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return Result{}, ErrEmptyTranscript
	}

	prompt, err := BuildPrompt(vocab)
	if err != nil {
		return Result{}, err
	}

	resp, err := c.provider.Chat(ctx, &inference.ChatRequest{
		Messages: []inference.Message{
			inference.NewSystemMessage(prompt),
			inference.NewUserMessage(fmt.Sprintf("Customer query: %q", transcript)),
		},
		Model:       c.model,
		Temperature: inference.Float(0),
		JSONMode:    true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("intent: classify: %w", err)
	}

	res, err := ParseResult(resp.Message.Content)
	if err != nil {
		return Result{}, err
	}
	c.logger.Debug("classified",
		"intent", res.Intent,
		"confidence", res.Confidence,
		"reasoning", res.Reasoning,
		"latency_ms", resp.LatencyMs,
	)
	return res, nil
}

var _ Classifier = (*LLMClassifier)(nil)
