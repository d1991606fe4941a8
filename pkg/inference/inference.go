// Package inference provides the chat-completion backends used for intent
// classification.
//
// Every backend implements Provider, so the classifier can switch between
// OpenAI-compatible endpoints, Anthropic and Gemini, or chain two of them
// so a second backend answers when the first is down.
//
//	client, _ := inference.NewClient(
//	    inference.WithAPIKey(cfg.OpenAIAPIKey),
//	    inference.WithModel("gpt-4o-mini"),
//	)
//	defer client.Close()
//
//	resp, _ := client.Chat(ctx, &inference.ChatRequest{
//	    Messages: []inference.Message{
//	        inference.NewSystemMessage(prompt),
//	        inference.NewUserMessage("do you have product 12345 in stock?"),
//	    },
//	    JSONMode: true,
//	})
package inference

import "context"

// Provider is the chat completion interface.
type Provider interface {
	// Name identifies the backend in logs and errors.
	Name() string

	// Chat generates a response from a sequence of messages.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// ChatRequest for chat completions.
type ChatRequest struct {
	Messages []Message

	// Model overrides the provider default.
	Model string

	// MaxTokens limits the response length. Zero uses the provider default.
	MaxTokens int

	// Temperature overrides the provider default when non-nil.
	Temperature *float64

	// JSONMode asks the backend for a single JSON object.
	JSONMode bool
}

// ChatResponse from chat completion.
type ChatResponse struct {
	Message      Message
	FinishReason string
	Usage        Usage
	Model        string
	LatencyMs    int64
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Float returns a pointer to f, for ChatRequest.Temperature.
func Float(f float64) *float64 {
	return &f
}
