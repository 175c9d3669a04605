package refine

import (
	"context"
	"net/http"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption of one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completer performs chat completions.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, Usage, error)
}

// CompleterOptions configures completion behavior.
type CompleterOptions struct {
	MaxTokens   int
	Temperature float64
}

// completerConfig holds parameters shared by the HTTP completers.
type completerConfig struct {
	http        *http.Client
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
}

// NewCompleter creates a Completer for the given provider type. Unknown
// providers default to the OpenAI format.
func NewCompleter(provider, apiKey, baseURL, model string, opts CompleterOptions) Completer {
	cfg := completerConfig{
		http:        &http.Client{},
		apiKey:      apiKey,
		baseURL:     baseURL,
		model:       model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}

	switch provider {
	case "claude":
		return &claudeCompleter{cfg: cfg}
	case "gemini":
		return &geminiCompleter{cfg: cfg}
	default:
		return newOpenAICompleter(cfg)
	}
}
