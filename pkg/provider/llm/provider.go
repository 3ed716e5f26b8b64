// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI GPT-4o,
// Anthropic Claude, or a local Ollama instance) and exposes a uniform
// completion interface so the lyrics pipeline can clean pages and extract
// vocabulary without coupling to any specific SDK.
//
// Implementors must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import "context"

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit and may differ between
// providers for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens. Some providers return it
	// directly rather than computing it from the parts.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Prompt must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is an optional high-priority instruction injected before the
	// prompt. Providers without a dedicated system slot prepend it as a
	// "system"-role message.
	SystemPrompt string

	// Prompt is the user-role input that drives the response.
	Prompt string

	// Temperature controls output randomness in the range [0.0, 2.0]. Lower
	// values produce more deterministic outputs. The pipeline uses ≈0.7 for
	// both cleaning and extraction.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the model's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Complete sends req to the model and waits for the full response. It returns
// an error if the request fails or if ctx is cancelled before completion.
// Callers treat any error as "LLM unavailable" and fall back to deterministic
// behaviour where the pipeline defines one.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
