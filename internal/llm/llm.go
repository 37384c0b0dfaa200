// Package llm calls the language model that backs the parser's fallback
// tier. Two transports are provided: an OpenAI-compatible chat-completions
// endpoint over HTTP and an external CLI run once per prompt.
package llm

import (
	"context"
	"fmt"
)

// Prompt is one request to the model.
type Prompt struct {
	System string
	User   string
}

// Caller sends a prompt and returns the model's raw text reply.
type Caller interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, prompt Prompt) (string, error)

func (f CallerFunc) Complete(ctx context.Context, prompt Prompt) (string, error) {
	return f(ctx, prompt)
}

// ProviderError is a non-200 response from an HTTP provider.
type ProviderError struct {
	StatusCode int
	Type       string
	Message    string
}

func (err *ProviderError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsRateLimited reports an HTTP 429.
func (err *ProviderError) IsRateLimited() bool {
	return err.StatusCode == 429
}
