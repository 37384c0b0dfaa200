package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultOpenAIEndpoint is the public chat-completions URL.
const DefaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"

// DefaultOpenAIModel matches the model the planner was tuned against.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI is a Caller for any API that speaks the OpenAI chat-completions
// wire format (OpenAI, Azure OpenAI, OpenRouter, vLLM, Ollama). Replies are
// requested as a JSON object at temperature 0.
type OpenAI struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// OpenAIOption configures an OpenAI caller.
type OpenAIOption func(*OpenAI)

// WithEndpoint overrides the chat-completions URL.
func WithEndpoint(endpoint string) OpenAIOption {
	return func(o *OpenAI) {
		if endpoint != "" {
			o.endpoint = endpoint
		}
	}
}

// WithModel overrides the model name.
func WithModel(model string) OpenAIOption {
	return func(o *OpenAI) {
		if model != "" {
			o.model = model
		}
	}
}

// WithHTTPClient replaces the HTTP client. A nil client is ignored.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(o *OpenAI) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithTimeout sets the HTTP client timeout. Zero means no timeout. The
// client is copied so a client passed to WithHTTPClient is not modified.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(o *OpenAI) {
		c := *o.httpClient
		c.Timeout = d
		o.httpClient = &c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) OpenAIOption {
	return func(o *OpenAI) { o.logger = l }
}

// NewOpenAI creates an OpenAI-compatible caller authenticated with apiKey.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAI {
	o := &OpenAI{
		endpoint:   DefaultOpenAIEndpoint,
		model:      DefaultOpenAIModel,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiRequest struct {
	Model          string          `json:"model"`
	Messages       []openaiMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *openaiFormat   `json:"response_format,omitempty"`
}

type openaiFormat struct {
	Type string `json:"type"`
}

type openaiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends the prompt and returns the first choice's content.
func (o *OpenAI) Complete(ctx context.Context, prompt Prompt) (string, error) {
	wire := openaiRequest{
		Model:          o.model,
		Temperature:    0,
		ResponseFormat: &openaiFormat{Type: "json_object"},
	}
	if prompt.System != "" {
		wire.Messages = append(wire.Messages, openaiMessage{Role: "system", Content: prompt.System})
	}
	wire.Messages = append(wire.Messages, openaiMessage{Role: "user", Content: prompt.User})

	body, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("llm/openai: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm/openai: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	started := time.Now()
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm/openai: sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", readProviderError(resp)
	}

	var decoded openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("llm/openai: decoding response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("llm/openai: response has no choices")
	}

	o.logger.Debug("model call completed",
		"model", decoded.Model,
		"finish_reason", decoded.Choices[0].FinishReason,
		"duration", time.Since(started))
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}

// readProviderError parses {"error":{"type":"...","message":"..."}} and
// falls back to the raw body.
func readProviderError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var wireError struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return &ProviderError{
			StatusCode: resp.StatusCode,
			Type:       wireError.Error.Type,
			Message:    wireError.Error.Message,
		}
	}
	return &ProviderError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
