// Package transcribe turns recorded commands into text with Deepgram's
// pre-recorded audio API.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultEndpoint = "https://api.deepgram.com/v1/listen"
	DefaultModel    = "nova-2"
	DefaultLanguage = "en"
	DefaultTimeout  = 45 * time.Second
	// DefaultContentType is sent when the caller does not know the format.
	DefaultContentType = "audio/wav"
)

// ErrNoAPIKey is returned before any request when no key is configured.
var ErrNoAPIKey = errors.New("transcribe: DEEPGRAM_API_KEY not set")

// StatusError is a non-200 response from Deepgram.
type StatusError struct {
	StatusCode int
	Body       string
}

func (err *StatusError) Error() string {
	return fmt.Sprintf("transcribe: deepgram HTTP %d: %s", err.StatusCode, err.Body)
}

// Deepgram posts audio to the listen endpoint and returns the first
// alternative's transcript.
type Deepgram struct {
	endpoint   string
	model      string
	language   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Deepgram client.
type Option func(*Deepgram)

// WithEndpoint overrides the listen URL.
func WithEndpoint(endpoint string) Option {
	return func(d *Deepgram) {
		if endpoint != "" {
			d.endpoint = endpoint
		}
	}
}

// WithModel overrides the speech model.
func WithModel(model string) Option {
	return func(d *Deepgram) {
		if model != "" {
			d.model = model
		}
	}
}

// WithLanguage overrides the spoken language.
func WithLanguage(language string) Option {
	return func(d *Deepgram) {
		if language != "" {
			d.language = language
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Deepgram) {
		if timeout > 0 {
			c := *d.httpClient
			c.Timeout = timeout
			d.httpClient = &c
		}
	}
}

// WithHTTPClient replaces the HTTP client. A nil client is ignored.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Deepgram) {
		if c != nil {
			d.httpClient = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Deepgram) { d.logger = l }
}

// NewDeepgram creates a client authenticated with apiKey.
func NewDeepgram(apiKey string, opts ...Option) *Deepgram {
	d := &Deepgram{
		endpoint:   DefaultEndpoint,
		model:      DefaultModel,
		language:   DefaultLanguage,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe uploads audio and returns the trimmed transcript. An empty
// transcript is returned as "" without error; deciding what silence means
// is up to the caller.
func (d *Deepgram) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	if d.apiKey == "" {
		return "", ErrNoAPIKey
	}
	if contentType == "" {
		contentType = DefaultContentType
	}

	u, err := url.Parse(d.endpoint)
	if err != nil {
		return "", fmt.Errorf("transcribe: invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("model", d.model)
	q.Set("smart_format", "true")
	q.Set("language", d.language)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("transcribe: creating request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", contentType)

	started := time.Now()
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var decoded listenResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("transcribe: decoding response: %w", err)
	}
	channels := decoded.Results.Channels
	if len(channels) == 0 || len(channels[0].Alternatives) == 0 {
		return "", errors.New("transcribe: no transcript in response")
	}

	alt := channels[0].Alternatives[0]
	d.logger.Debug("transcription completed",
		"bytes", len(audio),
		"confidence", alt.Confidence,
		"duration", time.Since(started))
	return strings.TrimSpace(alt.Transcript), nil
}
