package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenAIComplete(t *testing.T) {
	var got openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"model":"gpt-4o-mini","choices":[{"message":{"content":"  {\"intent\":\"unknown\"}\n"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	caller := NewOpenAI("sk-test", WithEndpoint(server.URL), WithLogger(testLogger()))
	reply, err := caller.Complete(context.Background(), Prompt{System: "rules", User: "make coffee"})
	require.NoError(t, err)
	assert.Equal(t, `{"intent":"unknown"}`, reply)

	assert.Equal(t, DefaultOpenAIModel, got.Model)
	assert.Zero(t, got.Temperature)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "make coffee", got.Messages[1].Content)
}

func TestOpenAIProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer server.Close()

	_, err := NewOpenAI("", WithEndpoint(server.URL), WithModel("local"), WithLogger(testLogger())).
		Complete(context.Background(), Prompt{User: "x"})

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.True(t, perr.IsRateLimited())
	assert.Equal(t, "rate_limit_error", perr.Type)
	assert.Contains(t, err.Error(), "slow down")
}

func TestOpenAIPlainErrorBodyAndEmptyChoices(t *testing.T) {
	status := http.StatusBadGateway
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = io.WriteString(w, `{"choices":[]}`)
			return
		}
		_, _ = io.WriteString(w, "upstream down")
	}))
	defer server.Close()

	caller := NewOpenAI("k", WithEndpoint(server.URL), WithLogger(testLogger()))
	_, err := caller.Complete(context.Background(), Prompt{User: "x"})
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "upstream down", perr.Message)

	status = http.StatusOK
	_, err = caller.Complete(context.Background(), Prompt{User: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestOpenAITimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	caller := NewOpenAI("k", WithEndpoint(server.URL), WithTimeout(50*time.Millisecond), WithLogger(testLogger()))
	_, err := caller.Complete(context.Background(), Prompt{User: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sending request")
}

func TestOpenAIClientOptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"{}"}}]}`)
	}))
	defer server.Close()

	shared := server.Client()
	tests := []struct {
		name        string
		opts        []OpenAIOption
		wantTimeout time.Duration
	}{
		{name: "default client", wantTimeout: 30 * time.Second},
		{name: "custom client", opts: []OpenAIOption{WithHTTPClient(shared)}, wantTimeout: 0},
		{name: "custom client with timeout", opts: []OpenAIOption{WithHTTPClient(shared), WithTimeout(5 * time.Second)}, wantTimeout: 5 * time.Second},
		{name: "nil client keeps default", opts: []OpenAIOption{WithHTTPClient(nil), WithTimeout(time.Second)}, wantTimeout: time.Second},
		{name: "zero timeout disables it", opts: []OpenAIOption{WithTimeout(0)}, wantTimeout: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]OpenAIOption{WithEndpoint(server.URL), WithLogger(testLogger())}, tt.opts...)
			caller := NewOpenAI("k", opts...)
			require.NotNil(t, caller.httpClient)
			assert.Equal(t, tt.wantTimeout, caller.httpClient.Timeout)

			reply, err := caller.Complete(context.Background(), Prompt{User: "x"})
			require.NoError(t, err)
			assert.Equal(t, "{}", reply)
		})
	}
	assert.Zero(t, shared.Timeout, "WithTimeout must not modify a client passed in")
}

func TestCallerFunc(t *testing.T) {
	var c Caller = CallerFunc(func(ctx context.Context, p Prompt) (string, error) {
		return "echo:" + p.User, nil
	})
	out, err := c.Complete(context.Background(), Prompt{User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", out)
}

func TestCommand(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	c, err := NewCommand([]string{"sh", "-c", "cat"}, nil, testLogger())
	require.NoError(t, err)
	out, err := c.Complete(context.Background(), Prompt{System: "rules", User: "delay order 1"})
	require.NoError(t, err)
	assert.Equal(t, "rules\n\nCommand: delay order 1", out)

	failing, err := NewCommand([]string{"sh", "-c", "echo boom >&2; exit 3"}, nil, testLogger())
	require.NoError(t, err)
	_, err = failing.Complete(context.Background(), Prompt{User: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	silent, err := NewCommand([]string{"sh", "-c", "true"}, nil, testLogger())
	require.NoError(t, err)
	_, err = silent.Complete(context.Background(), Prompt{User: "x"})
	assert.ErrorContains(t, err, "no output")

	_, err = NewCommand(nil, nil, nil)
	assert.Error(t, err)
}
