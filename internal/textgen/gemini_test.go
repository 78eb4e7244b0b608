package textgen

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/jobagent-cli/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const okBody = `{"candidates":[{"content":{"role":"model","parts":[{"text":"Dear hiring team"}]},"finishReason":"STOP"}],
"usageMetadata":{"promptTokenCount":12,"candidatesTokenCount":4,"totalTokenCount":16}}`

// setupGemini points a GeminiModel at a mock API server.
func setupGemini(t *testing.T, handler http.HandlerFunc) (*GeminiModel, *observer.ObservedLogs) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	core, logs := observer.New(zap.InfoLevel)
	m, err := NewGeminiModel(context.Background(), config.LLMConfig{
		APIKey:     "test-key",
		Model:      "gemini-2.5-flash",
		Endpoint:   server.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	}, zap.New(core))
	require.NoError(t, err)
	m.initialInterval = time.Millisecond
	return m, logs
}

func TestNewGeminiModel_RequiresKey(t *testing.T) {
	_, err := NewGeminiModel(context.Background(), config.LLMConfig{Model: "m"}, zap.NewNop())
	assert.ErrorContains(t, err, "API Key is required")
}

func TestGeminiGenerate_Success(t *testing.T) {
	var body string
	m, logs := setupGemini(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash:generateContent"), r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, okBody)
	})

	out, err := m.Generate(context.Background(), Request{System: "be brief", Prompt: "write", JSON: true, Temperature: 0.2})
	require.NoError(t, err)
	assert.Equal(t, "Dear hiring team", out)

	assert.Contains(t, body, "be brief")
	assert.Contains(t, body, "application/json")
	require.Equal(t, 1, logs.FilterMessage("LLM generation complete").Len())
	assert.Equal(t, int32(16), logs.FilterMessage("LLM generation complete").All()[0].ContextMap()["total_tokens"])
}

func TestGeminiGenerate_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	m, _ := setupGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`)
			return
		}
		_, _ = io.WriteString(w, okBody)
	})

	out, err := m.Generate(context.Background(), Request{Prompt: "write"})
	require.NoError(t, err)
	assert.Equal(t, "Dear hiring team", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGeminiGenerate_PermanentErrors(t *testing.T) {
	t.Run("bad request", func(t *testing.T) {
		var calls atomic.Int32
		m, _ := setupGemini(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
		})
		_, err := m.Generate(context.Background(), Request{Prompt: "write"})
		assert.ErrorContains(t, err, "API key not valid")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("safety block", func(t *testing.T) {
		m, _ := setupGemini(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"candidates":[{"finishReason":"SAFETY"}]}`)
		})
		_, err := m.Generate(context.Background(), Request{Prompt: "write"})
		assert.ErrorContains(t, err, "blocked")
	})
}
