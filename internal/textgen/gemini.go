// internal/textgen/gemini.go
package textgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/xkilldash9x/jobagent-cli/internal/config"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Request is a single prompt sent to a model.
type Request struct {
	System      string
	Prompt      string
	JSON        bool
	Temperature float32
	MaxTokens   int
}

// Model is the provider call the Generator is built on.
type Model interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeminiModel implements Model on the Gemini API.
type GeminiModel struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	retries int
	logger  *zap.Logger

	// initialInterval is the first retry delay.
	initialInterval time.Duration
}

// NewGeminiModel creates a client for cfg.Model.
func NewGeminiModel(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*GeminiModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm.model is required")
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{},
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiModel{
		client:          client,
		model:           cfg.Model,
		timeout:         timeout,
		retries:         cfg.MaxRetries,
		logger:          logger.Named("textgen.gemini"),
		initialInterval: 500 * time.Millisecond,
	}, nil
}

// Generate sends req, retrying rate limits, server errors and network
// failures up to the configured retry count.
func (m *GeminiModel) Generate(ctx context.Context, req Request) (string, error) {
	gcfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		gcfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		gcfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		gcfg.ResponseMIMEType = "application/json"
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = m.initialInterval
	eb.MaxInterval = 30 * time.Second
	eb.MaxElapsedTime = 2 * time.Minute
	retries := m.retries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)

	var text string
	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()

		start := time.Now()
		resp, err := m.client.Models.GenerateContent(callCtx, m.model, genai.Text(req.Prompt), gcfg)
		if err != nil {
			if ctx.Err() != nil || !retryable(err) {
				return backoff.Permanent(err)
			}
			m.logger.Warn("Transient error from Gemini, retrying", zap.Error(err))
			return err
		}
		if len(resp.Candidates) == 0 {
			return backoff.Permanent(errors.New("gemini API returned no candidates"))
		}
		switch reason := resp.Candidates[0].FinishReason; reason {
		case genai.FinishReasonSafety, genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent:
			return backoff.Permanent(fmt.Errorf("gemini API blocked the request (Reason: %s)", reason))
		}
		text = resp.Text()
		if text == "" {
			return fmt.Errorf("gemini API returned empty content (Reason: %s)", resp.Candidates[0].FinishReason)
		}

		fields := []zap.Field{zap.String("model", m.model), zap.Duration("duration", time.Since(start))}
		if u := resp.UsageMetadata; u != nil {
			fields = append(fields,
				zap.Int32("prompt_tokens", u.PromptTokenCount),
				zap.Int32("completion_tokens", u.CandidatesTokenCount),
				zap.Int32("total_tokens", u.TotalTokenCount),
			)
		}
		m.logger.Info("LLM generation complete", fields...)
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}
	return text, nil
}

func retryable(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	// Network failures and per-call deadlines.
	return true
}
