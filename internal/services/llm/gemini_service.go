package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/shibazach/rag-local-dev-sub000/internal/common"
	"github.com/shibazach/rag-local-dev-sub000/internal/interfaces"
)

// GeminiService implements the LLMService interface using the Google genai
// client. It provides text generation and embedding via Gemini models.
type GeminiService struct {
	config  *common.GeminiConfig
	logger  arbor.ILogger
	client  *genai.Client
	timeout time.Duration
	retry   *RetryConfig
}

// Compile-time assertion
var _ interfaces.LLMService = (*GeminiService)(nil)

// NewGeminiService creates a new Gemini LLM service instance
func NewGeminiService(cfg *common.GeminiConfig, logger arbor.ILogger) (*GeminiService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (set GEMINI_API_KEY or gemini.api_key in config)")
	}

	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "gemini-embedding-001"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	service := &GeminiService{
		config:  cfg,
		logger:  logger,
		client:  client,
		timeout: common.ParseDurationOr(cfg.Timeout, 5*time.Minute),
		retry:   NewDefaultRetryConfig(),
	}

	logger.Info().
		Str("model", cfg.Model).
		Str("embed_model", cfg.EmbedModel).
		Str("timeout", service.timeout.String()).
		Msg("Gemini LLM service initialized")

	return service, nil
}

func (s *GeminiService) GenerateText(ctx context.Context, req *interfaces.GenerateRequest) (*interfaces.GenerateResponse, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}

	model := req.Model
	if model == "" {
		model = s.config.Model
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	temperature := s.config.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temperature),
	}
	if req.SystemInstruction != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(req.MaxTokens)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(req.Prompt, genai.RoleUser),
	}

	startTime := time.Now()
	var resp *genai.GenerateContentResponse
	err := s.withRetry(timeoutCtx, "generate", func() error {
		var callErr error
		resp, callErr = s.client.Models.GenerateContent(timeoutCtx, model, contents, genConfig)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("text generation failed: %w", err)
	}

	var text strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					text.WriteString(part.Text)
				}
			}
			if text.Len() > 0 {
				break
			}
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("no text returned from model %s", model)
	}

	s.logger.Debug().
		Str("model", model).
		Int("prompt_length", len(req.Prompt)).
		Int("response_length", text.Len()).
		Int64("duration_ms", time.Since(startTime).Milliseconds()).
		Msg("Gemini text generation completed")

	return &interfaces.GenerateResponse{
		Text:     text.String(),
		Provider: "gemini",
		Model:    model,
	}, nil
}

func (s *GeminiService) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty for embedding generation")
	}
	if model == "" {
		model = s.config.EmbedModel
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	startTime := time.Now()
	var result *genai.EmbedContentResponse
	err := s.withRetry(timeoutCtx, "embed", func() error {
		var callErr error
		result, callErr = s.client.Models.EmbedContent(timeoutCtx, model, contents, nil)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	if result == nil || len(result.Embeddings) != len(texts) {
		got := 0
		if result != nil {
			got = len(result.Embeddings)
		}
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), got)
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, embedding := range result.Embeddings {
		vectors[i] = embedding.Values
	}

	s.logger.Debug().
		Str("model", model).
		Int("texts", len(texts)).
		Int("dimension", len(vectors[0])).
		Int64("duration_ms", time.Since(startTime).Milliseconds()).
		Msg("Gemini embedding batch completed")

	return vectors, nil
}

// HealthCheck exercises the text model with a minimal probe
func (s *GeminiService) HealthCheck(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("genai client is not initialized")
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := s.client.Models.GenerateContent(probeCtx, s.config.Model,
		[]*genai.Content{genai.NewContentFromText("ping", genai.RoleUser)}, nil)
	if err != nil {
		return fmt.Errorf("gemini probe failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return fmt.Errorf("gemini probe returned empty response")
	}
	return nil
}

// withRetry runs an API call with rate-limit-aware backoff. Non-rate-limit
// errors and context cancellation fail immediately.
func (s *GeminiService) withRetry(ctx context.Context, operation string, call func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if !IsRateLimitError(lastErr) {
			return lastErr
		}

		backoff := s.retry.CalculateBackoff(attempt, ExtractRetryDelay(lastErr))
		s.logger.Warn().
			Str("operation", operation).
			Int("attempt", attempt+1).
			Str("backoff", backoff.String()).
			Err(lastErr).
			Msg("Gemini rate limit hit, backing off")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("rate limit persisted after %d retries: %w", s.retry.MaxRetries, lastErr)
}
