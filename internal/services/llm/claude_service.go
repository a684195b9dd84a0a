package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/shibazach/rag-local-dev-sub000/internal/common"
	"github.com/shibazach/rag-local-dev-sub000/internal/interfaces"
)

// ClaudeService implements the LLMService interface using the Anthropic API.
// Claude has no embedding endpoint, so Embed always fails; embedding-backed
// components must route embedding work to a Gemini or hash backend.
type ClaudeService struct {
	config    *common.ClaudeConfig
	logger    arbor.ILogger
	client    anthropic.Client
	timeout   time.Duration
	maxTokens int
}

// Compile-time assertion
var _ interfaces.LLMService = (*ClaudeService)(nil)

// NewClaudeService creates a new Claude LLM service instance
func NewClaudeService(cfg *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY or claude.api_key in config)")
	}

	if cfg.Model == "" {
		cfg.Model = "claude-haiku-4-5"
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
	)

	service := &ClaudeService{
		config:    cfg,
		logger:    logger,
		client:    client,
		timeout:   common.ParseDurationOr(cfg.Timeout, 5*time.Minute),
		maxTokens: maxTokens,
	}

	logger.Info().
		Str("model", cfg.Model).
		Int("max_tokens", maxTokens).
		Str("timeout", service.timeout.String()).
		Msg("Claude LLM service initialized")

	return service, nil
}

func (s *ClaudeService) GenerateText(ctx context.Context, req *interfaces.GenerateRequest) (*interfaces.GenerateResponse, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}

	model := req.Model
	if model == "" {
		model = s.config.Model
	}
	maxTokens := s.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	temperature := s.config.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(float64(temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.SystemInstruction},
		}
	}

	startTime := time.Now()
	message, err := s.client.Messages.New(timeoutCtx, params)
	if err != nil {
		return nil, fmt.Errorf("text generation failed: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
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
		Msg("Claude text generation completed")

	return &interfaces.GenerateResponse{
		Text:     text.String(),
		Provider: "claude",
		Model:    model,
	}, nil
}

// Embed is unsupported: Anthropic exposes no embedding endpoint
func (s *ClaudeService) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	return nil, fmt.Errorf("claude provider does not support embeddings; configure a gemini or hash backend")
}

// HealthCheck exercises the model with a minimal probe
func (s *ClaudeService) HealthCheck(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	message, err := s.client.Messages.New(probeCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: 16,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("claude probe failed: %w", err)
	}
	if message == nil || len(message.Content) == 0 {
		return fmt.Errorf("claude probe returned empty response")
	}
	return nil
}
