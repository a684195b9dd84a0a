package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/shibazach/rag-local-dev-sub000/internal/common"
	"github.com/shibazach/rag-local-dev-sub000/internal/interfaces"
)

// NewLLMService creates the LLM service implementation selected by
// llm.default_provider in the configuration.
func NewLLMService(cfg *common.Config, logger arbor.ILogger) (interfaces.LLMService, error) {
	logger.Info().Str("provider", cfg.LLM.DefaultProvider).Msg("Initializing LLM service")

	switch cfg.LLM.DefaultProvider {
	case "gemini":
		return NewGeminiService(&cfg.Gemini, logger)
	case "claude":
		return NewClaudeService(&cfg.Claude, logger)
	default:
		return nil, fmt.Errorf("invalid LLM provider %q: must be 'gemini' or 'claude'", cfg.LLM.DefaultProvider)
	}
}
