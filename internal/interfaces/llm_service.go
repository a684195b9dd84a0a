package interfaces

import (
	"context"
)

// GenerateRequest is a provider-agnostic text generation request
type GenerateRequest struct {
	Prompt            string
	SystemInstruction string
	Model             string // Empty selects the configured default provider/model
	Temperature       float32
	MaxTokens         int
}

// GenerateResponse is a provider-agnostic text generation response
type GenerateResponse struct {
	Text     string
	Provider string
	Model    string
}

// LLMService generates text and embeddings through a configured provider.
// Implementations are safe for concurrent use.
type LLMService interface {
	GenerateText(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
	Embed(ctx context.Context, texts []string, model string) ([][]float32, error)
	HealthCheck(ctx context.Context) error
}
