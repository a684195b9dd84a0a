package interfaces

import (
	"context"
	"errors"
)

// ErrUnknownBackend is returned for an undeclared embedding backend key
var ErrUnknownBackend = errors.New("unknown embedding backend")

// EmbeddingService converts texts into fixed-dimension vectors via a
// backend selected by key. Backend instances are constructed lazily once
// per key and are read-only afterwards, so concurrent jobs share them
// without locking.
type EmbeddingService interface {
	Embed(ctx context.Context, texts []string, backendKey string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string, backendKey string) ([]float32, error)

	// ModelIdentifier returns the model recorded on chunks for a backend key
	ModelIdentifier(backendKey string) (string, error)
	Dimension(backendKey string) (int, error)
}
