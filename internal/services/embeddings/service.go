package embeddings

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/shibazach/rag-local-dev-sub000/internal/common"
	"github.com/shibazach/rag-local-dev-sub000/internal/interfaces"
)

// backend converts one batch of texts into fixed-dimension vectors
type backend interface {
	embedBatch(ctx context.Context, texts []string) ([][]float32, error)
	modelIdentifier() string
	dimension() int
}

// Service maps backend keys to lazily-constructed, cached backend
// instances. Instances are read-only after construction and shared across
// concurrent jobs.
type Service struct {
	config *common.EmbeddingsConfig
	llm    interfaces.LLMService
	logger arbor.ILogger

	mu       sync.Mutex
	backends map[string]backend
	device   string
}

// Compile-time assertion
var _ interfaces.EmbeddingService = (*Service)(nil)

// NewService creates the embedding service. The device preference is
// resolved once at construction from the free-memory floor.
func NewService(config *common.EmbeddingsConfig, llm interfaces.LLMService, logger arbor.ILogger) *Service {
	device := selectDevice(config.MinFreeMemoryMB)
	logger.Info().
		Str("device", device).
		Int("backends", len(config.Backends)).
		Int("batch_size", config.BatchSize).
		Msg("Embedding service initialized")

	return &Service{
		config:   config,
		llm:      llm,
		logger:   logger,
		backends: make(map[string]backend),
		device:   device,
	}
}

func (s *Service) Embed(ctx context.Context, texts []string, backendKey string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	be, err := s.backend(backendKey)
	if err != nil {
		return nil, err
	}

	batchSize := s.config.BatchSize
	if batchSize <= 0 {
		batchSize = len(texts)
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := s.embedWithRetry(ctx, be, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("backend %q failed at offset %d: %w", backendKey, start, err)
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

func (s *Service) EmbedOne(ctx context.Context, text string, backendKey string) ([]float32, error) {
	vectors, err := s.Embed(ctx, []string{text}, backendKey)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("backend %q returned %d vectors for one text", backendKey, len(vectors))
	}
	return vectors[0], nil
}

func (s *Service) ModelIdentifier(backendKey string) (string, error) {
	spec, ok := s.config.Backends[backendKey]
	if !ok {
		return "", fmt.Errorf("backend %q: %w", backendKey, interfaces.ErrUnknownBackend)
	}
	return spec.Model, nil
}

func (s *Service) Dimension(backendKey string) (int, error) {
	spec, ok := s.config.Backends[backendKey]
	if !ok {
		return 0, fmt.Errorf("backend %q: %w", backendKey, interfaces.ErrUnknownBackend)
	}
	return spec.Dimension, nil
}

// embedWithRetry runs one batch, retrying once on general compute with a
// halved batch on an out-of-memory condition.
func (s *Service) embedWithRetry(ctx context.Context, be backend, batch []string) ([][]float32, error) {
	vectors, err := be.embedBatch(ctx, batch)
	if err == nil {
		return vectors, nil
	}
	if !isOutOfMemory(err) {
		return nil, err
	}

	s.logger.Warn().
		Err(err).
		Int("batch", len(batch)).
		Msg("Embedding batch hit memory limit, retrying halved on general compute")

	half := len(batch)/2 + len(batch)%2
	retried := make([][]float32, 0, len(batch))
	for start := 0; start < len(batch); start += half {
		end := start + half
		if end > len(batch) {
			end = len(batch)
		}
		part, retryErr := be.embedBatch(ctx, batch[start:end])
		if retryErr != nil {
			return nil, fmt.Errorf("retry after memory limit failed: %w", retryErr)
		}
		retried = append(retried, part...)
	}
	return retried, nil
}

// backend returns the cached instance for a key, constructing it on first use
func (s *Service) backend(key string) (backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if be, ok := s.backends[key]; ok {
		return be, nil
	}

	spec, ok := s.config.Backends[key]
	if !ok {
		return nil, fmt.Errorf("backend %q: %w", key, interfaces.ErrUnknownBackend)
	}

	var be backend
	switch spec.Kind {
	case "gemini":
		if s.llm == nil {
			return nil, fmt.Errorf("backend %q requires an LLM service", key)
		}
		be = &geminiBackend{llm: s.llm, model: spec.Model, dim: spec.Dimension}
	case "hash":
		be = newHashBackend(spec.Model, spec.Dimension)
	default:
		return nil, fmt.Errorf("backend %q: unsupported kind %q: %w", key, spec.Kind, interfaces.ErrUnknownBackend)
	}

	s.backends[key] = be
	s.logger.Debug().
		Str("backend", key).
		Str("kind", spec.Kind).
		Str("model", spec.Model).
		Int("dimension", spec.Dimension).
		Msg("Embedding backend constructed")

	return be, nil
}

func isOutOfMemory(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "out of memory") ||
		strings.Contains(msg, "oom") ||
		strings.Contains(msg, "resource exhausted")
}

// geminiBackend delegates to the Gemini embedding API through the LLM service
type geminiBackend struct {
	llm   interfaces.LLMService
	model string
	dim   int
}

func (b *geminiBackend) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := b.llm.Embed(ctx, texts, b.model)
	if err != nil {
		return nil, err
	}
	for i, vec := range vectors {
		if len(vec) != b.dim {
			return nil, fmt.Errorf("vector %d has dimension %d, expected %d", i, len(vec), b.dim)
		}
	}
	return vectors, nil
}

func (b *geminiBackend) modelIdentifier() string { return b.model }
func (b *geminiBackend) dimension() int          { return b.dim }
