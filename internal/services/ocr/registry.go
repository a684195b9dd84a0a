package ocr

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/shibazach/rag-local-dev-sub000/internal/interfaces"
)

// Registry holds interchangeable text-extraction engines selected by id.
// Engines are registered at startup and read-only afterwards, so lookups
// are safe across concurrent jobs.
type Registry struct {
	engines map[string]interfaces.OCREngine
	mu      sync.RWMutex
	logger  arbor.ILogger
}

// Compile-time assertion
var _ interfaces.OCRRegistry = (*Registry)(nil)

// NewRegistry creates an empty engine registry
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		engines: make(map[string]interfaces.OCREngine),
		logger:  logger,
	}
}

// Register adds an engine under its declared id
func (r *Registry) Register(engine interfaces.OCREngine) error {
	info := engine.Info()
	if info.ID == "" {
		return fmt.Errorf("engine id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.engines[info.ID]; exists {
		return fmt.Errorf("engine %q already registered", info.ID)
	}
	r.engines[info.ID] = engine

	r.logger.Debug().
		Str("engine", info.ID).
		Int("parameters", len(info.Parameters)).
		Msg("OCR engine registered")

	return nil
}

// Engine returns the engine for an id, failing fast on an unknown id
func (r *Registry) Engine(id string) (interfaces.OCREngine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engine, ok := r.engines[id]
	if !ok {
		return nil, fmt.Errorf("engine %q: %w", id, interfaces.ErrUnknownEngine)
	}
	return engine, nil
}

// List returns the registered engines' descriptors, sorted by id
func (r *Registry) List() []interfaces.EngineInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]interfaces.EngineInfo, 0, len(r.engines))
	for _, engine := range r.engines {
		infos = append(infos, engine.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}
