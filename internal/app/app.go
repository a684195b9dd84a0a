package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/shibazach/rag-local-dev-sub000/internal/common"
	"github.com/shibazach/rag-local-dev-sub000/internal/handlers"
	"github.com/shibazach/rag-local-dev-sub000/internal/interfaces"
	"github.com/shibazach/rag-local-dev-sub000/internal/services/embeddings"
	"github.com/shibazach/rag-local-dev-sub000/internal/services/llm"
	"github.com/shibazach/rag-local-dev-sub000/internal/services/ocr"
	"github.com/shibazach/rag-local-dev-sub000/internal/services/pipeline"
	"github.com/shibazach/rag-local-dev-sub000/internal/services/refine"
	"github.com/shibazach/rag-local-dev-sub000/internal/services/scheduler"
	badgerstore "github.com/shibazach/rag-local-dev-sub000/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	DB           *badgerstore.BadgerDB
	ContentStore interfaces.ContentStore

	// Pipeline services
	OCRRegistry      *ocr.Registry
	LLMService       interfaces.LLMService
	Refiner          interfaces.TextRefiner
	EmbeddingService interfaces.EmbeddingService
	JobRegistry      *pipeline.Registry
	Orchestrator     *pipeline.Orchestrator
	Scheduler        *scheduler.Service

	// HTTP handlers
	UploadHandler   *handlers.UploadHandler
	JobHandler      *handlers.JobHandler
	DocumentHandler *handlers.DocumentHandler
	StatusHandler   *handlers.StatusHandler
	WSHandler       *handlers.WebSocketHandler
}

// New wires the application together: storage, engines, services,
// orchestrator, and HTTP handlers.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: config,
		Logger: logger,
	}

	// Storage
	db, err := badgerstore.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	a.DB = db
	a.ContentStore = badgerstore.NewContentStorage(db, logger)

	// OCR engines
	a.OCRRegistry = ocr.NewRegistry(logger)
	if err := a.OCRRegistry.Register(ocr.NewPDFTextEngine(logger)); err != nil {
		return nil, err
	}
	commandTimeout := common.ParseDurationOr(config.OCR.CommandTimeout, 0)
	if err := a.OCRRegistry.Register(ocr.NewCommandEngine(config.OCR.CommandPath, commandTimeout, logger)); err != nil {
		return nil, err
	}

	// LLM provider; a missing API key degrades refinement to normalized
	// text instead of blocking startup.
	llmService, err := llm.NewLLMService(config, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("LLM provider unavailable, refinement will fall back to normalized text")
	} else {
		a.LLMService = llmService
	}

	a.Refiner = refine.NewService(a.LLMService, &config.LLM, logger)
	a.EmbeddingService = embeddings.NewService(&config.Embeddings, a.LLMService, logger)

	// Orchestrator and job registry
	a.JobRegistry = pipeline.NewRegistry(logger)
	orchestrator, err := pipeline.NewOrchestrator(
		a.ContentStore,
		a.OCRRegistry,
		a.Refiner,
		a.EmbeddingService,
		a.JobRegistry,
		config,
		logger,
	)
	if err != nil {
		return nil, err
	}
	a.Orchestrator = orchestrator

	// Retention sweep for terminal jobs
	a.Scheduler = scheduler.NewService(a.JobRegistry, &config.Retention, logger)
	if err := a.Scheduler.Start(); err != nil {
		return nil, err
	}

	// HTTP handlers
	a.UploadHandler = handlers.NewUploadHandler(a.ContentStore, &config.Upload, logger)
	a.JobHandler = handlers.NewJobHandler(a.Orchestrator, logger)
	a.DocumentHandler = handlers.NewDocumentHandler(a.ContentStore, logger)
	a.StatusHandler = handlers.NewStatusHandler(a.ContentStore, a.OCRRegistry, logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.Orchestrator, &config.WebSocket, logger)

	logger.Info().
		Str("environment", config.Environment).
		Str("storage_path", config.Storage.Badger.Path).
		Msg("Application initialized")

	return a, nil
}

// Shutdown stops background services and closes storage
func (a *App) Shutdown(ctx context.Context) error {
	a.Scheduler.Stop()
	a.Orchestrator.Close()

	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}

	a.Logger.Info().Msg("Application shut down")
	return nil
}
