package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/shibazach/rag-local-dev-sub000/internal/common"
	"github.com/shibazach/rag-local-dev-sub000/internal/interfaces"
	"github.com/shibazach/rag-local-dev-sub000/internal/models"
)

// fakeStore is an in-memory ContentStore for orchestrator tests
type fakeStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	metas   map[string]*models.Meta
	texts   map[string]*models.TextRecord
	chunks  map[string][]models.Chunk
	pingErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		data:   make(map[string][]byte),
		metas:  make(map[string]*models.Meta),
		texts:  make(map[string]*models.TextRecord),
		chunks: make(map[string][]models.Chunk),
	}
}

func (s *fakeStore) addFile(blobID, filename string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[blobID] = content
	s.metas[blobID] = &models.Meta{BlobID: blobID, Filename: filename, Size: int64(len(content))}
}

func (s *fakeStore) Put(ctx context.Context, data []byte, filename, mimeType string) (*interfaces.PutResult, error) {
	return nil, errors.New("not used")
}

func (s *fakeStore) Get(ctx context.Context, blobID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[blobID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return data, nil
}

func (s *fakeStore) GetMeta(ctx context.Context, blobID string) (*models.Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.metas[blobID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	copied := *meta
	return &copied, nil
}

func (s *fakeStore) ListMetas(ctx context.Context, limit, offset int) ([]*models.Meta, error) {
	return nil, nil
}

func (s *fakeStore) UpdateMetaProgress(ctx context.Context, blobID, status, stage string, pageCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if meta, ok := s.metas[blobID]; ok {
		meta.Status = status
		meta.Stage = stage
		if pageCount > 0 {
			meta.PageCount = pageCount
		}
	}
	return nil
}

func (s *fakeStore) GetText(ctx context.Context, blobID string) (*models.TextRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.texts[blobID], nil
}

func (s *fakeStore) UpsertText(ctx context.Context, blobID string, fields models.TextFields, gate models.PersistGate) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, reason := gate.ShouldStore(s.texts[blobID])
	if !ok {
		return false, reason, nil
	}
	s.texts[blobID] = &models.TextRecord{
		BlobID:       blobID,
		RawText:      fields.RawText,
		RefinedText:  fields.RefinedText,
		QualityScore: fields.QualityScore,
		Language:     fields.Language,
	}
	return true, reason, nil
}

func (s *fakeStore) ReplaceChunks(ctx context.Context, blobID, model string, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[blobID+"/"+model] = chunks
	return nil
}

func (s *fakeStore) GetChunks(ctx context.Context, blobID string) ([]models.Chunk, error) {
	return nil, nil
}

func (s *fakeStore) Delete(ctx context.Context, blobID string) error { return nil }

func (s *fakeStore) Ping(ctx context.Context) error { return s.pingErr }

// fakeEngine extracts one page per input; content equal to failOn aborts
// with a backend-unavailable error.
type fakeEngine struct {
	failOn string
}

func (e *fakeEngine) Info() interfaces.EngineInfo {
	return interfaces.EngineInfo{ID: "fake", Description: "test engine"}
}

func (e *fakeEngine) Extract(ctx context.Context, doc []byte, pages interfaces.PageRange, params map[string]string) ([]interfaces.PageResult, error) {
	if e.failOn != "" && string(doc) == e.failOn {
		return nil, fmt.Errorf("engine cannot start: %w", interfaces.ErrEngineUnavailable)
	}
	return []interfaces.PageResult{{PageNumber: 1, Text: string(doc)}}, nil
}

// fakeRefiner echoes its input. When blockOn matches the page text it
// signals blocked and waits for context cancellation.
type fakeRefiner struct {
	blockOn string
	blocked chan struct{}
}

func (r *fakeRefiner) Refine(ctx context.Context, pages []string, opts interfaces.RefineOptions) (*interfaces.RefineResult, error) {
	if r.blockOn != "" && len(pages) > 0 && pages[0] == r.blockOn {
		if r.blocked != nil {
			close(r.blocked)
			r.blocked = nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	text := ""
	for _, page := range pages {
		text += page + " "
	}
	return &interfaces.RefineResult{
		RefinedText:  text,
		QualityScore: 0.8,
		Language:     "en",
		PageScores:   []float64{0.8},
		MinPageScore: 0.8,
	}, nil
}

// fakeEmbedder returns fixed-dimension zero vectors for the "local" key
type fakeEmbedder struct{}

func (e *fakeEmbedder) Embed(ctx context.Context, texts []string, backendKey string) ([][]float32, error) {
	if backendKey != "local" {
		return nil, interfaces.ErrUnknownBackend
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = make([]float32, 8)
	}
	return vectors, nil
}

func (e *fakeEmbedder) EmbedOne(ctx context.Context, text string, backendKey string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text}, backendKey)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *fakeEmbedder) ModelIdentifier(backendKey string) (string, error) {
	if backendKey != "local" {
		return "", interfaces.ErrUnknownBackend
	}
	return "test-model", nil
}

func (e *fakeEmbedder) Dimension(backendKey string) (int, error) {
	if backendKey != "local" {
		return 0, interfaces.ErrUnknownBackend
	}
	return 8, nil
}

// fakeOCRRegistry serves a single engine under the "fake" id
type fakeOCRRegistry struct {
	engine interfaces.OCREngine
}

func (r *fakeOCRRegistry) Engine(id string) (interfaces.OCREngine, error) {
	if id != "fake" {
		return nil, interfaces.ErrUnknownEngine
	}
	return r.engine, nil
}

func (r *fakeOCRRegistry) List() []interfaces.EngineInfo {
	return []interfaces.EngineInfo{r.engine.Info()}
}

func testConfig() *common.Config {
	return &common.Config{
		OCR: common.OCRConfig{
			DefaultEngine: "fake",
		},
		Embeddings: common.EmbeddingsConfig{
			DefaultBackend: "local",
		},
		Pipeline: common.PipelineConfig{
			EventBufferSize:  64,
			WorkerPoolSize:   2,
			QualityThreshold: 0.7,
			ChunkSize:        100,
			ChunkOverlap:     10,
		},
	}
}

func newTestOrchestrator(t *testing.T, store *fakeStore, engine interfaces.OCREngine, refiner interfaces.TextRefiner) *Orchestrator {
	t.Helper()
	logger := arbor.NewLogger()
	orchestrator, err := NewOrchestrator(
		store,
		&fakeOCRRegistry{engine: engine},
		refiner,
		&fakeEmbedder{},
		NewRegistry(logger),
		testConfig(),
		logger,
	)
	require.NoError(t, err)
	t.Cleanup(orchestrator.Close)
	return orchestrator
}

func defaultOpts() models.IngestOptions {
	return models.IngestOptions{
		OCREngine:     "fake",
		EmbeddingKeys: []string{"local"},
	}
}

// drainEvents collects every event until the stream closes
func drainEvents(t *testing.T, events <-chan models.ProgressEvent) []models.ProgressEvent {
	t.Helper()
	var collected []models.ProgressEvent
	timeout := time.After(10 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return collected
			}
			collected = append(collected, event)
		case <-timeout:
			t.Fatal("timed out waiting for terminal event")
		}
	}
}

func seedFiles(store *fakeStore, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("blob_%d", i+1)
		store.addFile(ids[i], fmt.Sprintf("file%d.pdf", i+1), []byte(fmt.Sprintf("file%d content", i+1)))
	}
	return ids
}

func TestBatchIsolatesFileFailure(t *testing.T) {
	store := newFakeStore()
	ids := seedFiles(store, 5)

	engine := &fakeEngine{failOn: "file3 content"}
	orchestrator := newTestOrchestrator(t, store, engine, &fakeRefiner{})

	jobID, err := orchestrator.Start(context.Background(), ids, defaultOpts())
	require.NoError(t, err)

	events, err := orchestrator.Events(jobID)
	require.NoError(t, err)
	collected := drainEvents(t, events)

	last := collected[len(collected)-1]
	assert.Equal(t, models.TerminalComplete, last.Terminal)

	snapshot, err := orchestrator.Status(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, snapshot.Status)
	assert.Equal(t, 4, snapshot.SuccessCount)
	assert.Equal(t, 1, snapshot.ErrorCount)

	expected := []models.Stage{
		models.StageDone, models.StageDone, models.StageFailed,
		models.StageDone, models.StageDone,
	}
	for i, file := range snapshot.Files {
		assert.Equal(t, expected[i], file.Stage, "file %d", i+1)
	}

	// The failed file's text was never persisted; the others were
	text, _ := store.GetText(context.Background(), ids[2])
	assert.Nil(t, text)
	text, _ = store.GetText(context.Background(), ids[0])
	require.NotNil(t, text)
	assert.Equal(t, 0.8, text.QualityScore)
}

func TestCancellationDuringRefine(t *testing.T) {
	store := newFakeStore()
	ids := seedFiles(store, 5)

	blocked := make(chan struct{})
	refiner := &fakeRefiner{blockOn: "file3 content", blocked: blocked}
	orchestrator := newTestOrchestrator(t, store, &fakeEngine{}, refiner)

	jobID, err := orchestrator.Start(context.Background(), ids, defaultOpts())
	require.NoError(t, err)

	events, err := orchestrator.Events(jobID)
	require.NoError(t, err)

	select {
	case <-blocked:
	case <-time.After(10 * time.Second):
		t.Fatal("refine for file 3 never started")
	}
	require.NoError(t, orchestrator.Cancel(jobID))

	collected := drainEvents(t, events)
	last := collected[len(collected)-1]
	assert.Equal(t, models.TerminalCancelled, last.Terminal)

	snapshot, err := orchestrator.Status(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, snapshot.Status)

	expected := []models.Stage{
		models.StageDone, models.StageDone, models.StageCancelled,
		models.StageQueued, models.StageQueued,
	}
	for i, file := range snapshot.Files {
		assert.Equal(t, expected[i], file.Stage, "file %d", i+1)
	}

	// Already-completed files keep their persisted results
	text, _ := store.GetText(context.Background(), ids[1])
	assert.NotNil(t, text)
}

func TestCancelIsIdempotent(t *testing.T) {
	store := newFakeStore()
	ids := seedFiles(store, 1)

	orchestrator := newTestOrchestrator(t, store, &fakeEngine{}, &fakeRefiner{})
	jobID, err := orchestrator.Start(context.Background(), ids, defaultOpts())
	require.NoError(t, err)

	require.NoError(t, orchestrator.Cancel(jobID))
	require.NoError(t, orchestrator.Cancel(jobID))
}

func TestStartDefaultsEngineAndBackend(t *testing.T) {
	store := newFakeStore()
	ids := seedFiles(store, 1)

	orchestrator := newTestOrchestrator(t, store, &fakeEngine{}, &fakeRefiner{})

	// No engine and no backends named: the configured defaults carry the batch
	jobID, err := orchestrator.Start(context.Background(), ids, models.IngestOptions{})
	require.NoError(t, err)

	events, err := orchestrator.Events(jobID)
	require.NoError(t, err)
	collected := drainEvents(t, events)

	last := collected[len(collected)-1]
	assert.Equal(t, models.TerminalComplete, last.Terminal)

	snapshot, err := orchestrator.Status(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, snapshot.Status)
	assert.Equal(t, 1, snapshot.SuccessCount)

	// The default backend produced the persisted chunk set
	store.mu.Lock()
	chunks := store.chunks[ids[0]+"/test-model"]
	store.mu.Unlock()
	assert.NotEmpty(t, chunks)
}

func TestStartFailsWithoutBackendsOrDefault(t *testing.T) {
	store := newFakeStore()
	ids := seedFiles(store, 1)

	logger := arbor.NewLogger()
	config := testConfig()
	config.Embeddings.DefaultBackend = ""
	orchestrator, err := NewOrchestrator(
		store,
		&fakeOCRRegistry{engine: &fakeEngine{}},
		&fakeRefiner{},
		&fakeEmbedder{},
		NewRegistry(logger),
		config,
		logger,
	)
	require.NoError(t, err)
	t.Cleanup(orchestrator.Close)

	_, err = orchestrator.Start(context.Background(), ids, models.IngestOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no embedding backends")
}

func TestStartFailsFastOnUnknownEngine(t *testing.T) {
	store := newFakeStore()
	ids := seedFiles(store, 1)

	orchestrator := newTestOrchestrator(t, store, &fakeEngine{}, &fakeRefiner{})

	opts := defaultOpts()
	opts.OCREngine = "nope"
	_, err := orchestrator.Start(context.Background(), ids, opts)
	require.ErrorIs(t, err, interfaces.ErrUnknownEngine)
}

func TestStartFailsFastOnUnknownBackend(t *testing.T) {
	store := newFakeStore()
	ids := seedFiles(store, 1)

	orchestrator := newTestOrchestrator(t, store, &fakeEngine{}, &fakeRefiner{})

	opts := defaultOpts()
	opts.EmbeddingKeys = []string{"missing"}
	_, err := orchestrator.Start(context.Background(), ids, opts)
	require.ErrorIs(t, err, interfaces.ErrUnknownBackend)
}

func TestStartFailsWhenStoreUnreachable(t *testing.T) {
	store := newFakeStore()
	ids := seedFiles(store, 1)
	store.pingErr = interfaces.ErrStoreUnavailable

	orchestrator := newTestOrchestrator(t, store, &fakeEngine{}, &fakeRefiner{})

	_, err := orchestrator.Start(context.Background(), ids, defaultOpts())
	require.ErrorIs(t, err, interfaces.ErrStoreUnavailable)
}

func TestStageEventsAreOrderedPerFile(t *testing.T) {
	store := newFakeStore()
	ids := seedFiles(store, 1)

	orchestrator := newTestOrchestrator(t, store, &fakeEngine{}, &fakeRefiner{})
	jobID, err := orchestrator.Start(context.Background(), ids, defaultOpts())
	require.NoError(t, err)

	events, err := orchestrator.Events(jobID)
	require.NoError(t, err)
	collected := drainEvents(t, events)

	var stages []models.Stage
	for _, event := range collected {
		if event.Phase == models.PhaseEntered {
			stages = append(stages, event.Stage)
		}
	}
	assert.Equal(t, []models.Stage{
		models.StageRegistering, models.StageExtracting, models.StageRefining,
		models.StageChunking, models.StageEmbedding, models.StagePersisting,
	}, stages)
}

func TestRegistrySweepClearsTerminalJobs(t *testing.T) {
	logger := arbor.NewLogger()
	registry := NewRegistry(logger)

	finished := NewJob(common.NewJobID(), []models.FileState{{BlobID: "b1"}}, 8)
	finished.finish(models.JobStatusCompleted, "")
	registry.Add(finished)

	running := NewJob(common.NewJobID(), []models.FileState{{BlobID: "b2"}}, 8)
	registry.Add(running)

	// Zero max age makes any finished job eligible immediately
	time.Sleep(10 * time.Millisecond)
	removed := registry.Sweep(0)
	assert.Equal(t, 1, removed)

	_, err := registry.Get(finished.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = registry.Get(running.ID)
	assert.NoError(t, err)
}
