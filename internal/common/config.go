package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Upload      UploadConfig     `toml:"upload"`
	OCR         OCRConfig        `toml:"ocr"`
	Gemini      GeminiConfig     `toml:"gemini"`
	Claude      ClaudeConfig     `toml:"claude"`
	LLM         LLMConfig        `toml:"llm"`
	Embeddings  EmbeddingsConfig `toml:"embeddings"`
	Pipeline    PipelineConfig   `toml:"pipeline"`
	WebSocket   WebSocketConfig  `toml:"websocket"`
	Retention   RetentionConfig  `toml:"retention"`
	Logging     LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// UploadConfig constrains what the upload endpoint accepts
type UploadConfig struct {
	MaxSizeBytes      int64    `toml:"max_size_bytes"`     // Per-file size ceiling
	AllowedExtensions []string `toml:"allowed_extensions"` // Lowercase, with leading dot (e.g. ".pdf")
}

// OCRConfig configures the text-extraction engine registry
type OCRConfig struct {
	DefaultEngine  string `toml:"default_engine"`  // Engine id used when a batch doesn't name one
	CommandPath    string `toml:"command_path"`    // External OCR binary for the "command" engine (e.g. tesseract)
	CommandTimeout string `toml:"command_timeout"` // Per-page subprocess timeout as duration string
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Google Gemini API key
	Model       string  `toml:"model"`       // Text model (default: "gemini-2.5-flash")
	EmbedModel  string  `toml:"embed_model"` // Embedding model (default: "gemini-embedding-001")
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string
	Temperature float32 `toml:"temperature"` // Completion temperature
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key
	Model       string  `toml:"model"`       // Text model (default: "claude-haiku-4-5")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string
	Temperature float32 `toml:"temperature"` // Completion temperature
}

// LLMConfig selects the provider used for text refinement
type LLMConfig struct {
	DefaultProvider string `toml:"default_provider"` // "gemini" or "claude"
	TokenCeiling    int    `toml:"token_ceiling"`    // Estimated-token limit above which refinement runs page-by-page
	TimeoutSeconds  int    `toml:"timeout_seconds"`  // Default per-call refinement timeout
}

// EmbeddingBackendSpec declares one embedding backend selectable by key
type EmbeddingBackendSpec struct {
	Kind      string `toml:"kind"`      // "gemini" or "hash"
	Model     string `toml:"model"`     // Model identifier recorded on stored chunks
	Dimension int    `toml:"dimension"` // Fixed vector dimension for this backend
}

type EmbeddingsConfig struct {
	Backends        map[string]EmbeddingBackendSpec `toml:"backends"`
	DefaultBackend  string                          `toml:"default_backend"`
	BatchSize       int                             `toml:"batch_size"`         // Texts per backend call
	MinFreeMemoryMB int                             `toml:"min_free_memory_mb"` // Accelerator is preferred only above this free-memory floor
}

// PipelineConfig tunes the ingestion orchestrator
type PipelineConfig struct {
	EventBufferSize  int     `toml:"event_buffer_size"` // Bounded progress channel capacity per job
	WorkerPoolSize   int     `toml:"worker_pool_size"`  // Shared pool for blocking stage work
	QualityThreshold float64 `toml:"quality_threshold"` // Default persistence-gate threshold
	ChunkSize        int     `toml:"chunk_size"`
	ChunkOverlap     int     `toml:"chunk_overlap"`
}

// WebSocketConfig contains configuration for progress streaming
type WebSocketConfig struct {
	PageEventInterval string `toml:"page_event_interval"` // Throttle for per-page detail events (e.g. "250ms")
}

// RetentionConfig controls the completed-job sweep
type RetentionConfig struct {
	Schedule string `toml:"schedule"` // Cron schedule (default: every 10 minutes)
	MaxAge   string `toml:"max_age"`  // Terminal jobs older than this are cleared
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// DefaultConfig returns the configuration defaults applied before any file
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8230,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/ragserver",
			},
		},
		Upload: UploadConfig{
			MaxSizeBytes:      100 * 1024 * 1024,
			AllowedExtensions: []string{".pdf", ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".txt"},
		},
		OCR: OCRConfig{
			DefaultEngine:  "pdftext",
			CommandPath:    "tesseract",
			CommandTimeout: "2m",
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			EmbedModel:  "gemini-embedding-001",
			Timeout:     "5m",
			Temperature: 0.2,
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-4-5",
			MaxTokens:   8192,
			Timeout:     "5m",
			Temperature: 0.2,
		},
		LLM: LLMConfig{
			DefaultProvider: "gemini",
			TokenCeiling:    3000,
			TimeoutSeconds:  120,
		},
		Embeddings: EmbeddingsConfig{
			Backends: map[string]EmbeddingBackendSpec{
				"gemini": {Kind: "gemini", Model: "gemini-embedding-001", Dimension: 768},
				"local":  {Kind: "hash", Model: "feature-hash-v1", Dimension: 256},
			},
			DefaultBackend:  "local",
			BatchSize:       32,
			MinFreeMemoryMB: 2048,
		},
		Pipeline: PipelineConfig{
			EventBufferSize:  256,
			WorkerPoolSize:   4,
			QualityThreshold: 0.7,
			ChunkSize:        500,
			ChunkOverlap:     50,
		},
		WebSocket: WebSocketConfig{
			PageEventInterval: "250ms",
		},
		Retention: RetentionConfig{
			Schedule: "*/10 * * * *",
			MaxAge:   "1h",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
	}
}

// LoadFromFiles loads configuration from defaults, then each file in order
// (later files override earlier ones), then environment variables.
func LoadFromFiles(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies a small set of environment overrides on top of file config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RAGSERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Gemini.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Claude.APIKey = v
	}
	if v := os.Getenv("RAGSERVER_DATA_DIR"); v != "" {
		cfg.Storage.Badger.Path = v
	}
}

// Validate checks cross-field constraints that TOML decoding can't express
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Pipeline.ChunkSize <= c.Pipeline.ChunkOverlap {
		return fmt.Errorf("chunk_size (%d) must exceed chunk_overlap (%d)",
			c.Pipeline.ChunkSize, c.Pipeline.ChunkOverlap)
	}
	if c.LLM.DefaultProvider != "gemini" && c.LLM.DefaultProvider != "claude" {
		return fmt.Errorf("invalid llm default_provider %q: must be 'gemini' or 'claude'", c.LLM.DefaultProvider)
	}
	if c.Embeddings.DefaultBackend != "" {
		if _, ok := c.Embeddings.Backends[c.Embeddings.DefaultBackend]; !ok {
			return fmt.Errorf("embeddings default_backend %q is not declared", c.Embeddings.DefaultBackend)
		}
	}
	for key, spec := range c.Embeddings.Backends {
		if spec.Dimension <= 0 {
			return fmt.Errorf("embedding backend %q: dimension must be positive", key)
		}
		if spec.Kind != "gemini" && spec.Kind != "hash" {
			return fmt.Errorf("embedding backend %q: unknown kind %q", key, spec.Kind)
		}
	}
	return nil
}

// ParseDurationOr parses a duration string, returning fallback on empty or invalid input
func ParseDurationOr(s string, fallback time.Duration) time.Duration {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
