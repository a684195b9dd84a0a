package interfaces

import (
	"context"
	"errors"
)

// ErrEngineUnavailable indicates the engine's process or model could not
// start. Unlike a page-level failure this aborts the file.
var ErrEngineUnavailable = errors.New("ocr engine unavailable")

// ErrUnknownEngine is returned by the registry for an unregistered id
var ErrUnknownEngine = errors.New("unknown ocr engine")

// PageRange selects pages to extract, 1-indexed inclusive.
// A zero value means all pages.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// All reports whether the range selects every page
func (r PageRange) All() bool {
	return r.Start == 0 && r.End == 0
}

// LayoutBlock is a positioned text block extracted alongside raw text.
// Optional structural payload; text-only engines leave it empty.
type LayoutBlock struct {
	Text   string  `json:"text"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PageResult carries the extraction outcome for a single page.
// A per-page failure sets Error and leaves the document running.
type PageResult struct {
	PageNumber int           `json:"page_number"`
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence,omitempty"`
	DurationMs int64         `json:"duration_ms"`
	Error      string        `json:"error,omitempty"`
	Blocks     []LayoutBlock `json:"blocks,omitempty"`
}

// ParameterSpec declares one tunable parameter an engine accepts
type ParameterSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Default     string `json:"default,omitempty"`
}

// EngineInfo identifies an engine and its accepted parameter set
type EngineInfo struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Parameters  []ParameterSpec `json:"parameters,omitempty"`
}

// OCREngine is a single text-extraction backend
type OCREngine interface {
	Info() EngineInfo
	Extract(ctx context.Context, doc []byte, pages PageRange, params map[string]string) ([]PageResult, error)
}

// OCRRegistry holds interchangeable engines selected by id
type OCRRegistry interface {
	Engine(id string) (OCREngine, error)
	List() []EngineInfo
}
