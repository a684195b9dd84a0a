package interfaces

import (
	"context"
	"time"
)

// RefineOptions tunes one refinement run
type RefineOptions struct {
	ForceLanguage string        // Non-empty skips detection
	Timeout       time.Duration // Bound on each generative-text call
}

// RefineResult is the outcome of refining one document's extracted text
type RefineResult struct {
	RefinedText  string
	QualityScore float64 // Composite score in [0,1]
	Language     string
	Fallback     bool      // True when the generative pass failed and normalized text was kept
	PageScores   []float64 // Per-page scores when refinement ran page-by-page
	MinPageScore float64   // Lowest page score of the session (== QualityScore for single-call runs)
}

// TextRefiner normalizes OCR output and improves it with a generative-text
// pass. pages holds the raw per-page text in document order; a failed or
// empty generative response degrades to the normalized text with a low score
// rather than failing the file.
type TextRefiner interface {
	Refine(ctx context.Context, pages []string, opts RefineOptions) (*RefineResult, error)
}
