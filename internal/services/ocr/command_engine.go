package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/shibazach/rag-local-dev-sub000/internal/interfaces"
)

// CommandEngine runs an external OCR binary (tesseract-compatible CLI)
// per page. The binary's TSV output supplies text, word confidences, and
// layout blocks with bounding boxes.
type CommandEngine struct {
	binary  string
	timeout time.Duration
	tempDir string
	logger  arbor.ILogger
}

// Compile-time assertion
var _ interfaces.OCREngine = (*CommandEngine)(nil)

// NewCommandEngine creates the subprocess-backed OCR engine
func NewCommandEngine(binary string, timeout time.Duration, logger arbor.ILogger) *CommandEngine {
	tempDir := filepath.Join(os.TempDir(), "ragserver-ocr")
	os.MkdirAll(tempDir, 0755)

	return &CommandEngine{
		binary:  binary,
		timeout: timeout,
		tempDir: tempDir,
		logger:  logger,
	}
}

func (e *CommandEngine) Info() interfaces.EngineInfo {
	return interfaces.EngineInfo{
		ID:          "command",
		Description: "External OCR binary per page (tesseract-compatible)",
		Parameters: []interfaces.ParameterSpec{
			{Name: "language", Description: "OCR language code passed to the binary", Default: "eng"},
			{Name: "psm", Description: "Page segmentation mode", Default: "3"},
			{Name: "dpi", Description: "Input resolution hint", Default: "300"},
		},
	}
}

func (e *CommandEngine) Extract(ctx context.Context, doc []byte, pages interfaces.PageRange, params map[string]string) ([]interfaces.PageResult, error) {
	if _, err := exec.LookPath(e.binary); err != nil {
		return nil, fmt.Errorf("binary %q not found: %w", e.binary, interfaces.ErrEngineUnavailable)
	}

	inputs, err := e.stagePages(doc, pages)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, in := range inputs {
			os.Remove(in.path)
		}
	}()

	results := make([]interfaces.PageResult, 0, len(inputs))
	for _, in := range inputs {
		// Cooperative cancellation between per-page iterations
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		results = append(results, e.extractPage(ctx, in, params))
	}
	return results, nil
}

type stagedPage struct {
	pageNumber int
	path       string
}

// stagePages writes the document to per-page input files. Image inputs
// are single-page; multi-page PDFs rely on the binary's own paging via
// one input per selected page index.
func (e *CommandEngine) stagePages(doc []byte, pages interfaces.PageRange) ([]stagedPage, error) {
	// The external binary consumes one input file; page selection is
	// expressed by invoking it once per page index.
	path := filepath.Join(e.tempDir, fmt.Sprintf("input_%s", uuid.New().String()))
	if err := os.WriteFile(path, doc, 0644); err != nil {
		return nil, fmt.Errorf("failed to stage OCR input: %w", err)
	}

	start, end := pages.Start, pages.End
	if pages.All() {
		start, end = 1, 1
	}
	if start < 1 {
		start = 1
	}
	if end < start {
		end = start
	}

	staged := make([]stagedPage, 0, end-start+1)
	for p := start; p <= end; p++ {
		staged = append(staged, stagedPage{pageNumber: p, path: path})
	}
	return staged, nil
}

// extractPage runs the binary for one page. A subprocess failure is
// recorded as the page's error marker rather than aborting the document.
func (e *CommandEngine) extractPage(ctx context.Context, in stagedPage, params map[string]string) interfaces.PageResult {
	pageCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		pageCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := []string{in.path, "stdout"}
	if lang := paramOr(params, "language", "eng"); lang != "" {
		args = append(args, "-l", lang)
	}
	if psm := paramOr(params, "psm", ""); psm != "" {
		args = append(args, "--psm", psm)
	}
	if dpi := paramOr(params, "dpi", ""); dpi != "" {
		args = append(args, "--dpi", dpi)
	}
	args = append(args, "tsv")

	start := time.Now()
	cmd := exec.CommandContext(pageCtx, e.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	elapsed := time.Since(start).Milliseconds()

	result := interfaces.PageResult{
		PageNumber: in.pageNumber,
		DurationMs: elapsed,
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		result.Error = fmt.Sprintf("ocr subprocess failed: %s", msg)

		e.logger.Warn().
			Int("page", in.pageNumber).
			Int64("elapsed_ms", elapsed).
			Str("stderr", msg).
			Msg("OCR page failed")
		return result
	}

	text, confidence, blocks := parseTSV(stdout.String())
	result.Text = text
	result.Confidence = confidence
	result.Blocks = blocks

	e.logger.Debug().
		Int("page", in.pageNumber).
		Int("blocks", len(blocks)).
		Float64("confidence", confidence).
		Int64("elapsed_ms", elapsed).
		Msg("OCR page extracted")

	return result
}

// parseTSV decodes tesseract TSV output: word rows carry text plus
// bounding box and confidence; line boundaries come from the level column.
func parseTSV(tsv string) (string, float64, []interfaces.LayoutBlock) {
	var (
		text       strings.Builder
		blocks     []interfaces.LayoutBlock
		confSum    float64
		confCount  int
		lastLineID string
	)

	lines := strings.Split(tsv, "\n")
	for i, line := range lines {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue // header or trailing blank
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 12 {
			continue
		}

		level := cols[0]
		word := strings.TrimSpace(cols[11])

		// Level 4 rows are line records: use them as text line breaks
		if level == "4" {
			lineID := strings.Join(cols[1:5], ":")
			if lineID != lastLineID && text.Len() > 0 {
				text.WriteString("\n")
			}
			lastLineID = lineID
			continue
		}
		if level != "5" || word == "" {
			continue
		}

		left, _ := strconv.ParseFloat(cols[6], 64)
		top, _ := strconv.ParseFloat(cols[7], 64)
		width, _ := strconv.ParseFloat(cols[8], 64)
		height, _ := strconv.ParseFloat(cols[9], 64)
		conf, _ := strconv.ParseFloat(cols[10], 64)

		if text.Len() > 0 && !strings.HasSuffix(text.String(), "\n") {
			text.WriteString(" ")
		}
		text.WriteString(word)

		blocks = append(blocks, interfaces.LayoutBlock{
			Text:   word,
			X:      left,
			Y:      top,
			Width:  width,
			Height: height,
		})

		if conf >= 0 {
			confSum += conf
			confCount++
		}
	}

	confidence := 0.0
	if confCount > 0 {
		confidence = confSum / float64(confCount) / 100.0
	}
	return text.String(), confidence, blocks
}

func paramOr(params map[string]string, key, fallback string) string {
	if v, ok := params[key]; ok && v != "" {
		return v
	}
	return fallback
}
