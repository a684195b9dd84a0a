package refine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/ternarybob/arbor"
	"golang.org/x/text/unicode/norm"

	"github.com/shibazach/rag-local-dev-sub000/internal/common"
	"github.com/shibazach/rag-local-dev-sub000/internal/interfaces"
)

// Language detection thresholds on character-class ratios
const (
	cjkRatioThreshold   = 0.10
	latinRatioThreshold = 0.50
)

// Estimated tokens per character by language, used against the token ceiling
const (
	tokenFactorJapanese = 1.0
	tokenFactorLatin    = 0.25
)

// Quality ceiling recorded when the generative pass failed and the
// normalized text was kept as-is
const fallbackScoreCap = 0.3

// Service refines OCR output through a generative-text pass. Documents whose
// estimated token count exceeds the configured ceiling are refined
// page-by-page instead of as one call.
type Service struct {
	llm    interfaces.LLMService
	config *common.LLMConfig
	logger arbor.ILogger
}

// Compile-time assertion
var _ interfaces.TextRefiner = (*Service)(nil)

// NewService creates the text refinement service
func NewService(llm interfaces.LLMService, config *common.LLMConfig, logger arbor.ILogger) *Service {
	return &Service{
		llm:    llm,
		config: config,
		logger: logger,
	}
}

func (s *Service) Refine(ctx context.Context, pages []string, opts interfaces.RefineOptions) (*interfaces.RefineResult, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages to refine")
	}

	normalized := make([]string, len(pages))
	for i, page := range pages {
		normalized[i] = Normalize(page)
	}
	fullText := strings.Join(normalized, "\n\n")

	language := opts.ForceLanguage
	if language == "" {
		language = DetectLanguage(fullText)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Duration(s.config.TimeoutSeconds) * time.Second
	}

	estimate := estimateTokens(fullText, language)
	perPage := s.config.TokenCeiling > 0 && estimate > s.config.TokenCeiling

	s.logger.Debug().
		Str("language", language).
		Int("pages", len(pages)).
		Int("token_estimate", estimate).
		Bool("per_page", perPage).
		Msg("Starting text refinement")

	if perPage {
		return s.refinePerPage(ctx, normalized, fullText, language, timeout)
	}
	return s.refineSingle(ctx, fullText, language, timeout)
}

// refineSingle refines the whole document in one generative call
func (s *Service) refineSingle(ctx context.Context, text, language string, timeout time.Duration) (*interfaces.RefineResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	refined, fallback := s.callLLM(ctx, text, language, timeout)

	score := QualityScore(text, refined, language)
	if fallback && score > fallbackScoreCap {
		score = fallbackScoreCap
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &interfaces.RefineResult{
		RefinedText:  refined,
		QualityScore: score,
		Language:     language,
		Fallback:     fallback,
		PageScores:   []float64{score},
		MinPageScore: score,
	}, nil
}

// refinePerPage refines each page independently; a cancellation check runs
// between page iterations.
func (s *Service) refinePerPage(ctx context.Context, pages []string, fullText, language string, timeout time.Duration) (*interfaces.RefineResult, error) {
	refinedPages := make([]string, len(pages))
	pageScores := make([]float64, len(pages))
	anyFallback := false

	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if strings.TrimSpace(page) == "" {
			refinedPages[i] = page
			pageScores[i] = 0.0
			continue
		}

		refined, fallback := s.callLLM(ctx, page, language, timeout)
		anyFallback = anyFallback || fallback

		score := QualityScore(page, refined, language)
		if fallback && score > fallbackScoreCap {
			score = fallbackScoreCap
		}
		refinedPages[i] = refined
		pageScores[i] = score

		s.logger.Debug().
			Int("page", i+1).
			Float64("score", score).
			Bool("fallback", fallback).
			Msg("Page refined")
	}

	refinedText := strings.Join(refinedPages, "\n\n")
	overall := QualityScore(fullText, refinedText, language)
	if anyFallback && overall > fallbackScoreCap {
		overall = fallbackScoreCap
	}

	minScore := 1.0
	for _, score := range pageScores {
		if score < minScore {
			minScore = score
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &interfaces.RefineResult{
		RefinedText:  refinedText,
		QualityScore: overall,
		Language:     language,
		Fallback:     anyFallback,
		PageScores:   pageScores,
		MinPageScore: minScore,
	}, nil
}

// callLLM runs one bounded generative call. A failed or empty response
// degrades to the input text with fallback=true rather than erroring.
func (s *Service) callLLM(ctx context.Context, text, language string, timeout time.Duration) (string, bool) {
	// No provider configured: run in degraded mode on normalized text
	if s.llm == nil {
		return text, true
	}

	prompt, system := buildPrompt(text, language)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := s.llm.GenerateText(callCtx, &interfaces.GenerateRequest{
		Prompt:            prompt,
		SystemInstruction: system,
	})
	if err != nil {
		s.logger.Warn().
			Err(err).
			Int("text_length", len(text)).
			Msg("Generative refinement failed, keeping normalized text")
		return text, true
	}

	refined := strings.TrimSpace(resp.Text)
	if refined == "" {
		s.logger.Warn().
			Int("text_length", len(text)).
			Msg("Generative refinement returned empty text, keeping normalized text")
		return text, true
	}

	return refined, false
}

var blankLineRuns = regexp.MustCompile(`\n{3,}`)

// Normalize applies NFKC Unicode normalization and collapses runs of blank
// lines to at most one blank line.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = blankLineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// DetectLanguage picks a language from character-class ratios: CJK above 10%
// wins, then Latin above 50%, else English as the default.
func DetectLanguage(text string) string {
	var cjk, latin, total int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		switch {
		case isCJK(r):
			cjk++
		case unicode.IsLetter(r) && r <= unicode.MaxASCII:
			latin++
		}
	}
	if total == 0 {
		return LangEnglish
	}
	if float64(cjk)/float64(total) > cjkRatioThreshold {
		return LangJapanese
	}
	if float64(latin)/float64(total) > latinRatioThreshold {
		return LangEnglish
	}
	return LangEnglish
}

// estimateTokens approximates the token count as character count scaled by a
// per-language factor.
func estimateTokens(text string, language string) int {
	factor := tokenFactorLatin
	if language == LangJapanese {
		factor = tokenFactorJapanese
	}
	return int(float64(len([]rune(text))) * factor)
}
