package refine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/shibazach/rag-local-dev-sub000/internal/common"
	"github.com/shibazach/rag-local-dev-sub000/internal/interfaces"
)

type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) GenerateText(ctx context.Context, req *interfaces.GenerateRequest) (*interfaces.GenerateResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &interfaces.GenerateResponse{Text: f.response, Provider: "fake", Model: "fake-1"}, nil
}

func (f *fakeLLM) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLLM) HealthCheck(ctx context.Context) error { return nil }

func newTestService(llm interfaces.LLMService, tokenCeiling int) *Service {
	cfg := &common.LLMConfig{
		DefaultProvider: "gemini",
		TokenCeiling:    tokenCeiling,
		TimeoutSeconds:  5,
	}
	return NewService(llm, cfg, arbor.NewLogger())
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, LangJapanese, DetectLanguage("これは日本語の文書です。請求書の内容を確認してください。"))
	assert.Equal(t, LangEnglish, DetectLanguage("This is an ordinary English sentence about invoices."))
	// Mostly digits and symbols falls through to the default
	assert.Equal(t, LangEnglish, DetectLanguage("123 456 789 +++ ---"))
	assert.Equal(t, LangEnglish, DetectLanguage(""))
}

func TestNormalizeCollapsesBlankLineRuns(t *testing.T) {
	input := "first\n\n\n\n\nsecond\r\nthird"
	got := Normalize(input)
	assert.Equal(t, "first\n\nsecond\nthird", got)
}

func TestNormalizeAppliesNFKC(t *testing.T) {
	// Full-width ASCII compatibility characters fold to their ASCII forms
	assert.Equal(t, "ABC 123", Normalize("ＡＢＣ　１２３"))
}

func TestQualityScoreBounds(t *testing.T) {
	original := "Th3   qu!ck   br0wn   f0x###   jumps"
	refined := "The quick brown fox jumps"

	score := QualityScore(original, refined, LangEnglish)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)

	// Empty refined text always scores zero
	assert.Zero(t, QualityScore(original, "", LangEnglish))
	assert.Zero(t, QualityScore(original, "   \n  ", LangEnglish))
}

func TestQualityScoreRewardsCleanup(t *testing.T) {
	noisy := "Inv0ice  ###   t0tal:   $42.00   %%%   due   date###"
	clean := "Invoice total: $42.00 due date"

	cleanScore := QualityScore(noisy, clean, LangEnglish)
	identityScore := QualityScore(noisy, noisy, LangEnglish)
	assert.Greater(t, cleanScore, identityScore)
}

func TestRefineSingleCall(t *testing.T) {
	llm := &fakeLLM{response: "Refined output text."}
	service := newTestService(llm, 3000)

	result, err := service.Refine(context.Background(), []string{"raw   ocr   output"}, interfaces.RefineOptions{})
	require.NoError(t, err)

	assert.Equal(t, "Refined output text.", result.RefinedText)
	assert.False(t, result.Fallback)
	assert.Equal(t, 1, llm.calls)
	assert.Len(t, result.PageScores, 1)
	assert.Equal(t, result.QualityScore, result.MinPageScore)
}

func TestRefineFallbackOnLLMFailure(t *testing.T) {
	llm := &fakeLLM{err: errors.New("service unavailable")}
	service := newTestService(llm, 3000)

	result, err := service.Refine(context.Background(), []string{"some raw text"}, interfaces.RefineOptions{})
	require.NoError(t, err)

	assert.True(t, result.Fallback)
	assert.Equal(t, "some raw text", result.RefinedText)
	assert.LessOrEqual(t, result.QualityScore, fallbackScoreCap)
}

func TestRefineFallbackOnEmptyResponse(t *testing.T) {
	llm := &fakeLLM{response: "   "}
	service := newTestService(llm, 3000)

	result, err := service.Refine(context.Background(), []string{"some raw text"}, interfaces.RefineOptions{})
	require.NoError(t, err)
	assert.True(t, result.Fallback)
}

func TestRefinePerPageAboveTokenCeiling(t *testing.T) {
	llm := &fakeLLM{response: "clean page"}
	// Ceiling of 10 estimated tokens forces the page-by-page path
	service := newTestService(llm, 10)

	pages := []string{
		strings.Repeat("alpha ", 20),
		strings.Repeat("beta ", 20),
		strings.Repeat("gamma ", 20),
	}
	result, err := service.Refine(context.Background(), pages, interfaces.RefineOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, llm.calls)
	assert.Len(t, result.PageScores, 3)
	for _, score := range result.PageScores {
		assert.GreaterOrEqual(t, result.MinPageScore, 0.0)
		assert.LessOrEqual(t, result.MinPageScore, score)
	}
}

func TestRefineHonorsCancellation(t *testing.T) {
	llm := &fakeLLM{response: "clean"}
	service := newTestService(llm, 3000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.Refine(ctx, []string{"text"}, interfaces.RefineOptions{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRefineForcedLanguage(t *testing.T) {
	llm := &fakeLLM{response: "整形済みテキスト"}
	service := newTestService(llm, 3000)

	result, err := service.Refine(context.Background(), []string{"plain english text"},
		interfaces.RefineOptions{ForceLanguage: LangJapanese})
	require.NoError(t, err)
	assert.Equal(t, LangJapanese, result.Language)
}
