package refine

import (
	"strings"
	"unicode"
)

// Sub-score weights of the composite quality score. They sum to 1.0 so the
// composite stays in [0,1] after per-component clamping.
const (
	weightLengthRatio         = 0.20
	weightLanguageConsistency = 0.30
	weightNoiseReduction      = 0.20
	weightWhitespaceReduction = 0.15
	weightPunctuationDensity  = 0.15
)

// QualityScore estimates how well refined text preserves and cleans the
// original. The result is a weighted sum of five clamped sub-scores and is
// always in [0,1]; empty refined text scores 0.0.
func QualityScore(original, refined, language string) float64 {
	if strings.TrimSpace(refined) == "" {
		return 0.0
	}

	score := weightLengthRatio*lengthRatioScore(original, refined) +
		weightLanguageConsistency*languageConsistencyScore(refined, language) +
		weightNoiseReduction*noiseReductionScore(original, refined) +
		weightWhitespaceReduction*whitespaceReductionScore(original, refined) +
		weightPunctuationDensity*punctuationDensityScore(refined)

	return clamp01(score)
}

// lengthRatioScore rewards refined text whose length stays near the
// original's. Large shrinkage or growth suggests dropped or invented content.
func lengthRatioScore(original, refined string) float64 {
	origLen := len([]rune(original))
	refLen := len([]rune(refined))
	if origLen == 0 {
		return 0.0
	}
	ratio := float64(refLen) / float64(origLen)
	return clamp01(1.0 - abs(ratio-1.0))
}

// languageConsistencyScore measures the fraction of letters matching the
// detected language's character class.
func languageConsistencyScore(refined, language string) float64 {
	var matching, letters int
	for _, r := range refined {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		switch language {
		case LangJapanese:
			if isCJK(r) {
				matching++
			}
		default:
			if r <= unicode.MaxASCII {
				matching++
			}
		}
	}
	if letters == 0 {
		return 0.0
	}
	return clamp01(float64(matching) / float64(letters))
}

// noiseReductionScore measures how much non-alphanumeric noise the
// refinement removed relative to the original.
func noiseReductionScore(original, refined string) float64 {
	origRate := noiseRate(original)
	refRate := noiseRate(refined)
	if origRate <= 0 {
		if refRate <= 0 {
			return 1.0
		}
		return clamp01(1.0 - refRate)
	}
	return clamp01((origRate - refRate) / origRate)
}

// noiseRate is the fraction of runes that are neither letters, digits,
// whitespace, nor common punctuation.
func noiseRate(text string) float64 {
	runes := []rune(text)
	if len(runes) == 0 {
		return 0.0
	}
	noisy := 0
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || isCommonPunct(r) {
			continue
		}
		noisy++
	}
	return float64(noisy) / float64(len(runes))
}

// whitespaceReductionScore measures the reduction of long whitespace runs
// (three or more consecutive whitespace characters).
func whitespaceReductionScore(original, refined string) float64 {
	origRuns := countWhitespaceRuns(original)
	refRuns := countWhitespaceRuns(refined)
	if origRuns == 0 {
		if refRuns == 0 {
			return 1.0
		}
		return 0.0
	}
	return clamp01(float64(origRuns-refRuns) / float64(origRuns))
}

func countWhitespaceRuns(text string) int {
	runs := 0
	runLen := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			runLen++
			if runLen == 3 {
				runs++
			}
		} else {
			runLen = 0
		}
	}
	return runs
}

// punctuationDensityScore penalizes punctuation-heavy output, a common
// symptom of surviving OCR garbage.
func punctuationDensityScore(refined string) float64 {
	runes := []rune(refined)
	if len(runes) == 0 {
		return 0.0
	}
	punct := 0
	for _, r := range runes {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			punct++
		}
	}
	density := float64(punct) / float64(len(runes))
	return clamp01(1.0 - density/0.25)
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r)
}

func isCommonPunct(r rune) bool {
	switch r {
	case '.', ',', ';', ':', '!', '?', '-', '\'', '"', '(', ')',
		'。', '、', '「', '」', '・', '！', '？':
		return true
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
