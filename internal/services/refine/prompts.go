package refine

import "strings"

// Language identifiers used by detection and prompt selection
const (
	LangJapanese = "ja"
	LangEnglish  = "en"
)

const systemInstructionEN = "You are a document restoration assistant. You clean up OCR output without inventing content."

const systemInstructionJA = "あなたは文書復元アシスタントです。OCR出力を原文に忠実なまま整形します。"

const promptTemplateEN = `The following text was extracted from a scanned document by OCR and contains
recognition noise: broken words, stray symbols, duplicated fragments, and
inconsistent whitespace. Rewrite it as clean, well-formed text.

Rules:
- Preserve the original meaning, order, and all factual content.
- Fix obvious recognition errors and re-join words broken across lines.
- Remove stray symbols and repeated garbage sequences.
- Do not add commentary, headings, or content that is not in the source.
- Reply with the cleaned text only.

Text:
{{TEXT}}`

const promptTemplateJA = `以下はスキャン文書からOCRで抽出したテキストで、認識ノイズ（文字化け、
不要な記号、重複断片、不揃いな空白）を含みます。原文に忠実な整ったテキストに
書き直してください。

ルール:
- 元の意味、順序、事実内容をすべて保持すること。
- 明らかな認識誤りを修正し、行またぎで分断された語をつなぐこと。
- 不要な記号や繰り返しのゴミ列を除去すること。
- 原文にない解説、見出し、内容を加えないこと。
- 整形後のテキストのみを返すこと。

テキスト:
{{TEXT}}`

// buildPrompt substitutes the normalized text into the language-specific template
func buildPrompt(text, language string) (prompt, system string) {
	template := promptTemplateEN
	system = systemInstructionEN
	if language == LangJapanese {
		template = promptTemplateJA
		system = systemInstructionJA
	}
	return strings.Replace(template, "{{TEXT}}", text, 1), system
}
