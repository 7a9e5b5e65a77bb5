package quiz

import (
	"fmt"
	"strings"

	"quizgen/internal/models"
	"quizgen/internal/util"
)

const (
	promptVersion  = "quiz_v2"
	maxSourceRunes = 12000
)

var languageNames = map[string]string{
	"fr": "French",
	"en": "English",
	"es": "Spanish",
	"de": "German",
}

func languageName(lang string) string {
	if name, ok := languageNames[strings.ToLower(strings.TrimSpace(lang))]; ok {
		return name
	}
	return "French"
}

var kindInstructions = map[models.ItemKind]string{
	models.KindMultipleChoice: `"multiple_choice": exactly 4 options, one correct, give "correct_index" (0-3)`,
	models.KindTrueFalse:      `"true_false": a statement, give "answer" as true or false`,
	models.KindFillBlank:      `"fill_blank": a sentence with ___ for the blank, give "accepted_answers" as a list`,
}

const quizPromptTemplate = `Write %d quiz questions in %s about the chapter below.
Use only facts stated in the chapter. Do not repeat a question.

Allowed question types:
%s

Output STRICT JSON with this schema:
{
  "questions": [
    {
      "type": "multiple_choice|true_false|fill_blank",
      "question": "string",
      "options": ["string"],
      "correct_index": 0,
      "answer": "string or boolean",
      "accepted_answers": ["string"],
      "concept_ids": ["id from the concept list"],
      "difficulty": "easy|medium|hard",
      "cognitive_level": "remember|understand|apply|analyze",
      "explanation": "one sentence",
      "source_excerpt": "short verbatim span from the chapter"
    }
  ]
}
`

// BuildPrompt renders the generation instructions for one call. Concepts are
// listed with [concept:ID] markers so answers can be linked back to them.
func BuildPrompt(req GenerateRequest) string {
	var b strings.Builder
	kinds := req.Config.EnabledKinds()
	lines := make([]string, 0, len(kinds))
	for _, k := range kinds {
		lines = append(lines, "- "+kindInstructions[k])
	}
	count := req.Config.RequestedCount
	if count <= 0 {
		count = req.Config.UnitQuota()
	}
	fmt.Fprintf(&b, quizPromptTemplate, count, languageName(req.Language), strings.Join(lines, "\n"))

	title := strings.TrimSpace(req.Unit.Title)
	if title == "" {
		title = fmt.Sprintf("Chapter %d", req.Unit.OrderIndex)
	}
	b.WriteString("\nChapter: " + title + "\n")
	if d := strings.TrimSpace(req.Unit.Difficulty); d != "" {
		b.WriteString("Chapter difficulty: " + d + "\n")
	}
	if len(req.Unit.Concepts) > 0 {
		b.WriteString("\nConcepts:\n")
		for _, c := range req.Unit.Concepts {
			line := fmt.Sprintf("- [concept:%s] %s", c.ConceptID, strings.TrimSpace(c.Title))
			if desc := strings.TrimSpace(c.Description); desc != "" {
				line += ": " + util.TruncateRunes(desc, 200)
			}
			b.WriteString(line + "\n")
		}
	}
	if req.Pass > 1 {
		b.WriteString("\nThis is a follow-up request: cover concepts and facts not asked about yet.\n")
	}
	return b.String()
}

// PlainSource converts the unit's markdown source to prompt-sized plain text.
func PlainSource(unit models.ContentUnit) string {
	return util.TruncateRunes(plainText(unit.SourceText), maxSourceRunes)
}

// plainText is the markdown rendering of src, or the sanitized raw text when
// the rendering keeps nothing.
func plainText(src string) string {
	text := util.MarkdownToText(src)
	if strings.TrimSpace(text) == "" {
		text = util.SanitizeText(src)
	}
	return text
}
