package quiz

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"quizgen/internal/models"
)

var kindAliases = map[string]models.ItemKind{
	"multiple_choice":   models.KindMultipleChoice,
	"multiple-choice":   models.KindMultipleChoice,
	"multiplechoice":    models.KindMultipleChoice,
	"mcq":               models.KindMultipleChoice,
	"qcm":               models.KindMultipleChoice,
	"choice":            models.KindMultipleChoice,
	"true_false":        models.KindTrueFalse,
	"true-false":        models.KindTrueFalse,
	"truefalse":         models.KindTrueFalse,
	"boolean":           models.KindTrueFalse,
	"tf":                models.KindTrueFalse,
	"vrai_faux":         models.KindTrueFalse,
	"vrai-faux":         models.KindTrueFalse,
	"fill_blank":        models.KindFillBlank,
	"fill_in_blank":     models.KindFillBlank,
	"fill-in-blank":     models.KindFillBlank,
	"fill_in_the_blank": models.KindFillBlank,
	"cloze":             models.KindFillBlank,
	"texte_a_trous":     models.KindFillBlank,
}

var ws = regexp.MustCompile(`\s+`)

// CanonicalKind maps a provider's item type label to a known kind. The second
// result is false when the label is unknown.
func CanonicalKind(label string) (models.ItemKind, bool) {
	k := strings.ToLower(strings.TrimSpace(label))
	k = ws.ReplaceAllString(k, "_")
	kind, ok := kindAliases[k]
	return kind, ok
}

// ParseCandidates reads generation output into candidates. It accepts a bare
// JSON array or an object carrying the array under "questions" or "items",
// optionally wrapped in a markdown code fence or surrounded by prose.
func ParseCandidates(raw string) ([]models.CandidateItem, error) {
	raw = stripCodeFence(strings.TrimSpace(raw))
	if raw == "" {
		return nil, ErrEmptyResponse
	}
	raw = cutToJSON(raw)

	var list []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		var wrapper map[string]json.RawMessage
		if werr := json.Unmarshal([]byte(raw), &wrapper); werr != nil {
			return nil, fmt.Errorf("decode candidates: %w", err)
		}
		body, ok := firstField(wrapper, "questions", "items", "quiz")
		if !ok {
			return nil, fmt.Errorf("decode candidates: no question list in object")
		}
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("decode question list: %w", err)
		}
	}

	out := make([]models.CandidateItem, 0, len(list))
	for _, entry := range list {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(entry, &fields); err != nil {
			continue
		}
		c, ok := candidateFromFields(fields)
		if !ok {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func candidateFromFields(f map[string]json.RawMessage) (models.CandidateItem, bool) {
	c := models.CandidateItem{
		Prompt:          fieldString(f, "question", "prompt", "statement", "text"),
		CorrectAnswer:   fieldString(f, "correct_answer", "correctAnswer", "correct"),
		Answer:          fieldString(f, "answer"),
		ExpectedAnswer:  fieldString(f, "expected_answer", "expectedAnswer"),
		AcceptedAnswers: fieldStrings(f, "accepted_answers", "acceptedAnswers", "answers", "blanks"),
		ConceptIDs:      fieldStrings(f, "concept_ids", "conceptIds", "concepts", "concept_id"),
		Difficulty:      fieldString(f, "difficulty", "level"),
		Explanation:     fieldString(f, "explanation", "rationale"),
		SourceExcerpt:   fieldString(f, "source_excerpt", "sourceExcerpt", "excerpt", "source"),
		CognitiveLevel:  fieldString(f, "cognitive_level", "cognitiveLevel", "bloom_level", "bloom"),
	}
	if strings.TrimSpace(c.Prompt) == "" {
		return models.CandidateItem{}, false
	}
	c.Options, c.CorrectIndex = fieldOptions(f, "options", "choices")
	if idx := fieldInt(f, "correct_index", "correctIndex", "correct_answer_index", "answer_index", "correct_option"); idx != nil {
		c.CorrectIndex = idx
	}
	if c.CorrectIndex == nil && len(c.Options) > 0 {
		// Some providers put the index itself in correct_answer.
		if n, err := strconv.Atoi(strings.TrimSpace(c.CorrectAnswer)); err == nil && n >= 0 && n < len(c.Options) {
			c.CorrectIndex = &n
		}
	}
	c.Truth = fieldBool(f, "is_true", "isTrue", "truth", "answer", "correct_answer", "correct")

	label := fieldString(f, "type", "kind", "question_type", "questionType")
	kind, ok := CanonicalKind(label)
	if !ok {
		kind = inferKind(c)
	}
	c.Kind = string(kind)
	return c, true
}

func inferKind(c models.CandidateItem) models.ItemKind {
	switch {
	case len(c.Options) > 0:
		return models.KindMultipleChoice
	case c.Truth != nil:
		return models.KindTrueFalse
	case len(c.AcceptedAnswers) > 0:
		return models.KindFillBlank
	default:
		return models.KindMultipleChoice
	}
}

func stripCodeFence(s string) string {
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

// cutToJSON drops prose before the first bracket and after the matching last one.
func cutToJSON(s string) string {
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return s
	}
	closer := "]"
	if s[start] == '{' {
		closer = "}"
	}
	end := strings.LastIndex(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

func firstField(f map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := f[k]; ok && len(v) > 0 && string(v) != "null" {
			return v, true
		}
	}
	return nil, false
}

func fieldString(f map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		v, ok := f[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(v, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

func fieldStrings(f map[string]json.RawMessage, keys ...string) []string {
	for _, k := range keys {
		v, ok := f[k]
		if !ok {
			continue
		}
		var list []string
		if err := json.Unmarshal(v, &list); err == nil {
			out := make([]string, 0, len(list))
			for _, s := range list {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
			continue
		}
		var one string
		if err := json.Unmarshal(v, &one); err == nil && strings.TrimSpace(one) != "" {
			return []string{strings.TrimSpace(one)}
		}
	}
	return nil
}

func fieldInt(f map[string]json.RawMessage, keys ...string) *int {
	for _, k := range keys {
		v, ok := f[k]
		if !ok {
			continue
		}
		var n int
		if err := json.Unmarshal(v, &n); err == nil {
			return &n
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
				return &n
			}
		}
	}
	return nil
}

func fieldBool(f map[string]json.RawMessage, keys ...string) *bool {
	for _, k := range keys {
		v, ok := f[k]
		if !ok {
			continue
		}
		var b bool
		if err := json.Unmarshal(v, &b); err == nil {
			return &b
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			if b, ok := parseTruth(s); ok {
				return &b
			}
		}
	}
	return nil
}

// fieldOptions accepts a list of strings or a list of {text, correct} objects.
// For the object form the index of the first correct option is returned too.
func fieldOptions(f map[string]json.RawMessage, keys ...string) ([]string, *int) {
	for _, k := range keys {
		v, ok := f[k]
		if !ok {
			continue
		}
		var list []string
		if err := json.Unmarshal(v, &list); err == nil {
			for i := range list {
				list[i] = strings.TrimSpace(list[i])
			}
			return list, nil
		}
		var objs []struct {
			Text      string `json:"text"`
			Label     string `json:"label"`
			Correct   bool   `json:"correct"`
			IsCorrect bool   `json:"is_correct"`
		}
		if err := json.Unmarshal(v, &objs); err == nil {
			out := make([]string, 0, len(objs))
			var correct *int
			for i, o := range objs {
				text := strings.TrimSpace(o.Text)
				if text == "" {
					text = strings.TrimSpace(o.Label)
				}
				out = append(out, text)
				if correct == nil && (o.Correct || o.IsCorrect) {
					idx := i
					correct = &idx
				}
			}
			return out, correct
		}
	}
	return nil, nil
}

func parseTruth(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "vrai", "verdadero", "wahr", "yes", "oui":
		return true, true
	case "false", "faux", "falso", "falsch", "no", "non":
		return false, true
	}
	return false, false
}
