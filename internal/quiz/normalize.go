package quiz

import (
	"encoding/json"
	"strings"
	"time"

	"quizgen/internal/models"
	"quizgen/internal/util"
)

const mcOptionCount = 4

type locale struct {
	True         string
	False        string
	Placeholders []string
	Negation     string
	Explanation  string
}

var locales = map[string]locale{
	"fr": {
		True:         "Vrai",
		False:        "Faux",
		Placeholders: []string{"Aucune de ces réponses", "Toutes ces réponses", "Information non donnée dans le chapitre", "Impossible à déterminer"},
		Negation:     "Il est faux d'affirmer que : %s",
		Explanation:  "Affirmation tirée du chapitre « %s ».",
	},
	"en": {
		True:         "True",
		False:        "False",
		Placeholders: []string{"None of the above", "All of the above", "Not stated in the chapter", "Cannot be determined"},
		Negation:     "It is not true that: %s",
		Explanation:  "Statement taken from the chapter \"%s\".",
	},
	"es": {
		True:         "Verdadero",
		False:        "Falso",
		Placeholders: []string{"Ninguna de las anteriores", "Todas las anteriores", "No se indica en el capítulo", "No se puede determinar"},
		Negation:     "No es cierto que: %s",
		Explanation:  "Afirmación tomada del capítulo «%s».",
	},
	"de": {
		True:         "Wahr",
		False:        "Falsch",
		Placeholders: []string{"Keine der Antworten", "Alle Antworten", "Nicht im Kapitel genannt", "Nicht bestimmbar"},
		Negation:     "Es trifft nicht zu, dass: %s",
		Explanation:  "Aussage aus dem Kapitel „%s“.",
	},
}

func localeFor(lang string) locale {
	if l, ok := locales[strings.ToLower(strings.TrimSpace(lang))]; ok {
		return l
	}
	return locales["fr"]
}

var difficultyAliases = map[string]string{
	"easy":         "easy",
	"facile":       "easy",
	"beginner":     "easy",
	"medium":       "medium",
	"moyen":        "medium",
	"moyenne":      "medium",
	"intermediate": "medium",
	"hard":         "hard",
	"difficile":    "hard",
	"advanced":     "hard",
}

var difficultyPoints = map[string]int{"easy": 1, "medium": 2, "hard": 3}

func canonicalDifficulty(s, fallback string) string {
	if d, ok := difficultyAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return d
	}
	if d, ok := difficultyAliases[strings.ToLower(strings.TrimSpace(fallback))]; ok {
		return d
	}
	return "medium"
}

// Normalizer turns candidates into the canonical persisted item shape.
// DefaultDifficulty is used when the candidate carries none, usually the unit's.
type Normalizer struct {
	Language          string
	DefaultDifficulty string
	Now               func() time.Time
}

// Normalize never fails. The second result is false when a multiple choice
// answer could not be resolved and the first option was taken as correct.
func (n Normalizer) Normalize(c models.CandidateItem, itemID, unitID string, sequence int) (models.GeneratedItem, bool) {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	item := models.GeneratedItem{
		ItemID:         itemID,
		UnitID:         unitID,
		Sequence:       sequence,
		Prompt:         util.SanitizeText(c.Prompt),
		Explanation:    util.SanitizeText(c.Explanation),
		SourceExcerpt:  util.TruncateRunes(util.SanitizeText(c.SourceExcerpt), 500),
		CognitiveLevel: strings.ToLower(strings.TrimSpace(c.CognitiveLevel)),
		CreatedAt:      now().UTC(),
	}
	if item.CognitiveLevel == "" {
		item.CognitiveLevel = "remember"
	}

	kind, ok := CanonicalKind(c.Kind)
	if !ok {
		kind = models.KindMultipleChoice
	}
	resolved := true
	switch kind {
	case models.KindTrueFalse:
		n.trueFalse(c, &item)
	case models.KindFillBlank:
		n.fillBlank(c, &item)
	default:
		resolved = n.multipleChoice(c, &item)
	}
	item.Points = difficultyPoints[item.Difficulty]
	return item, resolved
}

func (n Normalizer) trueFalse(c models.CandidateItem, item *models.GeneratedItem) {
	loc := localeFor(n.Language)
	truth := true
	switch {
	case c.Truth != nil:
		truth = *c.Truth
	case firstTruth(c.CorrectAnswer, c.Answer, c.ExpectedAnswer) != nil:
		truth = *firstTruth(c.CorrectAnswer, c.Answer, c.ExpectedAnswer)
	case c.CorrectIndex != nil:
		truth = *c.CorrectIndex == 0
	}
	idx := 1
	item.Answer = loc.False
	if truth {
		idx = 0
		item.Answer = loc.True
	}
	item.Kind = models.KindTrueFalse
	item.Options = []string{loc.True, loc.False}
	item.CorrectIndex = &idx
	item.Difficulty = "easy"
}

func (n Normalizer) fillBlank(c models.CandidateItem, item *models.GeneratedItem) {
	accepted := make([]string, 0, len(c.AcceptedAnswers)+1)
	seen := map[string]struct{}{}
	add := func(s string) {
		s = util.SanitizeText(s)
		key := strings.ToLower(s)
		if s == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		accepted = append(accepted, s)
	}
	for _, a := range c.AcceptedAnswers {
		add(a)
	}
	if len(accepted) == 0 {
		add(c.CorrectAnswer)
		add(c.Answer)
		add(c.ExpectedAnswer)
	}
	raw, err := json.Marshal(accepted)
	if err != nil {
		raw = []byte("[]")
	}
	item.Kind = models.KindFillBlank
	item.Answer = string(raw)
	item.Options = []string{}
	item.CorrectIndex = nil
	item.Difficulty = canonicalDifficulty(c.Difficulty, n.DefaultDifficulty)
}

func (n Normalizer) multipleChoice(c models.CandidateItem, item *models.GeneratedItem) bool {
	loc := localeFor(n.Language)
	options := make([]string, 0, mcOptionCount)
	for _, o := range c.Options {
		if len(options) == mcOptionCount {
			break
		}
		options = append(options, util.SanitizeText(o))
	}
	for _, p := range loc.Placeholders {
		if len(options) == mcOptionCount {
			break
		}
		if indexOfFold(options, p) < 0 {
			options = append(options, p)
		}
	}

	idx, resolved := resolveCorrectIndex(c, options)
	item.Kind = models.KindMultipleChoice
	item.Options = options
	item.CorrectIndex = &idx
	item.Answer = options[idx]
	item.Difficulty = canonicalDifficulty(c.Difficulty, n.DefaultDifficulty)
	return resolved
}

// resolveCorrectIndex prefers an in-range explicit index, then a
// case-insensitive text match of the stated answer, then the first option.
func resolveCorrectIndex(c models.CandidateItem, options []string) (int, bool) {
	if c.CorrectIndex != nil && *c.CorrectIndex >= 0 && *c.CorrectIndex < len(options) {
		return *c.CorrectIndex, true
	}
	for _, ans := range []string{c.CorrectAnswer, c.Answer, c.ExpectedAnswer} {
		if ans = util.SanitizeText(ans); ans == "" {
			continue
		}
		if i := indexOfFold(options, ans); i >= 0 {
			return i, true
		}
	}
	return 0, false
}

func indexOfFold(list []string, s string) int {
	for i, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(s)) {
			return i
		}
	}
	return -1
}

func firstTruth(values ...string) *bool {
	for _, v := range values {
		if b, ok := parseTruth(v); ok {
			return &b
		}
	}
	return nil
}
